package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"

	"github.com/azargarov/dlqueue"
	"github.com/azargarov/dlqueue/fetch"
	"github.com/azargarov/dlqueue/playlist"
	"github.com/azargarov/dlqueue/ytdl"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

type config struct {
	maxConcurrent int
	workers       int
	retries       int
	retryInitial  time.Duration
	retryMax      time.Duration
	outputDir     string
	priority      string
	expand        bool
	dedup         bool
	forceYTDLP    bool
	format        string
}

func parseFlags(args []string) (config, []string, error) {
	var c config
	fs := flag.NewFlagSet("dlqueue", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: dlqueue [flags] URL...\n\n")
		fs.PrintDefaults()
	}
	fs.IntVar(&c.maxConcurrent, "j", dlqueue.DefaultMaxConcurrent, "max concurrent downloads")
	fs.IntVar(&c.workers, "workers", 0, "worker loops (default: same as -j)")
	fs.IntVar(&c.retries, "retries", dlqueue.DefaultMaxRetries, "retries per URL after the first attempt")
	fs.DurationVar(&c.retryInitial, "retry-initial", 0, "first backoff before a retry (0 = retry immediately)")
	fs.DurationVar(&c.retryMax, "retry-max", 0, "backoff cap")
	fs.StringVar(&c.outputDir, "o", ".", "output directory")
	fs.StringVar(&c.priority, "priority", "normal", "low, normal, high or urgent")
	fs.BoolVar(&c.expand, "playlist", false, "expand YouTube playlist URLs into their videos")
	fs.BoolVar(&c.dedup, "dedup", true, "skip URLs given more than once")
	fs.BoolVar(&c.forceYTDLP, "ytdlp", false, "download every URL with yt-dlp (default: only media sites)")
	fs.StringVar(&c.format, "format", "", "yt-dlp format selector")
	if err := fs.Parse(args); err != nil {
		return c, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return c, nil, errors.New("no URLs given")
	}
	return c, fs.Args(), nil
}

func (c config) options(metrics dlqueue.MetricsPolicy) dlqueue.Options {
	return dlqueue.Options{
		MaxConcurrent: c.maxConcurrent,
		Workers:       c.workers,
		Retry: dlqueue.RetryPolicy{
			MaxRetries: c.retries,
			Initial:    c.retryInitial,
			Max:        c.retryMax,
		},
		NoRetries: c.retries <= 0,
		Dedup:     c.dedup,
		Metrics:   metrics,
	}
}

// useYTDLP decides which downloader handles target.
func (c config) useYTDLP(target string) bool {
	return c.forceYTDLP || ytdl.IsMediaURL(target)
}

// performer routes media pages to yt-dlp and plain files to the HTTP
// fetcher. Playlist expansion yields watch URLs, which always go to yt-dlp.
func (c config) performer() dlqueue.Performer {
	files := fetch.New(c.outputDir)
	media := ytdl.New(c.outputDir)
	return dlqueue.PerformerFunc(func(ctx context.Context, target string, params dlqueue.Params) (dlqueue.Result, error) {
		if c.useYTDLP(target) {
			return media.Perform(ctx, target, params)
		}
		return files.Perform(ctx, target, params)
	})
}

func (c config) params() dlqueue.Params {
	if c.format == "" {
		return nil
	}
	return dlqueue.Params{ytdl.ParamFormat: c.format}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, targets, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := lg.FromContext(ctx)
	logger.Info("dlqueue starting", lg.String("version", version), lg.Int("targets", len(targets)))

	prio, err := dlqueue.ParsePriority(cfg.priority)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if cfg.expand {
		targets, err = playlist.NewExpander().Expand(ctx, targets)
		if err != nil {
			logger.Error("playlist expansion failed", lg.Any("error", err))
			return 1
		}
	}

	metrics := &dlqueue.AtomicMetrics{}
	pool := dlqueue.New(cfg.performer(), cfg.options(metrics))
	defer pool.Close()

	events, unsubscribe := pool.Subscribe(0)
	defer unsubscribe()
	go logEvents(ctx, events)

	infos, err := pool.ProcessAll(ctx, targets, prio, cfg.params())
	if err != nil {
		logger.Error("batch interrupted", lg.Any("error", err))
	}

	failed := 0
	for _, info := range infos {
		switch info.State {
		case dlqueue.StateCompleted:
			fmt.Printf("Downloaded: %v\n", info.Result["filename"])
		case dlqueue.StateFailed:
			failed++
			fmt.Fprintf(os.Stderr, "Error for %s: %s\n", info.Target, info.LastError)
		default:
			failed++
			fmt.Fprintf(os.Stderr, "Unfinished: %s (%s)\n", info.Target, info.State)
		}
	}

	logger.Info("dlqueue done",
		lg.Any("completed", metrics.Completed()),
		lg.Any("failed", metrics.Failed()),
		lg.Any("retried", metrics.Retried()),
	)
	if failed > 0 || err != nil {
		return 1
	}
	return 0
}

// logEvents logs retries, failures and progress until the stream closes.
func logEvents(ctx context.Context, events <-chan dlqueue.Event) {
	logger := lg.FromContext(ctx)
	for ev := range events {
		switch ev.Kind {
		case dlqueue.EventProgress:
			if pct, ok := ev.Progress.Percent(); ok {
				logger.Info("progress", lg.String("target", ev.Job.Target), lg.Int("percent", int(pct)))
			}
		case dlqueue.EventRetrying:
			logger.Warn("retrying",
				lg.String("target", ev.Job.Target),
				lg.Int("retry", ev.Job.RetryCount),
				lg.String("error", ev.Err),
			)
		case dlqueue.EventFailed:
			logger.Error("gave up", lg.String("target", ev.Job.Target), lg.String("error", ev.Err))
		}
	}
}
