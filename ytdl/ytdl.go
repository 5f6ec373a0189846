// Package ytdl is a dlqueue.Performer for media pages (YouTube and the
// other sites yt-dlp understands). It drives the yt-dlp binary, which must
// be on PATH, through github.com/lrstanley/go-ytdlp.
package ytdl

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/lrstanley/go-ytdlp"

	"github.com/azargarov/dlqueue"
)

// Params keys understood by Downloader.
const (
	ParamFormat = "format" // yt-dlp format selector, e.g. "bestaudio"
	ParamDir    = "dir"    // overrides Downloader.Dir for one job
)

const (
	// DefaultOutputTemplate keeps the video id in the name so two videos
	// with the same title never share a file.
	DefaultOutputTemplate   = "%(title)s [%(id)s].%(ext)s"
	DefaultProgressInterval = 500 * time.Millisecond
)

var mediaHosts = []string{
	"youtube.com",
	"youtu.be",
	"youtube-nocookie.com",
}

// IsMediaURL reports whether target points at a page yt-dlp should handle
// rather than a plain file.
func IsMediaURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range mediaHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// download is what a finished yt-dlp run tells us about its output.
type download struct {
	filename string
	title    string
}

type runOptions struct {
	output   string
	format   string
	interval time.Duration
}

type runFunc func(ctx context.Context, target string, opts runOptions, progress func(ytdlp.ProgressUpdate)) (download, error)

// Downloader runs one yt-dlp process per Perform call.
type Downloader struct {
	Dir              string
	OutputTemplate   string
	ProgressInterval time.Duration

	run runFunc
}

// New returns a Downloader writing into dir.
func New(dir string) *Downloader {
	return &Downloader{
		Dir:              dir,
		OutputTemplate:   DefaultOutputTemplate,
		ProgressInterval: DefaultProgressInterval,
		run:              runYTDLP,
	}
}

var _ dlqueue.Performer = (*Downloader)(nil)

// Perform downloads target with yt-dlp and reports its progress updates
// through dlqueue.ReportProgress. The result carries url, filename and
// title.
func (d *Downloader) Perform(ctx context.Context, target string, params dlqueue.Params) (dlqueue.Result, error) {
	dir := d.Dir
	if v, ok := params[ParamDir].(string); ok && v != "" {
		dir = v
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ytdl: create dir: %w", err)
	}

	tmpl := d.OutputTemplate
	if tmpl == "" {
		tmpl = DefaultOutputTemplate
	}
	opts := runOptions{
		output:   filepath.Join(dir, tmpl),
		interval: d.ProgressInterval,
	}
	if v, ok := params[ParamFormat].(string); ok {
		opts.format = v
	}
	if opts.interval <= 0 {
		opts.interval = DefaultProgressInterval
	}

	run := d.run
	if run == nil {
		run = runYTDLP
	}
	res, err := run(ctx, target, opts, func(u ytdlp.ProgressUpdate) {
		dlqueue.ReportProgress(ctx, toProgress(u))
	})
	if err != nil {
		return nil, fmt.Errorf("ytdl: %s: %w", target, err)
	}

	dlqueue.ReportProgress(ctx, dlqueue.Progress{Status: "finished", Filename: res.filename})
	lg.FromContext(ctx).Info("ytdl finished",
		lg.String("url", target),
		lg.String("file", res.filename),
		lg.String("title", res.title),
	)
	return dlqueue.Result{
		"url":      target,
		"filename": res.filename,
		"title":    res.title,
	}, nil
}

// toProgress maps a yt-dlp update onto the pool's progress record.
func toProgress(u ytdlp.ProgressUpdate) dlqueue.Progress {
	p := dlqueue.Progress{
		Status:          "downloading",
		DownloadedBytes: int64(u.DownloadedBytes),
		TotalBytes:      int64(u.TotalBytes),
	}
	if !u.Started.IsZero() {
		if elapsed := time.Since(u.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(u.DownloadedBytes) / elapsed
		}
	}
	if eta := u.ETA(); eta > 0 {
		p.ETA = eta
	}
	if u.Info != nil && u.Info.Filename != nil {
		p.Filename = *u.Info.Filename
	}
	return p
}

func runYTDLP(ctx context.Context, target string, opts runOptions, progress func(ytdlp.ProgressUpdate)) (download, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(opts.output)
	if opts.format != "" {
		dl = dl.Format(opts.format)
	}

	var (
		mu   sync.Mutex
		last ytdlp.ProgressUpdate
	)
	dl.ProgressFunc(opts.interval, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		last = update
		mu.Unlock()
		progress(update)
	})

	res, err := dl.Run(ctx, target)
	if err != nil {
		return download{}, err
	}

	var out download
	if res != nil {
		if info, err := res.GetExtractedInfo(); err == nil && len(info) > 0 {
			out = fromInfo(info[0].Filename, info[0].Title)
		}
	}
	if out.filename == "" || out.title == "" {
		var fallback download
		mu.Lock()
		if last.Info != nil {
			fallback = fromInfo(last.Info.Filename, last.Info.Title)
		}
		mu.Unlock()
		if out.filename == "" {
			out.filename = fallback.filename
		}
		if out.title == "" {
			out.title = fallback.title
		}
	}
	return out, nil
}

func fromInfo(filename, title *string) download {
	var d download
	if filename != nil {
		d.filename = *filename
	}
	if title != nil {
		d.title = *title
	}
	return d
}
