package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"

	"github.com/azargarov/dlqueue"
)

// Params keys understood by Fetcher.
const (
	ParamOutput = "output" // file name inside the output directory
	ParamDir    = "dir"    // overrides Fetcher.Dir for one job
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultProgressEvery = 256 << 10
	DefaultFileName      = "download"
	partSuffix           = ".part"
	maxNameSuffix        = 1000
)

// Fetcher downloads targets with an http.Client.
type Fetcher struct {
	Client    *http.Client
	Dir       string
	UserAgent string

	// ProgressEvery is the number of bytes between progress reports.
	ProgressEvery int64
}

// New returns a Fetcher writing into dir.
func New(dir string) *Fetcher {
	return &Fetcher{
		Client:        &http.Client{Timeout: DefaultTimeout},
		Dir:           dir,
		ProgressEvery: DefaultProgressEvery,
	}
}

var _ dlqueue.Performer = (*Fetcher)(nil)

// Perform downloads target. The output name is reserved first, with a
// numbered suffix when another download already holds it, so concurrent
// jobs never share a file. The body is streamed into "<name>.part" and
// renamed over the reservation once complete; a failed attempt removes both.
func (f *Fetcher) Perform(ctx context.Context, target string, params dlqueue.Params) (dlqueue.Result, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}

	dir := f.Dir
	if d, ok := params[ParamDir].(string); ok && d != "" {
		dir = d
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fetch: create dir: %w", err)
	}
	name, err := fileName(u, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: %s: %s", target, resp.Status)
	}

	dest, err := reserve(dir, name)
	if err != nil {
		return nil, err
	}
	n, err := f.save(ctx, resp, dest)
	if err != nil {
		_ = os.Remove(dest)
		return nil, err
	}
	lg.FromContext(ctx).Info("fetch finished",
		lg.String("url", target),
		lg.String("file", dest),
		lg.Any("bytes", n),
	)

	return dlqueue.Result{
		"url":          target,
		"filename":     dest,
		"bytes":        n,
		"content_type": resp.Header.Get("Content-Type"),
	}, nil
}

func (f *Fetcher) save(ctx context.Context, resp *http.Response, dest string) (int64, error) {
	part := dest + partSuffix
	out, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("fetch: create %s: %w", part, err)
	}

	every := f.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	pw := &progressWriter{
		ctx:      ctx,
		total:    resp.ContentLength,
		filename: dest,
		every:    every,
		started:  time.Now(),
	}

	n, copyErr := io.Copy(io.MultiWriter(out, pw), resp.Body)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("fetch: write %s: %w", dest, copyErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		_ = os.Remove(part)
		return n, fmt.Errorf("fetch: short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("fetch: rename: %w", err)
	}
	pw.report("finished")
	return n, nil
}

// fileName picks the output name: the "output" param, else the last path
// segment of the URL, else DefaultFileName. Directory parts are dropped.
func fileName(u *url.URL, params dlqueue.Params) (string, error) {
	if name, ok := params[ParamOutput].(string); ok && name != "" {
		base := filepath.Base(name)
		if base == "." || base == ".." || base == string(filepath.Separator) {
			return "", fmt.Errorf("fetch: invalid output name %q", name)
		}
		return base, nil
	}
	base := path.Base(u.Path)
	if base == "." || base == ".." || base == "/" || strings.TrimSpace(base) == "" {
		return DefaultFileName, nil
	}
	return base, nil
}

// reserve creates an empty file for name in dir, or for "name (N).ext"
// when that is taken, and returns its path.
func reserve(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		dest := filepath.Join(dir, candidate)
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return dest, f.Close()
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("fetch: reserve %s: %w", dest, err)
		}
	}
	return "", fmt.Errorf("fetch: no free name for %s in %s", name, dir)
}

// progressWriter counts bytes and forwards a dlqueue.Progress every
// `every` bytes.
type progressWriter struct {
	ctx      context.Context
	total    int64
	written  int64
	last     int64
	every    int64
	filename string
	started  time.Time
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.written += int64(len(b))
	if w.written-w.last >= w.every {
		w.last = w.written
		w.report("downloading")
	}
	return len(b), nil
}

func (w *progressWriter) report(status string) {
	p := dlqueue.Progress{
		Status:          status,
		DownloadedBytes: w.written,
		Filename:        w.filename,
	}
	if w.total > 0 {
		p.TotalBytes = w.total
	}
	if elapsed := time.Since(w.started).Seconds(); elapsed > 0 {
		p.Speed = float64(w.written) / elapsed
		if p.Speed > 0 && p.TotalBytes > w.written {
			p.ETA = time.Duration(float64(p.TotalBytes-w.written) / p.Speed * float64(time.Second))
		}
	}
	dlqueue.ReportProgress(w.ctx, p)
}
