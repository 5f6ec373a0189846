package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/azargarov/dlqueue"
	"github.com/azargarov/dlqueue/ytdl"
)

func TestParseFlags(t *testing.T) {
	silenceStderr(t)

	cfg, targets, err := parseFlags([]string{"-j", "4", "-retries", "0", "-retry-initial", "1s", "-priority", "high", "a", "b"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.maxConcurrent != 4 || cfg.retries != 0 || cfg.retryInitial != time.Second || cfg.priority != "high" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(targets) != 2 || targets[0] != "a" {
		t.Fatalf("targets = %v", targets)
	}

	opts := cfg.options(&dlqueue.NoopMetrics{})
	opts.FillDefaults()
	if opts.Retry.MaxRetries != 0 || opts.MaxConcurrent != 4 || opts.Workers != 4 || !opts.Dedup {
		t.Fatalf("options = %+v", opts)
	}

	if _, _, err := parseFlags(nil); err == nil {
		t.Fatal("no URLs accepted")
	}
}

func TestRunRejectsBadPriority(t *testing.T) {
	silenceStderr(t)
	code := run([]string{"-priority", "sometimes", "https://example.com/a"})

	if code != 2 {
		t.Fatalf("exit code = %d; want 2", code)
	}
}

func silenceStderr(t *testing.T) {
	t.Helper()
	null, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	stderr := os.Stderr
	os.Stderr = null
	t.Cleanup(func() {
		os.Stderr = stderr
		null.Close()
	})
}

func TestRouting(t *testing.T) {
	tests := []struct {
		name   string
		force  bool
		target string
		want   bool
	}{
		{"watch page", false, "https://www.youtube.com/watch?v=abc", true},
		{"short link", false, "https://youtu.be/abc", true},
		{"plain file", false, "https://example.com/a.zip", false},
		{"forced", true, "https://example.com/a.zip", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config{forceYTDLP: tt.force}
			if got := c.useYTDLP(tt.target); got != tt.want {
				t.Fatalf("useYTDLP(%s) = %v; want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestPlainFilesGoThroughFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := config{outputDir: dir}
	res, err := c.performer().Perform(context.Background(), srv.URL+"/a.bin", c.params())
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if res["filename"] != filepath.Join(dir, "a.bin") {
		t.Fatalf("result = %v", res)
	}
	if c.params() != nil {
		t.Fatal("params without -format should be nil")
	}
	if p := (config{format: "bestaudio"}).params(); p[ytdl.ParamFormat] != "bestaudio" {
		t.Fatalf("params = %v", p)
	}
}
