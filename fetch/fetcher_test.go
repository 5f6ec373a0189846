package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/azargarov/dlqueue"
)

func newTestServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/video.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPerform_DownloadsAndReportsProgress(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 10_000)
	srv := newTestServer(t, body)
	dir := t.TempDir()

	f := New(dir)
	f.ProgressEvery = 1024

	var reports []dlqueue.Progress
	ctx := dlqueue.WithProgress(context.Background(), func(p dlqueue.Progress) {
		reports = append(reports, p)
	})

	res, err := f.Perform(ctx, srv.URL+"/files/video.mp4", nil)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	want := filepath.Join(dir, "video.mp4")
	if res["filename"] != want {
		t.Fatalf("filename = %v; want %s", res["filename"], want)
	}
	if res["bytes"] != int64(len(body)) {
		t.Fatalf("bytes = %v; want %d", res["bytes"], len(body))
	}
	if res["content_type"] != "video/mp4" {
		t.Fatalf("content_type = %v", res["content_type"])
	}
	got, err := os.ReadFile(want)
	if err != nil || !bytes.Equal(got, body) {
		t.Fatalf("file content mismatch (err=%v)", err)
	}
	if _, err := os.Stat(want + partSuffix); !os.IsNotExist(err) {
		t.Fatal("partial file left behind")
	}

	if len(reports) < 2 {
		t.Fatalf("got %d progress reports; want several", len(reports))
	}
	last := reports[len(reports)-1]
	if last.Status != "finished" || last.DownloadedBytes != int64(len(body)) {
		t.Fatalf("last report = %+v", last)
	}
	if pct, ok := last.Percent(); !ok || pct != 100 {
		t.Fatalf("final percent = %v,%v", pct, ok)
	}
}

func TestPerform_ParamsOverrideNameAndDir(t *testing.T) {
	srv := newTestServer(t, []byte("abc"))
	other := t.TempDir()

	f := New(t.TempDir())
	res, err := f.Perform(context.Background(), srv.URL+"/files/video.mp4", dlqueue.Params{
		ParamOutput: "../escape/clip.bin",
		ParamDir:    other,
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if want := filepath.Join(other, "clip.bin"); res["filename"] != want {
		t.Fatalf("filename = %v; want %s", res["filename"], want)
	}
}

func TestPerform_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	f := New(t.TempDir())

	tests := []struct {
		name    string
		target  string
		wantErr string
	}{
		{"http status", srv.URL + "/missing", "404"},
		{"scheme", "ftp://example.com/a", "unsupported scheme"},
		{"parse", "http://[::1", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Perform(context.Background(), tt.target, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v; want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		params  dlqueue.Params
		want    string
		wantErr bool
	}{
		{"last segment", "https://h/a/b/c.webm", nil, "c.webm", false},
		{"no path", "https://h", nil, DefaultFileName, false},
		{"root", "https://h/", nil, DefaultFileName, false},
		{"param wins", "https://h/c.webm", dlqueue.Params{ParamOutput: "out.webm"}, "out.webm", false},
		{"param not a string", "https://h/c.webm", dlqueue.Params{ParamOutput: 7}, "c.webm", false},
		{"param dot", "https://h/c.webm", dlqueue.Params{ParamOutput: "."}, "", true},
		{"param dot dot", "https://h/c.webm", dlqueue.Params{ParamOutput: "a/.."}, "", true},
		{"param root", "https://h/c.webm", dlqueue.Params{ParamOutput: "/"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			got, err := fileName(u, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("fileName = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestPerform_RejectsInvalidOutputParam(t *testing.T) {
	srv := newTestServer(t, []byte("abc"))
	dir := t.TempDir()
	_, err := New(dir).Perform(context.Background(), srv.URL+"/files/video.mp4", dlqueue.Params{ParamOutput: ".."})
	if err == nil || !strings.Contains(err.Error(), "invalid output name") {
		t.Fatalf("err = %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("files left behind: %v", entries)
	}
}

func TestReserve_NumbersTakenNames(t *testing.T) {
	dir := t.TempDir()
	want := []string{"clip.mp4", "clip (1).mp4", "clip (2).mp4"}
	for _, w := range want {
		got, err := reserve(dir, "clip.mp4")
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if got != filepath.Join(dir, w) {
			t.Fatalf("reserve = %s; want %s", got, w)
		}
	}
}

func TestFetcher_SameNameJobsKeepTheirOwnBytes(t *testing.T) {
	release := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived.Done()
		<-release
		fmt.Fprintf(w, "video %s", r.URL.Query().Get("v"))
	}))
	t.Cleanup(srv.Close)
	go func() {
		arrived.Wait()
		close(release)
	}()

	dir := t.TempDir()
	p := dlqueue.New(New(dir), dlqueue.Options{MaxConcurrent: 2, NoRetries: true})
	defer p.Close()

	infos, err := p.ProcessAll(context.Background(),
		[]string{srv.URL + "/watch?v=AAA", srv.URL + "/watch?v=BBB"},
		dlqueue.PriorityNormal, nil)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	seen := map[string]bool{}
	for _, info := range infos {
		if info.State != dlqueue.StateCompleted {
			t.Fatalf("%s = %+v", info.Target, info)
		}
		name := info.Result["filename"].(string)
		if seen[name] {
			t.Fatalf("two jobs wrote %s", name)
		}
		seen[name] = true

		got, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		id := strings.TrimPrefix(info.Target, srv.URL+"/watch?v=")
		if string(got) != "video "+id {
			t.Fatalf("%s holds %q; want the bytes of %s", name, got, id)
		}
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 2 {
		t.Fatalf("files in dir = %d; want 2", len(entries))
	}
}

func TestFetcher_InPool(t *testing.T) {
	srv := newTestServer(t, []byte("payload"))
	p := dlqueue.New(New(t.TempDir()), dlqueue.Options{MaxConcurrent: 2, NoRetries: true})
	defer p.Close()

	infos, err := p.ProcessAll(context.Background(),
		[]string{srv.URL + "/files/video.mp4", srv.URL + "/missing"},
		dlqueue.PriorityNormal, nil)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if infos[0].State != dlqueue.StateCompleted {
		t.Fatalf("video = %+v", infos[0])
	}
	if infos[1].State != dlqueue.StateFailed || !strings.Contains(infos[1].LastError, "404") {
		t.Fatalf("missing = %+v", infos[1])
	}
}
