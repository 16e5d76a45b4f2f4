package provider

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/habforecast/eo-fetcher/service"
)

type rangeRecorder struct {
	sync.Mutex
	ranges []string
}

func (r *rangeRecorder) record(req *http.Request) {
	if req.Method != http.MethodGet {
		return
	}
	r.Lock()
	defer r.Unlock()
	r.ranges = append(r.ranges, req.Header.Get("Range"))
}

func newArchive(t *testing.T, content []byte, rec *rangeRecorder) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.ServeContent(w, r, "file.nc", time.Time{}, bytes.NewReader(content))
	})
	mux.HandleFunc("/unavailable/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/dropped/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(content[:len(content)/3])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadFull(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 1000)
	rec := &rangeRecorder{}
	srv := newArchive(t, content, rec)

	p := NewOceanColorProvider(http.DefaultClient, "test")
	localFile := filepath.Join(t.TempDir(), "S3B", "2024", "file.nc")
	tr, err := p.Download(context.Background(), srv.URL+"/data/file.nc", localFile, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Resumed || tr.Size != int64(len(content)) || tr.Bytes != int64(len(content)) {
		t.Errorf("unexpected transfer %+v", tr)
	}
	data, err := os.ReadFile(localFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Error("corrupted file")
	}
	for _, r := range rec.ranges {
		if r != "" {
			t.Errorf("unexpected range %s", r)
		}
	}
}

func TestDownloadResume(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 1000)
	rec := &rangeRecorder{}
	srv := newArchive(t, content, rec)

	localFile := filepath.Join(t.TempDir(), "file.nc")
	if err := os.WriteFile(localFile, content[:4000], 0644); err != nil {
		t.Fatal(err)
	}

	p := NewDaymetProvider(http.DefaultClient, "test")
	tr, err := p.Download(context.Background(), srv.URL+"/data/file.nc", localFile, true, int64(len(content)))
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Resumed || tr.Bytes != int64(len(content)-4000) {
		t.Errorf("unexpected transfer %+v", tr)
	}
	data, err := os.ReadFile(localFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Error("corrupted file")
	}
	if len(rec.ranges) == 0 {
		t.Fatal("no GET request")
	}
	for _, r := range rec.ranges {
		if r != "bytes=4000-" {
			t.Errorf("expecting only range requests, got %q", r)
		}
	}
}

func TestDownloadErrors(t *testing.T) {
	srv := newArchive(t, []byte("content"), &rangeRecorder{})
	p := NewOceanColorProvider(http.DefaultClient, "test")
	dir := t.TempDir()

	_, err := p.Download(context.Background(), srv.URL+"/unavailable/file.nc", filepath.Join(dir, "a.nc"), false, 0)
	if err == nil || !service.Temporary(err) {
		t.Errorf("503 must be temporary: %v", err)
	}

	_, err = p.Download(context.Background(), srv.URL+"/missing/file.nc", filepath.Join(dir, "b.nc"), false, 0)
	if err == nil || service.Temporary(err) {
		t.Errorf("404 must not be temporary: %v", err)
	}

	_, err = p.Download(context.Background(), "http://127.0.0.1:1/file.nc", filepath.Join(dir, "c.nc"), false, 0)
	if err == nil || !service.Temporary(err) {
		t.Errorf("connection errors must be temporary: %v", err)
	}
	var lse *service.LocalStateError
	if errors.As(err, &lse) {
		t.Errorf("unexpected local state error: %v", err)
	}
}

func TestDownloadDropped(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 10000)
	srv := newArchive(t, content, &rangeRecorder{})
	p := NewOceanColorProvider(http.DefaultClient, "test")
	localFile := filepath.Join(t.TempDir(), "file.nc")

	_, err := p.Download(context.Background(), srv.URL+"/dropped/file.nc", localFile, false, 0)
	if err == nil || !service.Temporary(err) {
		t.Errorf("a dropped connection must be temporary: %v", err)
	}
	fi, err := os.Stat(localFile)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() == 0 || fi.Size() >= int64(len(content)) {
		t.Errorf("expecting a partial file, got %d bytes", fi.Size())
	}
}

func TestFormatBytes(t *testing.T) {
	for v, expected := range map[int64]string{
		12:            "12B",
		2048:          "2.00KiB",
		3 << 20:       "3.00MiB",
		5<<30 + 1<<29: "5.50GiB",
	} {
		if s := FormatBytes(v); s != expected {
			t.Errorf("FormatBytes(%d): expected %s, got %s", v, expected, s)
		}
	}
}
