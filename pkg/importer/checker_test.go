package importer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckAll_Mixed(t *testing.T) {
	// Server that returns 200.
	srv200 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv200.Close()

	// Server that returns 404.
	srv404 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv404.Close()

	// Server that returns 500.
	srv500 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv500.Close()

	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	adapters := []Adapter{
		&fakeAdapter{id: "ok-source", kind: "city", desc: "OK source", url: srv200.URL, license: "CC0"},
		&fakeAdapter{id: "notfound-source", kind: "state", desc: "404 source", url: srv404.URL, license: "CC0"},
		&fakeAdapter{id: "error-source", kind: "county", desc: "500 source", url: srv500.URL, license: "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	checker := NewChecker(sdb, logger, time.Hour)

	ctx := context.Background()
	checker.CheckAll(ctx)

	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}

	statusByID := make(map[string]int)
	for _, src := range sources {
		if src.LastStatus != nil {
			statusByID[src.AdapterID] = *src.LastStatus
		}
	}

	if statusByID["ok-source"] != 200 {
		t.Errorf("ok-source: expected 200, got %d", statusByID["ok-source"])
	}
	if statusByID["notfound-source"] != 404 {
		t.Errorf("notfound-source: expected 404, got %d", statusByID["notfound-source"])
	}
	if statusByID["error-source"] != 500 {
		t.Errorf("error-source: expected 500, got %d", statusByID["error-source"])
	}
}

func TestCheckAll_NetworkError(t *testing.T) {
	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	adapters := []Adapter{
		&fakeAdapter{id: "dead-source", kind: "city", desc: "dead", url: "http://127.0.0.1:1", license: "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	checker := NewChecker(sdb, logger, time.Hour)

	ctx := context.Background()
	checker.CheckAll(ctx)

	sources, _ := sdb.ListSources()
	src := sources[0]
	if src.LastStatus == nil || *src.LastStatus != 0 {
		t.Errorf("expected status 0 for network error, got %v", src.LastStatus)
	}
	if src.LastError == nil || *src.LastError == "" {
		t.Error("expected non-empty last_error for network error")
	}
}

func TestCheckAll_EmptyDB(t *testing.T) {
	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	checker := NewChecker(sdb, logger, time.Hour)

	// Should not panic on empty DB.
	checker.CheckAll(context.Background())
}

func TestCheckAll_Redirect(t *testing.T) {
	// 301 redirect - should be treated as OK (2xx/3xx).
	srv301 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://example.com/new")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv301.Close()

	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	adapters := []Adapter{
		&fakeAdapter{id: "redirect-source", kind: "city", desc: "redirect", url: srv301.URL, license: "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	checker := NewChecker(sdb, logger, time.Hour)
	checker.CheckAll(context.Background())

	sources, _ := sdb.ListSources()
	src := sources[0]
	if src.LastStatus == nil || *src.LastStatus != 301 {
		t.Errorf("expected status 301, got %v", src.LastStatus)
	}
}

func TestCheckAll_LocalFilesAndEmptyURL(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "countryInfo.txt")
	if err := os.WriteFile(present, []byte("# empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	adapters := []Adapter{
		&fakeAdapter{id: "local-present", kind: "country", desc: "local", url: "file://" + present},
		&fakeAdapter{id: "local-missing", kind: "country", desc: "missing", url: filepath.Join(dir, "nope.txt")},
		&fakeAdapter{id: "no-input", kind: "continent", desc: "builtin"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	results := NewChecker(sdb, logger, time.Hour).CheckAll(context.Background())

	byID := make(map[string]CheckResult)
	for _, r := range results {
		byID[r.AdapterID] = r
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (empty URL skipped), got %d", len(results))
	}
	if !byID["local-present"].OK() {
		t.Errorf("local-present: expected OK, got %+v", byID["local-present"])
	}
	if r := byID["local-missing"]; r.OK() || r.Status != http.StatusNotFound {
		t.Errorf("local-missing: expected 404, got %+v", r)
	}
}

func TestCheckAll_HeadNotAllowed(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()
	if err := sdb.Seed([]Adapter{&fakeAdapter{id: "no-head", kind: "city", url: srv.URL}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	results := NewChecker(sdb, logger, time.Hour).CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if r := results[0]; !r.OK() || r.Status != http.StatusPartialContent {
		t.Errorf("expected 206 via GET fallback, got %+v", r)
	}
	if gotRange != "bytes=0-0" {
		t.Errorf("Range = %q, want bytes=0-0", gotRange)
	}
}
