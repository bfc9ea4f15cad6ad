package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeAdapter implements Adapter for seeding and ordering tests.
type fakeAdapter struct {
	id, kind, desc, url, license string
	deps                         []string
	run                          func(ctx context.Context, env *Env, sourceURL string) error
}

func (f *fakeAdapter) ID() string          { return f.id }
func (f *fakeAdapter) Kind() string        { return f.kind }
func (f *fakeAdapter) Description() string { return f.desc }
func (f *fakeAdapter) DefaultURL() string  { return f.url }
func (f *fakeAdapter) License() string     { return f.license }
func (f *fakeAdapter) DependsOn() []string { return f.deps }
func (f *fakeAdapter) Import(ctx context.Context, env *Env, sourceURL string) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, env, sourceURL)
}

func tempSourceDB(t *testing.T) *SourceDB {
	t.Helper()
	dir := t.TempDir()
	sdb, err := OpenSourceDB(filepath.Join(dir, "sources.db"))
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	t.Cleanup(func() { sdb.Close() })
	return sdb
}

func TestOpenSourceDB_CreatesTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	sdb, err := OpenSourceDB(path)
	if err != nil {
		t.Fatalf("OpenSourceDB: %v", err)
	}
	defer sdb.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	// Verify the table exists by listing (should return empty).
	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources on empty db: %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("expected 0 sources, got %d", len(sources))
	}
}

func TestSeedAndGetURL(t *testing.T) {
	sdb := tempSourceDB(t)

	adapters := []Adapter{
		&fakeAdapter{id: "a1", kind: "city", desc: "desc1", url: "https://example.com/a1", license: "CC0"},
		&fakeAdapter{id: "a2", kind: "state", desc: "desc2", url: "https://example.com/a2", license: "MIT"},
	}

	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	url, err := sdb.GetURL("a1")
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url != "https://example.com/a1" {
		t.Fatalf("expected https://example.com/a1, got %s", url)
	}

	// Seed again should not overwrite.
	modified := []Adapter{
		&fakeAdapter{id: "a1", kind: "city", desc: "desc1", url: "https://changed.com/a1", license: "CC0"},
	}
	if err := sdb.Seed(modified); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	url, err = sdb.GetURL("a1")
	if err != nil {
		t.Fatalf("GetURL after re-seed: %v", err)
	}
	if url != "https://example.com/a1" {
		t.Fatalf("re-seed should not overwrite, got %s", url)
	}
}

func TestSetURL(t *testing.T) {
	sdb := tempSourceDB(t)

	adapters := []Adapter{
		&fakeAdapter{id: "a1", kind: "city", desc: "desc1", url: "https://example.com/original", license: "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if err := sdb.SetURL("a1", "https://example.com/updated"); err != nil {
		t.Fatalf("SetURL: %v", err)
	}

	url, err := sdb.GetURL("a1")
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url != "https://example.com/updated" {
		t.Fatalf("expected updated URL, got %s", url)
	}
}

func TestSetURL_NotFound(t *testing.T) {
	sdb := tempSourceDB(t)

	err := sdb.SetURL("nonexistent", "https://example.com")
	if err == nil {
		t.Fatal("expected error for nonexistent adapter")
	}
}

func TestUpdateCheck(t *testing.T) {
	sdb := tempSourceDB(t)

	adapters := []Adapter{
		&fakeAdapter{id: "a1", kind: "city", desc: "desc1", url: "https://example.com/a1", license: "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if err := sdb.UpdateCheck("a1", 200, ""); err != nil {
		t.Fatalf("UpdateCheck: %v", err)
	}

	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	src := sources[0]
	if src.LastStatus == nil || *src.LastStatus != 200 {
		t.Fatalf("expected last_status=200, got %v", src.LastStatus)
	}
	if src.LastCheck == nil || *src.LastCheck == 0 {
		t.Fatal("expected last_check to be set")
	}
	if src.LastError != nil {
		t.Fatalf("expected nil last_error, got %v", *src.LastError)
	}

	// Now with an error.
	if err := sdb.UpdateCheck("a1", 404, "not found"); err != nil {
		t.Fatalf("UpdateCheck with error: %v", err)
	}

	sources, _ = sdb.ListSources()
	src = sources[0]
	if src.LastStatus == nil || *src.LastStatus != 404 {
		t.Fatalf("expected last_status=404, got %v", src.LastStatus)
	}
	if src.LastError == nil || *src.LastError != "not found" {
		t.Fatalf("expected last_error='not found', got %v", src.LastError)
	}
}

func TestListSources_Order(t *testing.T) {
	sdb := tempSourceDB(t)

	adapters := []Adapter{
		&fakeAdapter{id: "z-last", kind: "city", desc: "desc1", url: "https://example.com/z", license: "CC0"},
		&fakeAdapter{id: "a-first", kind: "state", desc: "desc2", url: "https://example.com/a", license: "MIT"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].AdapterID != "a-first" {
		t.Fatalf("expected first source to be 'a-first', got %s", sources[0].AdapterID)
	}
}

func TestRuns_StartFinishList(t *testing.T) {
	sdb := tempSourceDB(t)

	id1, err := sdb.StartRun("geonames-countries", "https://example.com/countryInfo.txt")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	id2, err := sdb.StartRun("geonames-admin1", "https://example.com/admin1CodesASCII.txt")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("run ids must differ, both %s", id1)
	}

	err = sdb.FinishRun(Run{ID: id1, Status: RunPartial, Processed: 10, Resolved: 8, Failed: 1, Skipped: 1})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := sdb.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Same second: the later insert comes first.
	if runs[0].ID != id2 || runs[0].Status != RunRunning || runs[0].FinishedAt != nil {
		t.Fatalf("unexpected latest run: %+v", runs[0])
	}
	done := runs[1]
	if done.Status != RunPartial || done.Processed != 10 || done.Failed != 1 || done.FinishedAt == nil {
		t.Fatalf("unexpected finished run: %+v", done)
	}

	limited, err := sdb.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns(1): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}
}

func TestFinishRun_Unknown(t *testing.T) {
	sdb := tempSourceDB(t)
	if err := sdb.FinishRun(Run{ID: "missing", Status: RunOK}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
