package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/resolve"
	"github.com/hazyhaar/geotree/pkg/store"
)

// WorldName is the display name of the root node.
const WorldName = "World"

const worldGeonameID = 6295630

// Options tune how feeds are read.
type Options struct {
	// Languages restricts alternate names to these ISO codes; empty keeps all.
	Languages []string
	// SkipHistoric drops alternate names flagged historic.
	SkipHistoric bool
	// Encoding of the input files when not UTF-8 (any WHATWG label).
	Encoding string
}

// Env is what an adapter imports through: the run's resolver, the batch of
// its current source and read access to the store.
type Env struct {
	Resolver *resolve.Resolver
	Batch    *resolve.Batch
	Lookup   store.Reader
	WorkDir  string
	Logger   *slog.Logger
	Options  Options

	root  int64
	codes map[codeKey]int64
	langs map[string]struct{}
}

type codeKey struct {
	kind geo.Kind
	code string
}

// NewEnv returns an Env with an empty batch.
func NewEnv(r *resolve.Resolver, lookup store.Reader, workDir string, logger *slog.Logger, opts Options) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Env{
		Resolver: r,
		Batch:    resolve.NewBatch(logger),
		Lookup:   lookup,
		WorkDir:  workDir,
		Logger:   logger,
		Options:  opts,
		codes:    make(map[codeKey]int64),
	}
	if len(opts.Languages) > 0 {
		e.langs = make(map[string]struct{}, len(opts.Languages))
		for _, l := range opts.Languages {
			e.langs[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
		}
	}
	return e
}

// Root returns the id of the World node, creating it on first use.
func (e *Env) Root(ctx context.Context) (int64, error) {
	if e.root != 0 {
		return e.root, nil
	}
	id, err := e.Resolver.ResolveEntity(ctx, geo.Entity{
		ParentID:  geo.NoParent,
		Name:      WorldName,
		Kind:      geo.KindWorld,
		GeonameID: worldGeonameID,
	})
	if err != nil {
		return 0, fmt.Errorf("resolve root: %w", err)
	}
	e.root = id
	return id, nil
}

// ByCode finds the node of kind carrying code. Hits are cached for the run;
// misses are not, since the node may be created later.
func (e *Env) ByCode(ctx context.Context, kind geo.Kind, code string) (int64, bool, error) {
	k := codeKey{kind, code}
	if id, ok := e.codes[k]; ok {
		return id, true, nil
	}
	id, ok, err := e.Lookup.FindByCode(ctx, kind, code)
	if err != nil {
		return 0, false, fmt.Errorf("find %s %q: %w", kind, code, err)
	}
	if ok {
		e.codes[k] = id
	}
	return id, ok, nil
}

// WantLanguage reports whether alternate names in lang are imported.
func (e *Env) WantLanguage(lang string) bool {
	if e.langs == nil {
		return true
	}
	_, ok := e.langs[strings.ToLower(lang)]
	return ok
}

// resetBatch starts a fresh batch for the next source.
func (e *Env) resetBatch() {
	e.Batch = resolve.NewBatch(e.Logger)
}

// processFeed runs every data line of path through the batch as a record
// of kind, then replays the records deferred for that kind. Rows with fewer
// than minFields columns fail as malformed.
func (e *Env) processFeed(ctx context.Context, path, kind string, minFields int, fn resolve.HandlerFunc) error {
	fd, err := openFeed(path, e.Options.Encoding)
	if err != nil {
		return err
	}
	defer fd.Close()

	handler := func(ctx context.Context, rec *resolve.PendingRecord, allowDelay bool) error {
		if err := wantFields(rec.Source, rec.Line, rec.Fields, minFields); err != nil {
			return err
		}
		return fn(ctx, rec, allowDelay)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := fd.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rec := &resolve.PendingRecord{Kind: kind, Source: fd.name, Line: fd.line, Key: fields[0], Fields: fields}
		if _, err := e.Batch.Process(ctx, rec, handler); err != nil {
			return err
		}
	}
	e.Logger.Info("feed read", "source", fd.name, "lines", fd.line, "deferred", e.Batch.Pending())
	return e.Batch.Flush(ctx, kind, handler)
}
