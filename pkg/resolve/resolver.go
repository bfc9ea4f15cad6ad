// Package resolve is the import engine: it maps (parent, name) records to
// persistent node ids, creating nodes and aliases on first sight, and
// defers records whose parent is not loaded yet.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"
)

// Backend is the slice of a store the resolver writes through.
type Backend interface {
	store.IDSource
	store.Reader
	store.Writer
}

// Options configures a Resolver.
type Options struct {
	// Normalize folds names to comparison keys. Default lowercase_ascii.
	Normalize geo.Normalizer
	// Suffixes strips generic qualifiers to derive short-form aliases.
	// Nil disables short forms.
	Suffixes *geo.SuffixStripper
	Logger   *slog.Logger
}

// Stats counts what a resolver did during its lifetime.
type Stats struct {
	Lookups        int `json:"lookups" yaml:"lookups"`
	Hits           int `json:"hits" yaml:"hits"`
	NodesCreated   int `json:"nodes_created" yaml:"nodes_created"`
	AliasesCreated int `json:"aliases_created" yaml:"aliases_created"`
	Duplicates     int `json:"duplicates" yaml:"duplicates"`
}

// Resolver owns the per-run caches (sibling marks, alias memo, known
// parents). It is not safe for concurrent use.
type Resolver struct {
	b        Backend
	norm     geo.Normalizer
	suffixes *geo.SuffixStripper
	logger   *slog.Logger

	aliases  *AliasRegistry
	siblings *SiblingAllocator
	parents  map[int64]struct{}
	stats    Stats
}

// New returns a resolver over b.
func New(b Backend, opts Options) *Resolver {
	if opts.Normalize == nil {
		opts.Normalize = geo.NormalizeLowercaseASCII
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		b:        b,
		norm:     opts.Normalize,
		suffixes: opts.Suffixes,
		logger:   opts.Logger,
		aliases:  NewAliasRegistry(b),
		siblings: NewSiblingAllocator(b),
		parents:  make(map[int64]struct{}),
	}
}

// Resolve returns the id of parentID's child called name, creating it when
// absent.
func (r *Resolver) Resolve(ctx context.Context, parentID int64, name string) (int64, error) {
	return r.ResolveEntity(ctx, geo.Entity{ParentID: parentID, Name: name})
}

// ResolveEntity is Resolve with the metadata stored on a newly created node.
// Existing nodes are matched by normalized name only; their metadata is
// left untouched.
func (r *Resolver) ResolveEntity(ctx context.Context, e geo.Entity) (int64, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return 0, geo.ErrEmptyName
	}
	key := r.norm(name)
	r.stats.Lookups++

	ids, err := r.b.FindChildByName(ctx, e.ParentID, key)
	if err != nil {
		return 0, fmt.Errorf("find %q under %d: %w", name, e.ParentID, err)
	}

	var id int64
	switch len(ids) {
	case 0:
		id, err = r.create(ctx, e, name, key)
		if err != nil {
			return 0, err
		}
	case 1:
		id = ids[0]
		r.stats.Hits++
	default:
		r.stats.Hits++
		r.stats.Duplicates++
		dup := &geo.DuplicateSiblingError{ParentID: e.ParentID, Key: key, IDs: ids}
		r.logger.Warn("duplicate siblings, using first match", "error", dup, "id", ids[0])
		id = ids[0]
	}
	if len(ids) > 0 {
		// A node whose create was interrupted before its first alias gets
		// the canonical name as primary here; otherwise a no-op.
		if _, _, err := r.AddAlias(ctx, id, name, geo.LangSystem, true); err != nil {
			return 0, err
		}
	}

	if err := r.addVariants(ctx, id, name); err != nil {
		return 0, err
	}
	return id, nil
}

// AddAlias attaches text to nodeID through the alias registry.
func (r *Resolver) AddAlias(ctx context.Context, nodeID int64, text, lang string, preferred bool) (int64, bool, error) {
	id, created, err := r.aliases.AddAlias(ctx, nodeID, text, lang, preferred)
	if created {
		r.stats.AliasesCreated++
	}
	return id, created, err
}

// Normalize exposes the comparison key used for names.
func (r *Resolver) Normalize(name string) string { return r.norm(name) }

// Stats returns a copy of the counters.
func (r *Resolver) Stats() Stats { return r.stats }

func (r *Resolver) create(ctx context.Context, e geo.Entity, name, key string) (int64, error) {
	if e.ParentID != geo.NoParent {
		ok, err := r.parentExists(ctx, e.ParentID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, &geo.ParentNotFoundError{ParentID: e.ParentID}
		}
	}

	id, err := r.b.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	idx, err := r.siblings.NextIndex(ctx, e.ParentID)
	if err != nil {
		return 0, err
	}
	kind := e.Kind
	if kind == "" {
		kind = geo.KindCustom
	}
	node := geo.Node{
		ID:           id,
		ParentID:     e.ParentID,
		Name:         name,
		NameKey:      key,
		SiblingIndex: idx,
		SystemOwned:  true,
		Kind:         kind,
		Code:         e.Code,
		GeonameID:    e.GeonameID,
	}
	if err := r.b.InsertNode(ctx, node); err != nil {
		r.siblings.forget(e.ParentID)
		return 0, fmt.Errorf("insert node %q: %w", name, err)
	}
	r.parents[id] = struct{}{}
	r.stats.NodesCreated++

	if _, _, err := r.AddAlias(ctx, id, name, geo.LangSystem, true); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Resolver) parentExists(ctx context.Context, id int64) (bool, error) {
	if _, ok := r.parents[id]; ok {
		return true, nil
	}
	ok, err := r.b.NodeExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check parent %d: %w", id, err)
	}
	if ok {
		r.parents[id] = struct{}{}
	}
	return ok, nil
}

// addVariants registers the ASCII transliteration and the suffix-stripped
// short form of name as secondary system aliases.
func (r *Resolver) addVariants(ctx context.Context, id int64, name string) error {
	if ascii := geo.Transliterate(name); ascii != "" && ascii != name {
		if _, _, err := r.AddAlias(ctx, id, ascii, geo.LangSystem, false); err != nil {
			return err
		}
	}
	if short, ok := r.suffixes.Strip(name); ok {
		if _, _, err := r.AddAlias(ctx, id, short, geo.LangSystem, false); err != nil {
			return err
		}
	}
	return nil
}
