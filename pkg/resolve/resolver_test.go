package resolve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T) (*Resolver, *memory.Store, int64) {
	t.Helper()
	st := memory.New()
	r := New(st, Options{
		Suffixes: geo.NewSuffixStripper(geo.DefaultGenericSuffixes),
		Logger:   quietLogger(),
	})
	world, err := r.ResolveEntity(context.Background(), geo.Entity{ParentID: geo.NoParent, Name: "World", Kind: geo.KindWorld})
	require.NoError(t, err)
	return r, st, world
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)

	first, err := r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	kids, err := st.Children(ctx, world)
	require.NoError(t, err)
	assert.Len(t, kids, 1)

	aliases, err := st.Aliases(ctx, first)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "Asia", aliases[0].Text)
	assert.True(t, aliases[0].IsPrimary)
	assert.Equal(t, geo.LangSystem, aliases[0].Language)
}

func TestResolve_JapanAliases(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)

	asia, err := r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)
	japan, err := r.Resolve(ctx, asia, "Japan")
	require.NoError(t, err)

	_, created, err := r.AddAlias(ctx, japan, "Nippon", "", false)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = r.AddAlias(ctx, japan, "Japan", "", false)
	require.NoError(t, err)
	assert.False(t, created)

	aliases, err := st.Aliases(ctx, japan)
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.Equal(t, "Japan", aliases[0].Text)
	assert.True(t, aliases[0].IsPrimary)
	assert.Equal(t, "Nippon", aliases[1].Text)
	assert.False(t, aliases[1].IsPrimary)

	again, err := r.Resolve(ctx, asia, "japan")
	require.NoError(t, err)
	assert.Equal(t, japan, again)

	n, err := st.GetNode(ctx, japan)
	require.NoError(t, err)
	assert.Equal(t, "Japan", n.Name)
	assert.True(t, n.SystemOwned)
}

func TestResolve_SiblingIndicesContiguous(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)

	names := []string{"Europe", "Africa", "Europe", "Oceania", "africa", "Antarctica"}
	for _, name := range names {
		_, err := r.Resolve(ctx, world, name)
		require.NoError(t, err)
	}

	kids, err := st.Children(ctx, world)
	require.NoError(t, err)
	var idx []int
	for _, k := range kids {
		idx = append(idx, k.SiblingIndex)
	}
	sort.Ints(idx)
	assert.Equal(t, []int{0, 1, 2, 3}, idx)
	assert.Equal(t, "Europe", kids[0].Name)
	assert.Equal(t, "Antarctica", kids[3].Name)
}

func TestResolve_SiblingIndexContinuesFromStore(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)
	_, err := r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)

	// A fresh resolver over the same store reads the high-water mark once.
	r2 := New(st, Options{Logger: quietLogger()})
	id, err := r2.Resolve(ctx, world, "Europe")
	require.NoError(t, err)
	n, err := st.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n.SiblingIndex)
}

func TestResolve_EmptyName(t *testing.T) {
	r, _, world := newTestResolver(t)
	_, err := r.Resolve(context.Background(), world, "   ")
	assert.ErrorIs(t, err, geo.ErrEmptyName)
	assert.True(t, geo.IsRecordLevel(err))
}

func TestResolve_ParentNotFound(t *testing.T) {
	r, st, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), 999, "Nowhere")
	var pnf *geo.ParentNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, int64(999), pnf.ParentID)

	n, err := st.CountNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolve_Variants(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)

	id, err := r.Resolve(ctx, world, "Zürich District")
	require.NoError(t, err)

	aliases, err := st.Aliases(ctx, id)
	require.NoError(t, err)
	var texts []string
	for _, a := range aliases {
		texts = append(texts, a.Text)
	}
	assert.Equal(t, []string{"Zürich District", "Zurich District", "Zürich"}, texts)
	assert.True(t, aliases[0].IsPrimary)
	assert.False(t, aliases[1].IsPrimary)

	// Variants of a re-cased name are already known case-insensitively.
	before := r.Stats().AliasesCreated
	_, err = r.Resolve(ctx, world, "ZÜRICH DISTRICT")
	require.NoError(t, err)
	assert.Equal(t, before, r.Stats().AliasesCreated)
}

func TestResolve_EntityMetadata(t *testing.T) {
	ctx := context.Background()
	r, st, world := newTestResolver(t)

	id, err := r.ResolveEntity(ctx, geo.Entity{ParentID: world, Name: "Asia", Kind: geo.KindContinent, Code: "AS", GeonameID: 6255147})
	require.NoError(t, err)

	got, ok, err := st.FindByCode(ctx, geo.KindContinent, "AS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	got, ok, err = st.FindByGeonameID(ctx, 6255147)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestResolve_DuplicateSiblingsFirstWins(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.InsertNode(ctx, geo.Node{ID: 1, Name: "World", NameKey: "world"}))
	require.NoError(t, st.InsertNode(ctx, geo.Node{ID: 5, ParentID: 1, Name: "Georgia", NameKey: "georgia", SiblingIndex: 1}))
	require.NoError(t, st.InsertNode(ctx, geo.Node{ID: 3, ParentID: 1, Name: "georgia", NameKey: "georgia", SiblingIndex: 0}))

	var logs bytes.Buffer
	r := New(st, Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	id, err := r.Resolve(ctx, 1, "GEORGIA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, 1, r.Stats().Duplicates)
	assert.Contains(t, logs.String(), `level=WARN msg="duplicate siblings, using first match"`)
}

func TestResolve_Stats(t *testing.T) {
	ctx := context.Background()
	r, _, world := newTestResolver(t)
	_, err := r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)

	s := r.Stats()
	assert.Equal(t, 2, s.NodesCreated) // World and Asia
	assert.Equal(t, 1, s.Hits)
	assert.Equal(t, 3, s.Lookups)
	assert.Equal(t, 2, s.AliasesCreated)
}

// failingStore fails the armed kind of write.
type failingStore struct {
	*memory.Store
	failAliases bool
	failNodes   bool
}

var errDisk = errors.New("disk full")

func (f *failingStore) InsertAlias(ctx context.Context, a geo.Alias) error {
	if f.failAliases {
		return errDisk
	}
	return f.Store.InsertAlias(ctx, a)
}

func (f *failingStore) InsertNode(ctx context.Context, n geo.Node) error {
	if f.failNodes {
		return errDisk
	}
	return f.Store.InsertNode(ctx, n)
}

func TestResolve_AliasWriteErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: memory.New()}
	r := New(fs, Options{Logger: quietLogger()})
	world, err := r.Resolve(ctx, geo.NoParent, "World")
	require.NoError(t, err)

	fs.failAliases = true
	_, err = r.Resolve(ctx, world, "Asia")
	var awe *geo.AliasWriteError
	require.ErrorAs(t, err, &awe)
	assert.ErrorIs(t, err, errDisk)
	assert.False(t, geo.IsRecordLevel(err))
}

func TestResolve_FailedInsertLeavesNoGap(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: memory.New()}
	r := New(fs, Options{Logger: quietLogger()})
	world, err := r.Resolve(ctx, geo.NoParent, "World")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, world, "Asia")
	require.NoError(t, err)

	fs.failNodes = true
	_, err = r.Resolve(ctx, world, "Europe")
	require.ErrorIs(t, err, errDisk)

	fs.failNodes = false
	id, err := r.Resolve(ctx, world, "Europe")
	require.NoError(t, err)
	n, err := fs.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n.SiblingIndex)
}

func TestResolve_RepairsMissingPrimaryAlias(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: memory.New()}
	r := New(fs, Options{Logger: quietLogger()})
	world, err := r.Resolve(ctx, geo.NoParent, "World")
	require.NoError(t, err)

	// Node written, primary alias lost.
	fs.failAliases = true
	_, err = r.Resolve(ctx, world, "Åland")
	require.ErrorIs(t, err, errDisk)
	fs.failAliases = false

	id, err := r.Resolve(ctx, world, "Åland")
	require.NoError(t, err)

	again, err := New(fs, Options{Logger: quietLogger()}).Resolve(ctx, world, "Åland")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	aliases, err := fs.Aliases(ctx, id)
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.Equal(t, "Åland", aliases[0].Text)
	assert.True(t, aliases[0].IsPrimary)
	assert.Equal(t, "Aland", aliases[1].Text)
	assert.False(t, aliases[1].IsPrimary)

	kids, err := fs.Children(ctx, world)
	require.NoError(t, err)
	assert.Len(t, kids, 1)
}
