package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store/memory"
)

// countingStore counts FindAlias round-trips.
type countingStore struct {
	*memory.Store
	finds int
}

func (c *countingStore) FindAlias(ctx context.Context, nodeID int64, key string) (int64, bool, error) {
	c.finds++
	return c.Store.FindAlias(ctx, nodeID, key)
}

func seedNode(t *testing.T, st *memory.Store, id int64) {
	t.Helper()
	require.NoError(t, st.InsertNode(context.Background(), geo.Node{ID: id, Name: "n", NameKey: "n"}))
}

func TestAddAlias_SinglePrimaryFirstWins(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNode(t, st, 100)
	reg := NewAliasRegistry(st)

	texts := []string{"Nippon", "Japan", "日本", "NIPPON", "Nihon"}
	for i, text := range texts {
		_, _, err := reg.AddAlias(ctx, 100, text, "", i == 1)
		require.NoError(t, err)
	}

	aliases, err := st.Aliases(ctx, 100)
	require.NoError(t, err)
	require.Len(t, aliases, 4)
	var primaries []string
	for _, a := range aliases {
		if a.IsPrimary {
			primaries = append(primaries, a.Text)
		}
	}
	assert.Equal(t, []string{"Nippon"}, primaries)
	assert.Equal(t, 4, reg.Created())
}

func TestAddAlias_DedupCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNode(t, st, 1)
	reg := NewAliasRegistry(st)

	id1, created, err := reg.AddAlias(ctx, 1, "Côte d'Ivoire", "fr", true)
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := reg.AddAlias(ctx, 1, "CÔTE D'IVOIRE", "fr", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	aliases, err := st.Aliases(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, aliases, 1)
}

func TestAddAlias_PrimaryFromExistingStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNode(t, st, 1)
	require.NoError(t, st.InsertAlias(ctx, geo.Alias{ID: 50, NodeID: 1, Text: "Old", TextKey: "old", IsPrimary: true}))

	reg := NewAliasRegistry(st)
	_, created, err := reg.AddAlias(ctx, 1, "New", "en", true)
	require.NoError(t, err)
	require.True(t, created)

	aliases, err := st.Aliases(ctx, 1)
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.True(t, aliases[0].IsPrimary)
	assert.False(t, aliases[1].IsPrimary)
}

func TestAddAlias_MemoSkipsStore(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: memory.New()}
	seedNode(t, cs.Store, 1)
	reg := NewAliasRegistry(cs)

	_, _, err := reg.AddAlias(ctx, 1, "Tokyo", "en", false)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.finds)

	_, created, err := reg.AddAlias(ctx, 1, "Tokyo", "en", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, cs.finds, "repeated triple must not hit the store")

	// Different language breaks the memo.
	_, created, err = reg.AddAlias(ctx, 1, "Tokyo", "de", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, cs.finds)
}

func TestAddAlias_EmptyTextNoop(t *testing.T) {
	st := memory.New()
	seedNode(t, st, 1)
	reg := NewAliasRegistry(st)

	id, created, err := reg.AddAlias(context.Background(), 1, "  ", "en", true)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.False(t, created)
}

func TestAddAlias_UnknownNodeIsWriteError(t *testing.T) {
	reg := NewAliasRegistry(memory.New())
	_, _, err := reg.AddAlias(context.Background(), 42, "Ghost", "", false)
	var awe *geo.AliasWriteError
	require.ErrorAs(t, err, &awe)
	assert.Equal(t, int64(42), awe.NodeID)
	assert.Equal(t, "Ghost", awe.Text)
}

func TestNextIndex(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNode(t, st, 1)
	require.NoError(t, st.InsertNode(ctx, geo.Node{ID: 2, ParentID: 1, Name: "a", NameKey: "a", SiblingIndex: 0}))
	require.NoError(t, st.InsertNode(ctx, geo.Node{ID: 3, ParentID: 1, Name: "b", NameKey: "b", SiblingIndex: 1}))

	a := NewSiblingAllocator(st)
	for want := 2; want < 5; want++ {
		got, err := a.NextIndex(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := a.NextIndex(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}
