// Package storetest holds the behaviour every store.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"
)

// Run exercises open against a fresh store per subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("NextIDMonotonic", func(t *testing.T) { testNextID(t, open(t)) })
	t.Run("NodesAndChildren", func(t *testing.T) { testNodes(t, open(t)) })
	t.Run("Aliases", func(t *testing.T) { testAliases(t, open(t)) })
	t.Run("Lookups", func(t *testing.T) { testLookups(t, open(t)) })
	t.Run("Errors", func(t *testing.T) { testErrors(t, open(t)) })
}

func node(id, parent int64, name string, idx int, kind geo.Kind) geo.Node {
	return geo.Node{
		ID:           id,
		ParentID:     parent,
		Name:         name,
		NameKey:      geo.NormalizeLowercaseASCII(name),
		SiblingIndex: idx,
		SystemOwned:  true,
		Kind:         kind,
	}
}

func testNextID(t *testing.T, s store.Store) {
	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func testNodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertNode(ctx, node(1, geo.NoParent, "World", 0, geo.KindWorld)))
	require.NoError(t, s.InsertNode(ctx, node(2, 1, "Europe", 1, geo.KindContinent)))
	require.NoError(t, s.InsertNode(ctx, node(3, 1, "Asia", 0, geo.KindContinent)))

	_, ok, err := s.MaxSiblingIndex(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	hi, ok, err := s.MaxSiblingIndex(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, hi)

	hi, ok, err = s.MaxSiblingIndex(ctx, geo.NoParent)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, hi)

	ids, err := s.FindChildByName(ctx, 1, "asia")
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	ids, err = s.FindChildByName(ctx, geo.NoParent, "world")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = s.FindChildByName(ctx, 2, "asia")
	require.NoError(t, err)
	assert.Empty(t, ids)

	kids, err := s.Children(ctx, 1)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "Asia", kids[0].Name)
	assert.Equal(t, "Europe", kids[1].Name)
	assert.Equal(t, int64(1), kids[0].ParentID)

	n, err := s.GetNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, geo.NoParent, n.ParentID)
	assert.Equal(t, geo.KindWorld, n.Kind)
	assert.True(t, n.SystemOwned)

	ok, err = s.NodeExists(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.NodeExists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := s.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func testAliases(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertNode(ctx, node(1, geo.NoParent, "Japan", 0, geo.KindCountry)))

	has, err := s.AnyPrimaryAlias(ctx, 1)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.InsertAlias(ctx, geo.Alias{ID: 10, NodeID: 1, Text: "Japan", TextKey: "japan", IsPrimary: true, Language: geo.LangSystem}))
	require.NoError(t, s.InsertAlias(ctx, geo.Alias{ID: 11, NodeID: 1, Text: "Nippon", TextKey: "nippon", Language: "ja"}))
	assert.Error(t, s.InsertAlias(ctx, geo.Alias{ID: 12, NodeID: 1, Text: "JAPAN", TextKey: "japan"}))

	has, err = s.AnyPrimaryAlias(ctx, 1)
	require.NoError(t, err)
	assert.True(t, has)

	id, ok, err := s.FindAlias(ctx, 1, "nippon")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(11), id)

	_, ok, err = s.FindAlias(ctx, 1, "nihon")
	require.NoError(t, err)
	assert.False(t, ok)

	aliases, err := s.Aliases(ctx, 1)
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.True(t, aliases[0].IsPrimary)
	assert.Equal(t, "ja", aliases[1].Language)

	found, err := s.SearchAliases(ctx, "PON", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Nippon", found[0].Text)

	found, err = s.SearchAliases(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func testLookups(t *testing.T, s store.Store) {
	ctx := context.Background()
	jp := node(1, geo.NoParent, "Japan", 0, geo.KindCountry)
	jp.Code = "JP"
	jp.GeonameID = 1861060
	require.NoError(t, s.InsertNode(ctx, jp))
	ga := node(2, 1, "Georgia", 0, geo.KindState)
	ga.Code = "US.GA"
	require.NoError(t, s.InsertNode(ctx, ga))
	require.NoError(t, s.InsertNode(ctx, node(3, geo.NoParent, "Georgia", 1, geo.KindCountry)))

	id, ok, err := s.FindByCode(ctx, geo.KindCountry, "JP")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok, err = s.FindByCode(ctx, geo.KindState, "JP")
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err = s.FindByGeonameID(ctx, 1861060)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	ids, err := s.FindByKindAndName(ctx, geo.KindCountry, "georgia")
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func testErrors(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetNode(ctx, 404)
	assert.ErrorIs(t, err, geo.ErrNotFound)

	require.NoError(t, s.InsertNode(ctx, node(1, geo.NoParent, "World", 0, geo.KindWorld)))
	assert.Error(t, s.InsertNode(ctx, node(1, geo.NoParent, "Again", 1, geo.KindWorld)), "duplicate id")
	assert.Error(t, s.InsertNode(ctx, node(2, 77, "Orphan", 0, geo.KindCity)), "missing parent")
	assert.Error(t, s.InsertAlias(ctx, geo.Alias{ID: 5, NodeID: 77, Text: "x", TextKey: "x"}), "missing node")
}
