package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"
	"github.com/hazyhaar/geotree/pkg/store/storetest"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "geo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return tempStore(t) })
}

func TestReopenKeepsSequenceAndData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "geo.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.NextID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertNode(ctx, geo.Node{ID: id, Name: "World", NameKey: "world", Kind: geo.KindWorld}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	next, err := s.NextID(ctx)
	require.NoError(t, err)
	assert.Greater(t, next, id)

	n, err := s.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "World", n.Name)
}
