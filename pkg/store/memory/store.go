// Package memory provides an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps nodes and aliases in maps guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	seq     int64
	nodes   map[int64]geo.Node
	aliases map[int64][]geo.Alias
	kids    map[int64][]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes:   make(map[int64]geo.Node),
		aliases: make(map[int64][]geo.Alias),
		kids:    make(map[int64][]int64),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) NextID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *Store) FindChildByName(_ context.Context, parentID int64, key string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, id := range s.kids[parentID] {
		if s.nodes[id].NameKey == key {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) MaxSiblingIndex(_ context.Context, parentID int64) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kids := s.kids[parentID]
	if len(kids) == 0 {
		return 0, false, nil
	}
	hi := -1
	for _, id := range kids {
		if idx := s.nodes[id].SiblingIndex; idx > hi {
			hi = idx
		}
	}
	return hi, true, nil
}

func (s *Store) FindAlias(_ context.Context, nodeID int64, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.aliases[nodeID] {
		if a.TextKey == key {
			return a.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) AnyPrimaryAlias(_ context.Context, nodeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.aliases[nodeID] {
		if a.IsPrimary {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) NodeExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok, nil
}

func (s *Store) FindByCode(_ context.Context, kind geo.Kind, code string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := int64(0)
	for id, n := range s.nodes {
		if n.Kind == kind && n.Code == code && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0, nil
}

func (s *Store) FindByGeonameID(_ context.Context, geonameID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := int64(0)
	for id, n := range s.nodes {
		if n.GeonameID == geonameID && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0, nil
}

func (s *Store) FindByKindAndName(_ context.Context, kind geo.Kind, key string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, n := range s.nodes {
		if n.Kind == kind && n.NameKey == key {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) InsertNode(_ context.Context, n geo.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.nodes[n.ID]; dup {
		return fmt.Errorf("insert node %d: duplicate id", n.ID)
	}
	if n.ParentID != geo.NoParent {
		if _, ok := s.nodes[n.ParentID]; !ok {
			return fmt.Errorf("insert node %d: parent %d does not exist", n.ID, n.ParentID)
		}
	}
	s.nodes[n.ID] = n
	s.kids[n.ParentID] = append(s.kids[n.ParentID], n.ID)
	return nil
}

func (s *Store) InsertAlias(_ context.Context, a geo.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[a.NodeID]; !ok {
		return fmt.Errorf("insert alias %d: node %d does not exist", a.ID, a.NodeID)
	}
	for _, existing := range s.aliases[a.NodeID] {
		if existing.TextKey == a.TextKey {
			return fmt.Errorf("insert alias %d: duplicate text %q for node %d", a.ID, a.Text, a.NodeID)
		}
	}
	s.aliases[a.NodeID] = append(s.aliases[a.NodeID], a)
	return nil
}

func (s *Store) GetNode(_ context.Context, id int64) (*geo.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, geo.ErrNotFound)
	}
	return &n, nil
}

func (s *Store) Children(_ context.Context, parentID int64) ([]geo.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]geo.Node, 0, len(s.kids[parentID]))
	for _, id := range s.kids[parentID] {
		out = append(out, s.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiblingIndex < out[j].SiblingIndex })
	return out, nil
}

func (s *Store) Aliases(_ context.Context, nodeID int64) ([]geo.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]geo.Alias, len(s.aliases[nodeID]))
	copy(out, s.aliases[nodeID])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SearchAliases(_ context.Context, needle string, limit int) ([]geo.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle = geo.AliasKey(needle)
	var out []geo.Alias
	for _, list := range s.aliases {
		for _, a := range list {
			if strings.Contains(a.TextKey, needle) {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountNodes(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}
