package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Adapter imports one reference feed into the geographic tree.
type Adapter interface {
	// ID returns the unique identifier of this adapter (e.g. "geonames-admin1").
	ID() string
	// Kind returns the record kind the adapter produces; it names the retry
	// queue flushed at the end of Import.
	Kind() string
	// Description returns a human-readable description.
	Description() string
	// DefaultURL returns the default source URL used for seeding the
	// database. Empty for adapters that need no input.
	DefaultURL() string
	// License returns the license identifier for this source (e.g. "CC-BY 4.0").
	License() string
	// DependsOn lists adapters whose nodes this one attaches to.
	DependsOn() []string
	// Import reads the feed at sourceURL (http(s), file:// or a local path)
	// and resolves every record through env.
	Import(ctx context.Context, env *Env, sourceURL string) error
}

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// Register adds an adapter to the global registry.
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapters[a.ID()] = a
}

// Get returns a registered adapter by ID, or an error if not found.
func Get(id string) (Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[id]
	if !ok {
		return nil, fmt.Errorf("unknown import source: %q", id)
	}
	return a, nil
}

// All returns all registered adapters sorted by ID.
func All() []Adapter {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// Ordered returns all registered adapters so that every adapter comes after
// the ones it depends on.
func Ordered() ([]Adapter, error) {
	return Order(All())
}

// Order sorts adapters by dependency (Kahn's algorithm, ties by ID).
// Dependencies outside the given set are ignored, so a single adapter can
// be rerun on its own. An adapter listed twice runs once.
func Order(list []Adapter) ([]Adapter, error) {
	idx := make(map[string]int, len(list))
	uniq := make([]Adapter, 0, len(list))
	for _, a := range list {
		if _, dup := idx[a.ID()]; dup {
			continue
		}
		idx[a.ID()] = len(uniq)
		uniq = append(uniq, a)
	}
	list = uniq
	inDegree := make([]int, len(list))
	dependents := make(map[int][]int)
	for i, a := range list {
		for _, dep := range a.DependsOn() {
			j, ok := idx[dep]
			if !ok {
				continue
			}
			if j == i {
				return nil, fmt.Errorf("adapter %s depends on itself", a.ID())
			}
			dependents[j] = append(dependents[j], i)
			inDegree[i]++
		}
	}

	var queue []int
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	out := make([]Adapter, 0, len(list))
	for len(queue) > 0 {
		sort.Slice(queue, func(a, b int) bool { return list[queue[a]].ID() < list[queue[b]].ID() })
		i := queue[0]
		queue = queue[1:]
		out = append(out, list[i])
		for _, j := range dependents[i] {
			inDegree[j]--
			if inDegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(out) != len(list) {
		return nil, fmt.Errorf("cycle detected in adapter dependencies")
	}
	return out, nil
}
