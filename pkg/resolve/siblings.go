package resolve

import (
	"context"
	"fmt"

	"github.com/hazyhaar/geotree/pkg/store"
)

// SiblingAllocator hands out the next ordinal position among a parent's
// children. The first call per parent reads the store; later calls use a
// cached high-water mark. The cache is never invalidated, so only one
// writer may import into a parent scope at a time.
type SiblingAllocator struct {
	r    store.Reader
	high map[int64]int
}

// NewSiblingAllocator returns an allocator with an empty cache.
func NewSiblingAllocator(r store.Reader) *SiblingAllocator {
	return &SiblingAllocator{r: r, high: make(map[int64]int)}
}

// NextIndex returns max(sibling index under parentID)+1, or 0 for a parent
// without children.
func (a *SiblingAllocator) NextIndex(ctx context.Context, parentID int64) (int, error) {
	if hi, ok := a.high[parentID]; ok {
		a.high[parentID] = hi + 1
		return hi + 1, nil
	}
	hi, ok, err := a.r.MaxSiblingIndex(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("max sibling index of %d: %w", parentID, err)
	}
	if !ok {
		hi = -1
	}
	a.high[parentID] = hi + 1
	return hi + 1, nil
}

// forget drops the cached mark of parentID after a failed insert so the
// next allocation re-reads the store instead of leaving a gap.
func (a *SiblingAllocator) forget(parentID int64) {
	delete(a.high, parentID)
}
