package resolve

import (
	"context"
	"strings"

	"github.com/hazyhaar/geotree/pkg/geo"
)

type memoKey struct {
	nodeID int64
	lang   string
	text   string
}

// AliasRegistry attaches alias strings to nodes. Aliases are unique per node
// case-insensitively, and the first alias a node ever gets is its only
// primary one.
type AliasRegistry struct {
	b Backend

	// Feeds repeat the same (node, language, text) on consecutive lines;
	// the last triple short-circuits without a store round-trip.
	memo    memoKey
	memoID  int64
	hasMemo bool

	// Nodes known to own a primary alias. Aliases are never deleted, so a
	// positive answer stays true for the run.
	primaries map[int64]struct{}

	created int
}

// NewAliasRegistry returns a registry writing through b.
func NewAliasRegistry(b Backend) *AliasRegistry {
	return &AliasRegistry{b: b, primaries: make(map[int64]struct{})}
}

// AddAlias registers text as an alias of nodeID. Re-adding a known alias,
// in any casing, is a no-op returning the existing id and created=false.
// A new alias becomes primary iff the node has no primary alias yet;
// preferred is only a hint callers use to order their calls.
func (r *AliasRegistry) AddAlias(ctx context.Context, nodeID int64, text, lang string, preferred bool) (int64, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false, nil
	}
	mk := memoKey{nodeID: nodeID, lang: lang, text: text}
	if r.hasMemo && r.memo == mk {
		return r.memoID, false, nil
	}

	key := geo.AliasKey(text)
	id, ok, err := r.b.FindAlias(ctx, nodeID, key)
	if err != nil {
		return 0, false, &geo.AliasWriteError{NodeID: nodeID, Text: text, Err: err}
	}
	if ok {
		r.remember(mk, id)
		return id, false, nil
	}

	primary, err := r.needsPrimary(ctx, nodeID)
	if err != nil {
		return 0, false, &geo.AliasWriteError{NodeID: nodeID, Text: text, Err: err}
	}
	id, err = r.b.NextID(ctx)
	if err != nil {
		return 0, false, &geo.AliasWriteError{NodeID: nodeID, Text: text, Err: err}
	}
	alias := geo.Alias{
		ID:        id,
		NodeID:    nodeID,
		Text:      text,
		TextKey:   key,
		IsPrimary: primary,
		Language:  lang,
	}
	if err := r.b.InsertAlias(ctx, alias); err != nil {
		return 0, false, &geo.AliasWriteError{NodeID: nodeID, Text: text, Err: err}
	}
	if primary {
		r.primaries[nodeID] = struct{}{}
	}
	r.created++
	r.remember(mk, id)
	return id, true, nil
}

// Created returns the number of aliases inserted by this registry.
func (r *AliasRegistry) Created() int { return r.created }

func (r *AliasRegistry) needsPrimary(ctx context.Context, nodeID int64) (bool, error) {
	if _, ok := r.primaries[nodeID]; ok {
		return false, nil
	}
	has, err := r.b.AnyPrimaryAlias(ctx, nodeID)
	if err != nil {
		return false, err
	}
	if has {
		r.primaries[nodeID] = struct{}{}
	}
	return !has, nil
}

func (r *AliasRegistry) remember(mk memoKey, id int64) {
	r.memo = mk
	r.memoID = id
	r.hasMemo = true
}
