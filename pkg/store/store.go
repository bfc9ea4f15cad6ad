// Package store defines the narrow persistence contracts the import engine
// and the query API consume. Implementations live in the memory, sqlite and
// postgres subpackages; all of them bind parameters and never interpolate
// names into SQL.
package store

import (
	"context"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// IDSource hands out surrogate ids. Ids are monotonically increasing and
// never repeat for the lifetime of the store.
type IDSource interface {
	NextID(ctx context.Context) (int64, error)
}

// Reader is the lookup side used by the resolver.
type Reader interface {
	// FindChildByName returns the ids of parentID's children whose name key
	// equals key, lowest id first. More than one id is a data-integrity
	// problem the caller reports.
	FindChildByName(ctx context.Context, parentID int64, key string) ([]int64, error)
	// MaxSiblingIndex returns the highest sibling index under parentID;
	// ok is false when the parent has no children.
	MaxSiblingIndex(ctx context.Context, parentID int64) (hi int, ok bool, err error)
	// FindAlias looks up an alias of nodeID by its case-insensitive key.
	FindAlias(ctx context.Context, nodeID int64, key string) (aliasID int64, ok bool, err error)
	AnyPrimaryAlias(ctx context.Context, nodeID int64) (bool, error)
	NodeExists(ctx context.Context, id int64) (bool, error)
	FindByCode(ctx context.Context, kind geo.Kind, code string) (int64, bool, error)
	FindByGeonameID(ctx context.Context, geonameID int64) (int64, bool, error)
	FindByKindAndName(ctx context.Context, kind geo.Kind, key string) ([]int64, error)
}

// Writer persists nodes and aliases, one atomic statement per call.
type Writer interface {
	InsertNode(ctx context.Context, n geo.Node) error
	InsertAlias(ctx context.Context, a geo.Alias) error
}

// Query is the read model served by the API.
type Query interface {
	GetNode(ctx context.Context, id int64) (*geo.Node, error)
	Children(ctx context.Context, parentID int64) ([]geo.Node, error)
	Aliases(ctx context.Context, nodeID int64) ([]geo.Alias, error)
	// SearchAliases returns aliases whose key contains needle, at most limit.
	SearchAliases(ctx context.Context, needle string, limit int) ([]geo.Alias, error)
	CountNodes(ctx context.Context) (int, error)
}

// Store is everything a backend provides.
type Store interface {
	IDSource
	Reader
	Writer
	Query
	Close() error
}
