package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/kit"
	"github.com/hazyhaar/geotree/pkg/store"
)

// Shared request/response types used by both HTTP and MCP transports.

type nodeReq struct {
	ID int64
}

type nodeResponse struct {
	Node *geo.Node `json:"node"`
	// Path runs from the root down to the node's parent.
	Path []geo.Node `json:"path"`
}

type childrenResponse struct {
	ParentID int64      `json:"parent_id"`
	Children []geo.Node `json:"children"`
}

type aliasesResponse struct {
	NodeID  int64       `json:"node_id"`
	Aliases []geo.Alias `json:"aliases"`
}

type resolvePathReq struct {
	Path []string
}

type resolveResponse struct {
	Path []geo.Node `json:"path"`
}

type searchReq struct {
	Query string
	Limit int
}

type searchHit struct {
	geo.Alias
	Distance int `json:"distance"`
}

type searchResponse struct {
	Query string      `json:"query"`
	Hits  []searchHit `json:"hits"`
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 200
	// candidates fetched per returned hit before ranking
	searchOverfetch = 5
	maxPathDepth    = 32
)

// errBadRequest marks caller mistakes; handlers answer 400.
var errBadRequest = errors.New("bad request")

func getNodeEndpoint(b Backend) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*nodeReq)
		n, err := b.GetNode(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		var path []geo.Node
		for p := n.ParentID; p != geo.NoParent && len(path) < maxPathDepth; {
			parent, err := b.GetNode(ctx, p)
			if err != nil {
				return nil, err
			}
			path = append(path, *parent)
			p = parent.ParentID
		}
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return nodeResponse{Node: n, Path: path}, nil
	}
}

func childrenEndpoint(b Backend) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*nodeReq)
		if req.ID != geo.NoParent {
			if _, err := b.GetNode(ctx, req.ID); err != nil {
				return nil, err
			}
		}
		kids, err := b.Children(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return childrenResponse{ParentID: req.ID, Children: kids}, nil
	}
}

func aliasesEndpoint(b Backend) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*nodeReq)
		if _, err := b.GetNode(ctx, req.ID); err != nil {
			return nil, err
		}
		aliases, err := b.Aliases(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return aliasesResponse{NodeID: req.ID, Aliases: aliases}, nil
	}
}

// resolvePathEndpoint walks names from the root down. It never creates
// anything: an unknown segment is ErrNotFound.
func resolvePathEndpoint(b Backend, norm geo.Normalizer) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*resolvePathReq)
		if len(req.Path) == 0 {
			return nil, fmt.Errorf("%w: empty path", errBadRequest)
		}
		if len(req.Path) > maxPathDepth {
			return nil, fmt.Errorf("%w: path deeper than %d", errBadRequest, maxPathDepth)
		}
		parent := geo.NoParent
		out := make([]geo.Node, 0, len(req.Path))
		for _, seg := range req.Path {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				return nil, fmt.Errorf("%w: empty path segment", errBadRequest)
			}
			ids, err := b.FindChildByName(ctx, parent, norm(seg))
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return nil, fmt.Errorf("%q under %d: %w", seg, parent, geo.ErrNotFound)
			}
			n, err := b.GetNode(ctx, ids[0])
			if err != nil {
				return nil, err
			}
			out = append(out, *n)
			parent = n.ID
		}
		return resolveResponse{Path: out}, nil
	}
}

// searchEndpoint fetches aliases containing the query and ranks them by
// fuzzy distance, closest first.
func searchEndpoint(b Backend) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*searchReq)
		q := strings.TrimSpace(req.Query)
		if q == "" {
			return nil, fmt.Errorf("%w: missing query", errBadRequest)
		}
		limit := req.Limit
		switch {
		case limit <= 0:
			limit = defaultSearchLimit
		case limit > maxSearchLimit:
			limit = maxSearchLimit
		}

		candidates, err := b.SearchAliases(ctx, q, limit*searchOverfetch)
		if err != nil {
			return nil, err
		}
		words := make([]string, len(candidates))
		for i, a := range candidates {
			words[i] = a.Text
		}
		ranks := fuzzy.RankFindNormalizedFold(q, words)
		sort.Stable(ranks)

		hits := make([]searchHit, 0, min(limit, len(ranks)))
		for _, rank := range ranks {
			if len(hits) == limit {
				break
			}
			hits = append(hits, searchHit{Alias: candidates[rank.OriginalIndex], Distance: rank.Distance})
		}
		return searchResponse{Query: q, Hits: hits}, nil
	}
}

// Backend is what the query API reads from.
type Backend interface {
	store.Reader
	store.Query
}
