package api

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/kit"
)

// RegisterMCPTools registers the geotree query tools on the server.
func RegisterMCPTools(srv *server.MCPServer, b Backend, opts Options) {
	if opts.Normalize == nil {
		opts.Normalize = geo.NormalizeLowercaseASCII
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	registerGetNode(srv, b, opts.Logger)
	registerResolvePath(srv, b, opts)
	registerSearchAliases(srv, b, opts.Logger)
}

func registerGetNode(srv *server.MCPServer, b Backend, logger *slog.Logger) {
	tool := mcp.NewTool("get_node",
		mcp.WithDescription("Get a geographic node by id, with the chain of its ancestors from the World root."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	)

	kit.RegisterMCPTool(srv, tool, withLogging(logger, "get_node", getNodeEndpoint(b)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			id, ok := req.GetArguments()["id"].(float64)
			if !ok || id < 0 {
				return nil, fmt.Errorf("id must be a non-negative number")
			}
			return &kit.MCPDecodeResult{Request: &nodeReq{ID: int64(id)}}, nil
		})
}

func registerResolvePath(srv *server.MCPServer, b Backend, opts Options) {
	tool := mcp.NewTool("resolve_path",
		mcp.WithDescription("Find the node at a slash-separated name path such as World/Asia/Japan/Tokyo. Read only: unknown names are reported, never created."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated names from the root")),
	)

	kit.RegisterMCPTool(srv, tool, withLogging(opts.Logger, "resolve_path", resolvePathEndpoint(b, opts.Normalize)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			path, _ := req.GetArguments()["path"].(string)
			return &kit.MCPDecodeResult{Request: &resolvePathReq{Path: splitPath(path)}}, nil
		})
}

func registerSearchAliases(srv *server.MCPServer, b Backend, logger *slog.Logger) {
	tool := mcp.NewTool("search_aliases",
		mcp.WithDescription("Search place names in every language, ranked by closeness to the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20, max 200)")),
	)

	kit.RegisterMCPTool(srv, tool, withLogging(logger, "search_aliases", searchEndpoint(b)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			args := req.GetArguments()
			q, _ := args["query"].(string)
			limit, _ := args["limit"].(float64)
			return &kit.MCPDecodeResult{Request: &searchReq{Query: q, Limit: int(limit)}}, nil
		})
}
