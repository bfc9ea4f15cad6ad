package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/kit"
)

// Options configure the router.
type Options struct {
	// Normalize must be the normalizer the data was imported with.
	Normalize geo.Normalizer
	Logger    *slog.Logger
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

// NewRouter returns an http.Handler with all geotree query routes.
func NewRouter(b Backend, opts Options) http.Handler {
	if opts.Normalize == nil {
		opts.Normalize = geo.NormalizeLowercaseASCII
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &handler{
		getNode:     withLogging(opts.Logger, "get_node", getNodeEndpoint(b)),
		children:    withLogging(opts.Logger, "children", childrenEndpoint(b)),
		aliases:     withLogging(opts.Logger, "aliases", aliasesEndpoint(b)),
		resolvePath: withLogging(opts.Logger, "resolve_path", resolvePathEndpoint(b, opts.Normalize)),
		search:      withLogging(opts.Logger, "search", searchEndpoint(b)),
		b:           b,
	}

	mux.HandleFunc("GET /v1/nodes/{id}", instrument("get_node", h.handleGetNode))
	mux.HandleFunc("GET /v1/nodes/{id}/children", instrument("children", h.handleChildren))
	mux.HandleFunc("GET /v1/nodes/{id}/aliases", instrument("aliases", h.handleAliases))
	mux.HandleFunc("GET /v1/resolve", instrument("resolve_path", h.handleResolve))
	mux.HandleFunc("GET /v1/search", instrument("search", h.handleSearch))
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	if opts.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return cors(kit.HTTPContext(mux))
}

type handler struct {
	getNode     kit.Endpoint
	children    kit.Endpoint
	aliases     kit.Endpoint
	resolvePath kit.Endpoint
	search      kit.Endpoint
	b           Backend
}

func withLogging(logger *slog.Logger, name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(logger, name))(e)
}

// --- nodes ---

func (h *handler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	h.serveNode(w, r, h.getNode)
}

func (h *handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	h.serveNode(w, r, h.children)
}

func (h *handler) handleAliases(w http.ResponseWriter, r *http.Request) {
	h.serveNode(w, r, h.aliases)
}

func (h *handler) serveNode(w http.ResponseWriter, r *http.Request, e kit.Endpoint) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	resp, err := e(r.Context(), &nodeReq{ID: id})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- resolve ---

func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	resp, err := h.resolvePath(r.Context(), &resolvePathReq{Path: splitPath(path)})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- search ---

func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	resp, err := h.search(r.Context(), &searchReq{Query: q.Get("q"), Limit: limit})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status string `json:"status"`
	Nodes  int    `json:"nodes"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.b.CountNodes(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Nodes: n})
}

// --- helpers ---

// splitPath splits "World/Asia/Japan" on slashes, dropping empty segments.
func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeEndpointError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, geo.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+kit.RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
