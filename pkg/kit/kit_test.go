package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				trace = append(trace, name)
				return next(ctx, req)
			}
		}
	}
	e := Chain(mw("a"), mw("b"), mw("c"))(func(context.Context, any) (any, error) {
		trace = append(trace, "endpoint")
		return "ok", nil
	})

	resp, err := e(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a", "b", "c", "endpoint"}, trace)
}

func TestHTTPContext(t *testing.T) {
	var gotID, gotTransport string
	h := HTTPContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
		gotTransport = GetTransport(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "http", gotTransport)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "client-42", gotID)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	boom := errors.New("boom")
	e := Logging(logger, "search")(func(context.Context, any) (any, error) { return nil, boom })

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "r1")
	_, err := e(ctx, nil)
	assert.ErrorIs(t, err, boom)

	out := buf.String()
	assert.True(t, strings.Contains(out, "endpoint=search"), out)
	assert.Contains(t, out, "transport=mcp")
	assert.Contains(t, out, "request_id=r1")
	assert.Contains(t, out, "error=boom")
}
