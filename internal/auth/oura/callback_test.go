package oura

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(flow *Flow) http.Handler {
	r := chi.NewRouter()
	r.Get("/auth/{twin}/login", HandleLogin(flow))
	r.Get("/auth/callback", HandleCallback(flow))
	return r
}

func TestHandleLogin_Redirects(t *testing.T) {
	fx := newFlowFixture(t)
	router := newAuthRouter(fx.flow)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/b/login", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, GenerateState("abc", identity.TwinB), loc.Query().Get("state"))
}

func TestHandleLogin_Errors(t *testing.T) {
	fx := newFlowFixture(t)
	router := newAuthRouter(fx.flow)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/twin_c/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, fx.creds.Clear(context.Background()))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/a/login", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestHandleCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "success", query: "code=XYZ&state=" + GenerateState("abc", identity.TwinA), wantStatus: http.StatusOK, wantBody: "Twin A is now connected"},
		{name: "reused code", query: "code=USED&state=" + GenerateState("abc", identity.TwinA), wantStatus: http.StatusBadRequest, wantBody: "already used"},
		{name: "bad state", query: "code=XYZ&state=twin_a_bogus", wantStatus: http.StatusBadRequest, wantBody: "state parameter"},
		{name: "missing code", query: "state=" + GenerateState("abc", identity.TwinA), wantStatus: http.StatusBadRequest, wantBody: "Missing code"},
		{name: "denied", query: "error=access_denied&error_description=User+denied", wantStatus: http.StatusBadRequest, wantBody: "User denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFlowFixture(t)
			router := newAuthRouter(fx.flow)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		})
	}
}

func TestStartCallbackServer_DeliversResult(t *testing.T) {
	fx := newFlowFixture(t)

	// Reserve a free port, then hand it to the callback server.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	results, cleanup, err := fx.flow.StartCallbackServer("http://" + addr + "/cb")
	require.NoError(t, err)
	defer cleanup()

	resp, err := http.Get(fmt.Sprintf("http://%s/cb?code=XYZ&state=%s", addr, GenerateState("abc", identity.TwinB)))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.Equal(t, identity.TwinB, res.Twin)
	case <-time.After(5 * time.Second):
		t.Fatal("no callback result")
	}

	_, ok := fx.tokens.Get(context.Background(), identity.TwinB)
	assert.True(t, ok)
}
