package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/auth/oura"
	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/pipeline"
	"github.com/pysugar/oura-twin-sync/internal/ratelimit"
	"github.com/pysugar/oura-twin-sync/internal/store"
	"github.com/pysugar/oura-twin-sync/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	start, end time.Time
	hours      int
}

func (f *stubFetcher) FetchDaily(_ context.Context, id identity.Identity, start, end time.Time) (upstream.DailyBundle, error) {
	f.start, f.end = start, end
	return upstream.DailyBundle{
		Twin: id,
		Data: map[upstream.Source][]upstream.Record{
			upstream.SourceDailySleep: {{"day": "2026-06-14", "score": 83.0}},
		},
	}, nil
}

func (f *stubFetcher) FetchIntraday(_ context.Context, _ identity.Identity, hours int) []upstream.IntradaySample {
	f.hours = hours
	return []upstream.IntradaySample{{Timestamp: time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC), BPM: 61}}
}

type fixture struct {
	router  http.Handler
	flow    *oura.Flow
	tokens  *token.TokenStore
	creds   *token.CredentialStore
	fetcher *stubFetcher
	monitor *monitor.FetchMonitor
}

func newFixture(t *testing.T, adminPassword string) *fixture {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("refresh_token") != "r1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(`{"access_token":"t2","refresh_token":"r2","expires_in":3600,"token_type":"bearer"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	backend := store.NewMemoryBackend()
	creds := token.NewCredentialStore(backend, "http://localhost:8501", logging.Nop())
	tokens := token.NewTokenStore(backend, logging.Nop())
	require.NoError(t, creds.Save(context.Background(), token.Credential{ClientID: "client-abcdefgh", ClientSecret: "shh"}))

	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	ep := oura.Endpoints{AuthURL: "https://cloud.example.test/oauth/authorize", TokenURL: tokenSrv.URL}
	flow := oura.NewFlow(creds, tokens, ep, logging.Nop(),
		oura.WithHTTPClient(tokenSrv.Client()),
		oura.WithClock(func() time.Time { return now }),
	)

	fetcher := &stubFetcher{}
	svc := pipeline.NewService(fetcher, logging.Nop(), pipeline.WithClock(func() time.Time { return now }))
	mon := monitor.NewFetchMonitor()

	limiter := ratelimit.NewFixedWindow(10, time.Minute)
	limiter.CheckAndConsume(context.Background())

	return &fixture{
		router: NewRouter(Deps{
			Flow:          flow,
			Pipeline:      svc,
			Limiter:       limiter,
			Monitor:       mon,
			AdminPassword: adminPassword,
			Logger:        logging.Nop(),
		}),
		flow:    flow,
		tokens:  tokens,
		creds:   creds,
		fetcher: fetcher,
		monitor: mon,
	}
}

func (fx *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz_EchoesRequestID(t *testing.T) {
	fx := newFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))

	rec = fx.do(t, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}

func TestListTwins(t *testing.T) {
	fx := newFixture(t, "")
	require.NoError(t, fx.tokens.Put(context.Background(), identity.TwinA, token.Record{
		AccessToken: "t1", RefreshToken: "r1", Expiry: "2026-06-15T11:00:00Z",
	}))

	rec := fx.do(t, http.MethodGet, "/api/twins", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Twins []oura.TwinStatus `json:"twins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Twins, 2)
	assert.True(t, body.Twins[0].Connected)
	assert.False(t, body.Twins[0].Expired)
	assert.False(t, body.Twins[1].Connected)
}

func TestRefreshTwin(t *testing.T) {
	fx := newFixture(t, "")
	require.NoError(t, fx.tokens.Put(context.Background(), identity.TwinA, token.Record{
		AccessToken: "t1", RefreshToken: "r1", Expiry: "2026-06-15T09:00:00Z",
	}))

	rec := fx.do(t, http.MethodPost, "/api/twins/twin_a/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, ok := fx.tokens.Get(context.Background(), identity.TwinA)
	require.True(t, ok)
	assert.Equal(t, "t2", got.AccessToken)

	rec = fx.do(t, http.MethodPost, "/api/twins/twin_b/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/twins/twin_z/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisconnectTwin_LeavesOtherTwin(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, fx.tokens.Put(ctx, identity.TwinA, token.Record{AccessToken: "a"}))
	require.NoError(t, fx.tokens.Put(ctx, identity.TwinB, token.Record{AccessToken: "b"}))

	rec := fx.do(t, http.MethodPost, "/api/twins/a/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := fx.tokens.Get(ctx, identity.TwinA)
	assert.False(t, ok)
	b, ok := fx.tokens.Get(ctx, identity.TwinB)
	require.True(t, ok)
	assert.Equal(t, "b", b.AccessToken)
}

func TestDaily(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodGet, "/api/twins/twin_a/daily?start=2026-06-01&end=2026-06-14", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report pipeline.TwinReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Connected)
	require.Len(t, report.Table, 1)
	require.NotNil(t, report.Snapshot.SleepScore)
	assert.Equal(t, 83.0, *report.Snapshot.SleepScore)
	assert.Equal(t, "2026-06-01", fx.fetcher.start.Format(dateLayout))
	assert.Equal(t, "2026-06-14", fx.fetcher.end.Format(dateLayout))
}

func TestDaily_RejectsBadDates(t *testing.T) {
	fx := newFixture(t, "")
	for _, q := range []string{"start=06/01/2026", "end=tomorrow", "start=2026-06-10&end=2026-06-01"} {
		rec := fx.do(t, http.MethodGet, "/api/twins/twin_a/daily?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestIntraday(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodGet, "/api/twins/twin_b/intraday", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, 4, fx.fetcher.hours)

	rec = fx.do(t, http.MethodGet, "/api/twins/twin_b/intraday?hours=8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, fx.fetcher.hours)

	rec = fx.do(t, http.MethodGet, "/api/twins/twin_b/intraday?hours=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompare_ReturnsBothTwins(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodGet, "/api/compare", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Twins []pipeline.TwinReport `json:"twins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Twins, 2)
	assert.Equal(t, identity.TwinA, body.Twins[0].Identity)
	assert.Equal(t, identity.TwinB, body.Twins[1].Identity)
}

func TestCredentials_SaveGetClear(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodPut, "/api/credentials", `{"client_id":"new-client-id","client_secret":"new-secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cred := fx.creds.Load(context.Background())
	assert.Equal(t, "new-client-id", cred.ClientID)
	assert.Equal(t, "http://localhost:8501", cred.RedirectURI)

	rec = fx.do(t, http.MethodGet, "/api/credentials", "")
	body := decode(t, rec)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, "new-*****t-id", body["client_id"])
	assert.NotContains(t, rec.Body.String(), "new-secret")

	rec = fx.do(t, http.MethodPut, "/api/credentials", `{"client_id":"only-id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = fx.do(t, http.MethodPut, "/api/credentials", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodDelete, "/api/credentials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fx.creds.IsConfigured(context.Background()))
}

func TestRateLimitStatus(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodGet, "/api/ratelimit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 10, st.Capacity)
	assert.Equal(t, 9, st.Remaining)
}

func TestMonitorStatsAndClear(t *testing.T) {
	fx := newFixture(t, "")
	fx.monitor.Record(monitor.FetchEvent{Twin: "twin_a", Source: "sleep", Outcome: monitor.OutcomeOK, Status: 200})

	rec := fx.do(t, http.MethodGet, "/api/monitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = fx.do(t, http.MethodDelete, "/api/monitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fx.monitor.Recent(0))
}

func TestRoot_InfoAndCallback(t *testing.T) {
	fx := newFixture(t, "")

	rec := fx.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "oura-twin-sync", body["service"])
	assert.Equal(t, true, body["configured"])

	rec = fx.do(t, http.MethodGet, "/?error=access_denied", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestLoginRedirect(t *testing.T) {
	fx := newFixture(t, "")
	rec := fx.do(t, http.MethodGet, "/auth/twin_a/login", "")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "prompt=login")
}

func TestAdminAuth(t *testing.T) {
	fx := newFixture(t, "hunter2")

	rec := fx.do(t, http.MethodGet, "/api/twins", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/twins", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t, "")
	fx.do(t, http.MethodGet, "/healthz", "")

	rec := fx.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "twinsync_http_requests_total")
}

func TestAccessLog_TagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(AccessLog(logging.New(&buf, "debug", "json"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "HTTP request", line["message"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, "unmatched", line["route"])
}
