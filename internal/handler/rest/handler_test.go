package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/quakecast/quake-delivery-service/config"
	"github.com/quakecast/quake-delivery-service/infra/auth"
	"github.com/quakecast/quake-delivery-service/infra/store"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/domain/registry"
	"github.com/quakecast/quake-delivery-service/internal/handler/lp"
	"github.com/quakecast/quake-delivery-service/internal/handler/sse"
	"github.com/quakecast/quake-delivery-service/internal/handler/ws"
	"github.com/quakecast/quake-delivery-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "quake-producer"

	validSubscription = `{
		"endpoint": "https://push.example.com/send/abc",
		"expirationTime": null,
		"keys": {
			"p256dh": "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
			"auth": "tBHItJI5svbpez7KI4CCXg"
		}
	}`

	validEvent = `{
		"publicID": "qc2024abcd",
		"OT": "2024-04-02T23:58:11.123Z",
		"latitude_value": 23.81,
		"longitude_value": "121.56",
		"depth_value": 15.5,
		"magnitude_value": 6.1,
		"eventType": "NEW",
		"text": "Off the east coast of Taiwan"
	}`

	validPick = `{"networkCode":"TW","stationCode":"NACB","timestamp":"2024-04-02T23:58:20.000Z"}`
)

type nopPusher struct{}

func (nopPusher) Push(context.Context, *model.PushSubscription, []byte) model.PushOutcome {
	return model.PushOutcome{Result: model.PushDelivered, StatusCode: http.StatusCreated}
}

type staticKey string

func (k staticKey) PublicKey() string { return string(k) }

type fixture struct {
	hub    *registry.Hub
	store  *store.MemoryStore
	router chi.Router
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := registry.NewHub(registry.WithLogger(logger))
	deliverer := service.NewDeliveryService(hub, 16, 10*time.Millisecond)
	subs := store.NewMemoryStore()
	notifier := service.NewNotifier(subs, nopPusher{}, logger, service.NotifierConfig{Threshold: 5.5, Concurrency: 2})
	t.Cleanup(notifier.Close)

	h := NewHandler(logger, hub, deliverer, service.NewIngestService(hub), notifier, subs, staticKey("BPUBLIC"))
	streams := Streams{
		SSE: sse.NewSSEHandler(logger, deliverer, time.Minute),
		WS:  ws.NewWSHandler(logger, deliverer, time.Minute),
		LP:  lp.NewLPHandler(deliverer, 50*time.Millisecond, 16),
	}
	auther := auth.NewJWTAuther(auth.Config{Secret: testSecret, Issuer: testIssuer, Role: "producer"})

	r := chi.NewRouter()
	RegisterRoutes(r, h, streams, auther, cfg, logger)

	return &fixture{hub: hub, store: subs, router: r}
}

func defaultConfig() *config.Config {
	return &config.Config{HTTP: config.HTTPConfig{RateLimit: 100, InjectRateLimit: 1000}}
}

func (f *fixture) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, role string) http.Header {
	t.Helper()
	token, err := auth.IssueToken(testSecret, testIssuer, "seiscomp", role, time.Minute)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestEvents_Snapshot(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodGet, "/api/v1/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	env, err := f.hub.Ingest(context.Background(), model.ChannelEvent, &model.Event{PublicID: "ev1", Magnitude: 3})
	require.NoError(t, err)
	_, err = f.hub.Ingest(context.Background(), model.ChannelPick, &model.Pick{StationCode: "DAV"})
	require.NoError(t, err)

	rec = f.do(http.MethodGet, "/api/v1/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		Name string         `json:"name"`
		ID   int64          `json:"id"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1, "picks are never cached")
	assert.Equal(t, "EVENT", got[0].Name)
	assert.Equal(t, env.ID, got[0].ID)
	assert.Equal(t, "ev1", got[0].Data["publicID"])
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodPost, "/api/v1/subscriptions", validSubscription, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"created"}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/subscriptions", validSubscription, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"already exists"}`, rec.Body.String())

	exists, err := f.store.Exists(context.Background(), "https://push.example.com/send/abc")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSubscribe_Invalid(t *testing.T) {
	f := newFixture(t, defaultConfig())

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "{"},
		{"missing keys", `{"endpoint":"https://push.example.com/x"}`},
		{"bad endpoint", `{"endpoint":"not a url","keys":{"p256dh":"abcd","auth":"abcd"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/subscriptions", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubscribe_StoreUnavailable(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.store.SetAvailable(false)

	rec := f.do(http.MethodPost, "/api/v1/subscriptions", validSubscription, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubscribe_RateLimited(t *testing.T) {
	cfg := defaultConfig()
	cfg.HTTP.RateLimit = 1
	f := newFixture(t, cfg)

	rec := f.do(http.MethodPost, "/api/v1/subscriptions", validSubscription, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/subscriptions", validSubscription, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVAPIDKey(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodGet, "/api/v1/subscriptions/vapid-key", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"BPUBLIC"}`, rec.Body.String())
}

func TestInject_Auth(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodPost, "/internal/v1/events", validEvent, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/internal/v1/events", validEvent, bearer(t, "viewer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, f.hub.Snapshot())
}

func TestInject_Event(t *testing.T) {
	f := newFixture(t, defaultConfig())

	live := make(chan int64, 1)
	f.hub.Subscribe(registry.ListenerFunc(func(env *event.Envelope) { live <- env.ID }))

	rec := f.do(http.MethodPost, "/internal/v1/events", validEvent, bearer(t, "producer"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, body.ID, <-live)

	snapshot := f.hub.Snapshot()
	require.Len(t, snapshot, 1)
	ev, ok := snapshot[0].Event()
	require.True(t, ok)
	assert.Equal(t, "qc2024abcd", ev.PublicID)
	assert.InDelta(t, 121.56, ev.Longitude, 1e-9)
}

func TestInject_Pick(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodPost, "/internal/v1/picks", validPick, bearer(t, "producer"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Empty(t, f.hub.Snapshot())
	assert.Positive(t, f.hub.Stats().LastID)
}

func TestInject_InvalidBody(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodPost, "/internal/v1/events", `{"publicID":"x"}`, bearer(t, "producer"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/internal/v1/picks", validEvent, bearer(t, "producer"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, f.hub.Stats().LastID)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "up", body.Store)
	assert.Equal(t, 5.5, body.Threshold)
	assert.Equal(t, registry.DefaultCacheCapacity, body.Hub.CacheSize)

	f.store.SetAvailable(false)
	rec = f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Store)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPollRoute(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rec := f.do(http.MethodGet, "/api/v1/poll", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
