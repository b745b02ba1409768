package push

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Browser generated key material; the provider only needs it to be a valid P-256 point.
const (
	testP256dh = "BNNL5ZaTfK81qhXOx23-wewhigUeFb632jN6LvRWCFH1ubQr77FE_9qV1FuojuRmHP42zmf34rXgW80OvUVDgTk"
	testAuth   = "zqbxT6JKstKSY9JKibZLSQ"
)

func newProvider(t *testing.T) *WebPush {
	t.Helper()
	p, err := New(Config{
		Subscriber:    "alerts@example.com",
		Urgency:       "high",
		Timeout:       time.Second,
		RatePerSecond: 1000,
		Burst:         100,
	}, slog.Default())
	require.NoError(t, err)
	return p
}

func pushService(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.Contains(t, r.Header.Get("Authorization"), "vapid t=")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func subscriptionFor(endpoint string) *model.PushSubscription {
	return &model.PushSubscription{
		Endpoint: endpoint,
		Keys:     model.PushKeys{P256dh: testP256dh, Auth: testAuth},
	}
}

func TestPush_Classification(t *testing.T) {
	tests := []struct {
		status int
		want   model.PushResult
	}{
		{http.StatusCreated, model.PushDelivered},
		{http.StatusOK, model.PushDelivered},
		{http.StatusBadRequest, model.PushPermanent},
		{http.StatusNotFound, model.PushPermanent},
		{http.StatusGone, model.PushPermanent},
		{http.StatusForbidden, model.PushTransient},
		{http.StatusTooManyRequests, model.PushTransient},
		{http.StatusServiceUnavailable, model.PushTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := pushService(t, tt.status)
			p := newProvider(t)

			out := p.Push(context.Background(), subscriptionFor(srv.URL+"/send/abc"), []byte(`{"title":"t"}`))
			assert.Equal(t, tt.want, out.Result)
			assert.Equal(t, tt.status, out.StatusCode)
		})
	}
}

func TestPush_TransportErrorIsTransient(t *testing.T) {
	srv, _ := pushService(t, http.StatusCreated)
	endpoint := srv.URL + "/send/abc"
	srv.Close()

	out := newProvider(t).Push(context.Background(), subscriptionFor(endpoint), []byte(`{}`))
	assert.Equal(t, model.PushTransient, out.Result)
	assert.Error(t, out.Err)
}

func TestPush_InvalidEndpointIsPermanent(t *testing.T) {
	out := newProvider(t).Push(context.Background(), subscriptionFor("not a url"), []byte(`{}`))
	assert.Equal(t, model.PushPermanent, out.Result)
}

func TestPush_BreakerOpensPerHost(t *testing.T) {
	failing, failingCalls := pushService(t, http.StatusBadGateway)
	healthy, _ := pushService(t, http.StatusCreated)
	p := newProvider(t)

	for i := 0; i < 10; i++ {
		out := p.Push(context.Background(), subscriptionFor(failing.URL+"/x"), []byte(`{}`))
		require.Equal(t, model.PushTransient, out.Result)
	}

	out := p.Push(context.Background(), subscriptionFor(failing.URL+"/x"), []byte(`{}`))
	assert.Equal(t, model.PushTransient, out.Result)
	assert.ErrorIs(t, out.Err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(10), failingCalls.Load())

	out = p.Push(context.Background(), subscriptionFor(healthy.URL+"/y"), []byte(`{}`))
	assert.Equal(t, model.PushDelivered, out.Result)
}

func TestPush_PermanentDoesNotTripBreaker(t *testing.T) {
	srv, calls := pushService(t, http.StatusGone)
	p := newProvider(t)

	for i := 0; i < 15; i++ {
		out := p.Push(context.Background(), subscriptionFor(srv.URL+"/x"), []byte(`{}`))
		assert.Equal(t, model.PushPermanent, out.Result)
	}
	assert.Equal(t, int32(15), calls.Load())
}

func TestPush_CancelledContext(t *testing.T) {
	p, err := New(Config{RatePerSecond: 0.001, Burst: 1}, slog.Default())
	require.NoError(t, err)
	srv, _ := pushService(t, http.StatusCreated)

	// consume the only token
	_ = p.Push(context.Background(), subscriptionFor(srv.URL+"/x"), []byte(`{}`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	out := p.Push(ctx, subscriptionFor(srv.URL+"/x"), []byte(`{}`))
	assert.Equal(t, model.PushTransient, out.Result)
}

func TestNew_GeneratesEphemeralKeys(t *testing.T) {
	p := newProvider(t)
	assert.NotEmpty(t, p.PublicKey())
}
