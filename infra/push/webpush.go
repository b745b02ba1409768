package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// errRetryableStatus marks responses that count against the push service's breaker.
var errRetryableStatus = errors.New("push: retryable status")

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	Urgency         string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
}

// WebPush sends encrypted Web Push messages signed with the service's VAPID keys.
type WebPush struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// [ISOLATION] One breaker per push service host: an outage at one vendor
	// must not stall deliveries to the others.
	breakers *lru.Cache[string, *gobreaker.CircuitBreaker]
}

// New builds the provider. When no VAPID pair is configured an ephemeral one is
// generated; subscriptions made against it stop working after a restart.
func New(cfg Config, logger *slog.Logger) (*WebPush, error) {
	if cfg.VAPIDPublicKey == "" && cfg.VAPIDPrivateKey == "" {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("push: generate vapid keys: %w", err)
		}
		cfg.VAPIDPrivateKey, cfg.VAPIDPublicKey = priv, pub
		logger.Warn("VAPID_KEYS_EPHEMERAL", "public_key", pub)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3600
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	breakers, err := lru.New[string, *gobreaker.CircuitBreaker](64)
	if err != nil {
		return nil, err
	}

	return &WebPush{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:   logger,
		breakers: breakers,
	}, nil
}

// PublicKey is handed to browsers as applicationServerKey.
func (p *WebPush) PublicKey() string { return p.cfg.VAPIDPublicKey }

// Push delivers payload and classifies the outcome. It never returns a Go error:
// every failure is folded into the outcome.
func (p *WebPush) Push(ctx context.Context, sub *model.PushSubscription, payload []byte) model.PushOutcome {
	if err := p.limiter.Wait(ctx); err != nil {
		return model.PushOutcome{Result: model.PushTransient, Err: err}
	}

	cb, err := p.breaker(sub.Endpoint)
	if err != nil {
		// An unparsable endpoint will never accept a delivery.
		return model.PushOutcome{Result: model.PushPermanent, Err: err}
	}

	res, err := cb.Execute(func() (interface{}, error) {
		return p.send(ctx, sub, payload)
	})
	status, _ := res.(int)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return model.PushOutcome{Result: model.PushTransient, Err: err}
	case err != nil:
		return model.PushOutcome{Result: model.PushTransient, StatusCode: status, Err: err}
	}

	return Classify(status)
}

func (p *WebPush) send(ctx context.Context, sub *model.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      p.http,
		Subscriber:      p.cfg.Subscriber,
		TTL:             p.cfg.TTL,
		Urgency:         webpush.Urgency(p.cfg.Urgency),
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Classify maps a push service response status to a delivery result.
func Classify(status int) model.PushOutcome {
	switch {
	case status >= 200 && status < 300:
		return model.PushOutcome{Result: model.PushDelivered, StatusCode: status}
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusGone:
		return model.PushOutcome{
			Result:     model.PushPermanent,
			StatusCode: status,
			Err:        fmt.Errorf("push: endpoint rejected with %d", status),
		}
	default:
		return model.PushOutcome{
			Result:     model.PushTransient,
			StatusCode: status,
			Err:        fmt.Errorf("push: unexpected status %d", status),
		}
	}
}

func (p *WebPush) breaker(endpoint string) (*gobreaker.CircuitBreaker, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("push: invalid endpoint %q", endpoint)
	}

	if cb, ok := p.breakers.Get(u.Host); ok {
		return cb, nil
	}

	name := "push:" + u.Host
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("CIRCUIT_BREAKER_STATE_CHANGED",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	// The first breaker wins when two deliveries race on a new host.
	if existing, ok, _ := p.breakers.PeekOrAdd(u.Host, cb); ok {
		return existing, nil
	}
	return cb, nil
}
