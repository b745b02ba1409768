package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/quakecast/quake-delivery-service/internal/domain/event"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreshold  = 5.5
	NotificationTitle = "Earthquake Alert"
)

// SubscriptionStore persists push subscriptions keyed by endpoint.
type SubscriptionStore interface {
	Available(ctx context.Context) bool
	Exists(ctx context.Context, endpoint string) (bool, error)
	// Create returns model.ErrDuplicateSubscription when the endpoint is already stored.
	Create(ctx context.Context, sub *model.PushSubscription) error
	FindAll(ctx context.Context) ([]*model.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

// Pusher delivers one encrypted payload to one subscription and classifies the result.
type Pusher interface {
	Push(ctx context.Context, sub *model.PushSubscription, payload []byte) model.PushOutcome
}

// Notifications is the contract used by the HTTP layer and the hub.
type Notifications interface {
	Register(ctx context.Context, sub *model.PushSubscription) (model.RegisterStatus, error)
	MaybeNotify(ctx context.Context, ev *model.Event) (model.DispatchReport, error)
	Notify(env *event.Envelope)
	Threshold() float64
	SetThreshold(v float64)
	Close()
}

var _ Notifications = (*Notifier)(nil)

type NotifierConfig struct {
	Threshold       float64
	Concurrency     int
	DispatchTimeout time.Duration
}

type Notifier struct {
	store  SubscriptionStore
	pusher Pusher
	logger *slog.Logger
	tracer trace.Tracer

	threshold       atomic.Uint64 // float64 bits, hot reloadable
	concurrency     int
	dispatchTimeout time.Duration

	// [BACKGROUND_DISPATCH] Notify returns immediately; Close drains in-flight runs.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotifier(store SubscriptionStore, pusher Pusher, logger *slog.Logger, cfg NotifierConfig) *Notifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		store:           store,
		pusher:          pusher,
		logger:          logger,
		tracer:          otel.Tracer("github.com/quakecast/quake-delivery-service/internal/service"),
		concurrency:     cfg.Concurrency,
		dispatchTimeout: cfg.DispatchTimeout,
		ctx:             ctx,
		cancel:          cancel,
	}
	n.SetThreshold(cfg.Threshold)
	return n
}

func (n *Notifier) Threshold() float64 { return math.Float64frombits(n.threshold.Load()) }

func (n *Notifier) SetThreshold(v float64) {
	old := math.Float64frombits(n.threshold.Swap(math.Float64bits(v)))
	if old != v {
		n.logger.Info("NOTIFY_THRESHOLD_SET", "threshold", v, "previous", old)
	}
}

// Register stores sub unless its endpoint is already known.
func (n *Notifier) Register(ctx context.Context, sub *model.PushSubscription) (model.RegisterStatus, error) {
	if !n.store.Available(ctx) {
		return 0, model.ErrStoreUnavailable
	}

	exists, err := n.store.Exists(ctx, sub.Endpoint)
	if err != nil {
		return 0, fmt.Errorf("lookup subscription: %w", err)
	}
	if exists {
		return model.RegisterExists, nil
	}

	if err := n.store.Create(ctx, sub); err != nil {
		// [RACE] A concurrent registration of the same endpoint won.
		if errors.Is(err, model.ErrDuplicateSubscription) {
			return model.RegisterExists, nil
		}
		return 0, fmt.Errorf("create subscription: %w", err)
	}

	n.logger.Info("PUSH_SUBSCRIPTION_REGISTERED", "endpoint", sub.Endpoint)
	return model.RegisterCreated, nil
}

// BuildNotification renders the alert text. The enriched place is preferred; the
// upstream description is used when enrichment was unavailable.
func BuildNotification(ev *model.Event) model.Notification {
	where := ev.Place
	if where == "" || where == model.PlaceUnavailable {
		where = ev.Text
	}
	return model.Notification{
		Title: NotificationTitle,
		Body:  fmt.Sprintf("Magnitude %s in %s", strconv.FormatFloat(ev.Magnitude, 'f', -1, 64), where),
	}
}

// MaybeNotify pushes ev to every subscription when it reaches the magnitude threshold.
// Permanent endpoint failures prune the subscription; transient ones keep it.
func (n *Notifier) MaybeNotify(ctx context.Context, ev *model.Event) (model.DispatchReport, error) {
	ctx, span := n.tracer.Start(ctx, "notifier.maybe_notify", trace.WithAttributes(
		attribute.String("public_id", ev.PublicID),
		attribute.Float64("magnitude", ev.Magnitude),
	))
	defer span.End()

	report, err := n.dispatch(ctx, ev)
	metrics.Notifications.WithLabelValues(report.Status.String()).Inc()
	span.SetAttributes(
		attribute.String("status", report.Status.String()),
		attribute.Int("attempted", report.Attempted),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func (n *Notifier) dispatch(ctx context.Context, ev *model.Event) (model.DispatchReport, error) {
	if ev.Magnitude < n.Threshold() {
		return model.DispatchReport{Status: model.DispatchSkipped}, nil
	}

	if !n.store.Available(ctx) {
		n.logger.Warn("NOTIFY_STORE_UNAVAILABLE", "public_id", ev.PublicID)
		return model.DispatchReport{Status: model.DispatchStoreUnavailable}, nil
	}

	subs, err := n.store.FindAll(ctx)
	if err != nil {
		if errors.Is(err, model.ErrStoreUnavailable) {
			n.logger.Warn("NOTIFY_STORE_UNAVAILABLE", "public_id", ev.PublicID, "err", err)
			return model.DispatchReport{Status: model.DispatchStoreUnavailable}, nil
		}
		return model.DispatchReport{Status: model.DispatchStoreUnavailable}, fmt.Errorf("list subscriptions: %w", err)
	}

	payload, err := json.Marshal(BuildNotification(ev))
	if err != nil {
		return model.DispatchReport{}, fmt.Errorf("encode notification: %w", err)
	}

	var delivered, pruned, failed atomic.Int64

	// [FAN_OUT] Each subscription is independent: one failure never aborts the others.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			outcome := n.pusher.Push(gCtx, sub, payload)
			metrics.PushResults.WithLabelValues(outcome.Result.String()).Inc()

			switch outcome.Result {
			case model.PushDelivered:
				delivered.Add(1)
			case model.PushPermanent:
				if err := n.store.Delete(gCtx, sub.Endpoint); err != nil {
					n.logger.Error("PUSH_SUBSCRIPTION_PRUNE_FAILED", "endpoint", sub.Endpoint, "err", err)
					failed.Add(1)
					return nil
				}
				metrics.PrunedSubscriptions.Inc()
				n.logger.Info("PUSH_SUBSCRIPTION_PRUNED",
					"endpoint", sub.Endpoint,
					"status", outcome.StatusCode,
				)
				pruned.Add(1)
			default:
				n.logger.Warn("PUSH_DELIVERY_FAILED",
					"endpoint", sub.Endpoint,
					"status", outcome.StatusCode,
					"err", outcome.Err,
				)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := model.DispatchReport{
		Status:    model.DispatchDispatched,
		Attempted: len(subs),
		Delivered: int(delivered.Load()),
		Pruned:    int(pruned.Load()),
		Failed:    int(failed.Load()),
	}
	n.logger.Info("NOTIFY_DISPATCHED",
		"public_id", ev.PublicID,
		"magnitude", ev.Magnitude,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"pruned", report.Pruned,
		"failed", report.Failed,
	)
	return report, nil
}

// Notify is the hub listener. It must not block ingestion, so each qualifying
// EVENT is dispatched on its own tracked goroutine.
func (n *Notifier) Notify(env *event.Envelope) {
	ev, ok := env.Event()
	if !ok {
		return
	}
	// [GATE] Cheap pre-check keeps PICK-rate traffic from spawning goroutines.
	if ev.Magnitude < n.Threshold() {
		metrics.Notifications.WithLabelValues(model.DispatchSkipped.String()).Inc()
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(n.ctx, n.dispatchTimeout)
		defer cancel()

		if _, err := n.MaybeNotify(ctx, ev); err != nil {
			n.logger.Error("NOTIFY_FAILED", "event_id", env.ID, "public_id", ev.PublicID, "err", err)
		}
	}()
}

// Close stops accepting work, cancels in-flight dispatches and waits for them.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
}

// KeyProvider exposes the VAPID public key browsers subscribe with.
type KeyProvider interface {
	PublicKey() string
}
