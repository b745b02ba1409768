package interceptors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

type contextKey string

const (
	// ProducerContextKey is the key used to store/retrieve the Producer from context
	ProducerContextKey contextKey = "producer"
)

// NewProducerAuthInterceptor guards the restricted injection routes.
func NewProducerAuthInterceptor(auther service.Auther, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH] Validate identity before the body is read
			producer, err := auther.Inspect(r.Context(), bearerToken(r))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, model.ErrForbidden) {
					status = http.StatusForbidden
				} else {
					w.Header().Set("WWW-Authenticate", `Bearer realm="quake-delivery"`)
				}
				logger.Warn("PRODUCER_AUTH_REJECTED",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("remote", r.RemoteAddr),
					slog.Any("err", err),
				)
				http.Error(w, http.StatusText(status), status)
				return
			}

			// [ENRICHMENT] Inject the identity into the context for downstream handlers
			ctx := context.WithValue(r.Context(), ProducerContextKey, producer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetProducer is a helper to extract the identity from context safely.
func GetProducer(ctx context.Context) (*model.Producer, bool) {
	p, ok := ctx.Value(ProducerContextKey).(*model.Producer)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
