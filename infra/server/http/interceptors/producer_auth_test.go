package interceptors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

type fakeAuther struct{}

func (fakeAuther) Inspect(_ context.Context, token string) (*model.Producer, error) {
	switch token {
	case "good":
		return &model.Producer{Subject: "seiscomp", Role: "producer"}, nil
	case "viewer":
		return nil, fmt.Errorf("%w: role viewer", model.ErrForbidden)
	default:
		return nil, model.ErrUnauthenticated
	}
}

func TestProducerAuthInterceptor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen *model.Producer
	h := NewProducerAuthInterceptor(fakeAuther{}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetProducer(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer viewer", http.StatusForbidden},
		{"valid", "Bearer good", http.StatusAccepted},
		{"case insensitive scheme", "bearer good", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/internal/v1/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusAccepted {
				if assert.NotNil(t, seen) {
					assert.Equal(t, "seiscomp", seen.Subject)
				}
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
