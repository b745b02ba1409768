package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/metrics"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const breakerName = "geonames"

var (
	// ErrNoPlace is returned when the provider knows no named place near the point.
	ErrNoPlace = errors.New("geo: no nearby place")
	// ErrProvider wraps error objects returned in a 200 response body.
	ErrProvider = errors.New("geo: provider error")
)

type Config struct {
	BaseURL   string
	Username  string
	Timeout   time.Duration
	CacheSize int
}

// Client queries a GeoNames compatible findNearbyPlaceName endpoint.
type Client struct {
	baseURL  string
	username string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	cache    *lru.Cache[string, *model.Place]
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("geo: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("geo: base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	// [MEMORY_MANAGEMENT] Aftershocks cluster; nearby coordinates share a cache slot.
	cache, err := lru.New[string, *model.Place](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geo: cache: %w", err)
	}

	c := &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		logger:   logger,
		tracer:   otel.Tracer("github.com/quakecast/quake-delivery-service/infra/client/geo"),
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An empty result is a valid answer, not a provider fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoPlace)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("CIRCUIT_BREAKER_STATE_CHANGED",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return c, nil
}

// CacheKey buckets coordinates to three decimals (roughly 100 m).
func CacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 3, 64) + "," + strconv.FormatFloat(lon, 'f', 3, 64)
}

// NearestPlace returns the first place the provider lists for the point.
func (c *Client) NearestPlace(ctx context.Context, lat, lon float64) (*model.Place, error) {
	key := CacheKey(lat, lon)
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	ctx, span := c.tracer.Start(ctx, "geo.nearest_place", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
	))
	defer span.End()

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, lat, lon)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	place := res.(*model.Place)
	c.cache.Add(key, place)
	return place, nil
}

type nearbyResponse struct {
	Geonames []struct {
		Name        string `json:"name"`
		AdminName1  string `json:"adminName1"`
		CountryName string `json:"countryName"`
		Lat         string `json:"lat"`
		Lng         string `json:"lng"`
	} `json:"geonames"`
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*model.Place, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("username", c.username)
	q.Set("maxRows", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/findNearbyPlaceNameJSON?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo: unexpected status %d", resp.StatusCode)
	}

	var body nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geo: decode: %w", err)
	}
	if body.Status != nil {
		return nil, fmt.Errorf("%w: %s (%d)", ErrProvider, body.Status.Message, body.Status.Value)
	}
	if len(body.Geonames) == 0 {
		return nil, ErrNoPlace
	}

	// [TIE_BREAK] Provider order decides; the first row is the nearest.
	g := body.Geonames[0]
	pLat, errLat := strconv.ParseFloat(g.Lat, 64)
	pLon, errLon := strconv.ParseFloat(g.Lng, 64)
	if errLat != nil || errLon != nil {
		return nil, fmt.Errorf("geo: malformed coordinates %q,%q", g.Lat, g.Lng)
	}

	return &model.Place{
		Name:      g.Name,
		Region:    g.AdminName1,
		Country:   g.CountryName,
		Latitude:  pLat,
		Longitude: pLon,
	}, nil
}
