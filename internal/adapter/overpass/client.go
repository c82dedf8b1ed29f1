// Package overpass queries an Overpass API endpoint for aid-related points
// of interest around a coordinate.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"github.com/reliefmap/disaster-resource-service/internal/observability"
)

// ErrUpstream reports that every query attempt against the Overpass service
// failed. Callers surface it as the "Failed to query OSM" outcome.
var ErrUpstream = errors.New("failed to query OSM")

const (
	maxAttempts  = 3
	backoffUnit  = time.Second
	queryTimeout = 25 // seconds, embedded in the Overpass QL header
)

// Client issues radius queries for amenity-tagged nodes, ways, and relations.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	backoffUnit time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an Overpass client. The timeout bounds each HTTP attempt;
// the retry loop adds a linear backoff between attempts on top of it.
func NewClient(endpoint string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: timeout},
		backoffUnit: backoffUnit,
		metrics:     metrics,
		logger:      logger,
	}
}

// QueryNearby returns raw map elements tagged with one of the aid amenity
// categories within radiusMeters of the coordinate. It retries transient
// failures up to 3 attempts total with a linear backoff (attempt × 1s) and
// returns ErrUpstream once attempts are exhausted.
func (c *Client) QueryNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]domain.Element, error) {
	query := buildQuery(lat, lon, radiusMeters)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		elements, err := c.doQuery(ctx, query)
		if err == nil {
			c.metrics.UpstreamRequests.WithLabelValues("success").Inc()
			return elements, nil
		}
		lastErr = err
		c.metrics.UpstreamRequests.WithLabelValues("error").Inc()

		if attempt == maxAttempts {
			c.logger.Error("overpass query failed", "attempts", maxAttempts, "error", err)
			break
		}

		c.metrics.UpstreamRetries.Inc()
		c.logger.Warn("overpass query retry", "attempt", attempt, "error", err)
		if !sleepWithContext(ctx, time.Duration(attempt)*c.backoffUnit) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

func (c *Client) doQuery(ctx context.Context, query string) ([]domain.Element, error) {
	start := time.Now()
	defer func() {
		c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Elements []domain.Element `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Elements, nil
}

// buildQuery renders the Overpass QL radius query for all aid amenity
// categories. "out center" makes ways and relations carry a center point.
func buildQuery(lat, lon float64, radiusMeters int) string {
	labels := make([]string, len(domain.AmenityTypes))
	for i, t := range domain.AmenityTypes {
		labels[i] = string(t)
	}
	amenities := strings.Join(labels, "|")

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", queryTimeout)
	for _, kind := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&b, "  %s[\"amenity\"~\"%s\"](around:%d,%f,%f);\n", kind, amenities, radiusMeters, lat, lon)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
