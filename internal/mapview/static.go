package mapview

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/cityweather/internal/httputil"
	"github.com/lox/cityweather/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.mapbox.com"
	DefaultWidth   = 600
	DefaultHeight  = 400
)

// ImageCache stores rendered map images by key.
type ImageCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte) error
}

// StaticMaps renders handles as PNG images.
type StaticMaps struct {
	token      string
	baseURL    string
	width      int
	height     int
	client     *http.Client
	cache      ImageCache
	newBackOff func() backoff.BackOff
}

func NewStaticMaps(token, baseURL string, cache ImageCache) *StaticMaps {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &StaticMaps{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		width:   DefaultWidth,
		height:  DefaultHeight,
		client:  httputil.NewClient(),
		cache:   cache,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 20 * time.Second
			return bo
		},
	}
}

// URL returns the static image URL for h.
func (m *StaticMaps) URL(h Handle) string {
	return fmt.Sprintf("%s/styles/v1/%s/static/%s,%s,%d/%dx%d?access_token=%s",
		m.baseURL, h.Style,
		strconv.FormatFloat(h.Center.Lon, 'f', -1, 64),
		strconv.FormatFloat(h.Center.Lat, 'f', -1, 64),
		h.Zoom, m.width, m.height, m.token)
}

// CacheKey identifies the rendered image for h.
func CacheKey(h Handle) string {
	key := fmt.Sprintf("map_%s_%s_%s_%d", h.Style,
		strconv.FormatFloat(h.Center.Lat, 'f', 4, 64),
		strconv.FormatFloat(h.Center.Lon, 'f', 4, 64),
		h.Zoom)
	return strings.NewReplacer("/", "_", ".", "p").Replace(key)
}

// Image returns the PNG for h, from the cache when possible. Throttling and
// server errors are retried with exponential backoff; other failures are not.
func (m *StaticMaps) Image(ctx context.Context, h Handle) ([]byte, error) {
	key := CacheKey(h)
	if m.cache != nil {
		if data, ok := m.cache.Get(key); ok {
			metrics.MapImageFetches.WithLabelValues("cache").Inc()
			return data, nil
		}
	}
	if m.token == "" {
		return nil, fmt.Errorf("map image: MAPBOX_TOKEN not set")
	}

	u := m.URL(h)
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch map: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch map: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch map: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(m.newBackOff(), ctx)); err != nil {
		metrics.MapImageFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.MapImageFetches.WithLabelValues("provider").Inc()

	if m.cache != nil {
		if err := m.cache.Set(key, body); err != nil {
			log.Printf("mapview: cache map image %s: %v", key, err)
		}
	}
	return body, nil
}
