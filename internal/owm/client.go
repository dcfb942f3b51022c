// Package owm fetches current weather from OpenWeatherMap.
package owm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lox/cityweather/internal/httputil"
	"github.com/lox/cityweather/internal/metrics"
	"github.com/lox/cityweather/internal/models"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	Source         = "openweathermap"
)

var (
	ErrInvalidQuery = errors.New("invalid location query")
	ErrCircuitOpen  = errors.New("weather provider circuit open")
)

// PayloadRecorder keeps raw provider responses.
type PayloadRecorder interface {
	RecordPayload(source, query string, payload []byte) (int64, error)
}

// Client fetches current conditions. Every call is a single attempt.
type Client struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	recorder PayloadRecorder
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.NewClient(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        Source,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("owm: circuit %s %s -> %s", name, from, to)
			},
		}),
	}
}

// WithRecorder stores every successful response body through r.
func (c *Client) WithRecorder(r PayloadRecorder) *Client {
	c.recorder = r
	return c
}

// Params returns the query parameters for q: either q=<city> or lat and lon,
// plus appid.
func (c *Client) Params(q models.LocationQuery) (url.Values, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	values := url.Values{}
	if q.IsCity() {
		values.Set("q", q.City)
	} else {
		values.Set("lat", strconv.FormatFloat(q.Coords.Lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(q.Coords.Lon, 'f', -1, 64))
	}
	values.Set("appid", c.apiKey)
	return values, nil
}

// Current returns the current weather for q.
func (c *Client) Current(ctx context.Context, q models.LocationQuery) (*models.WeatherSnapshot, error) {
	values, err := c.Params(q)
	if err != nil {
		return nil, err
	}

	kind := "city"
	if !q.IsCity() {
		kind = "coords"
	}
	start := time.Now()
	body, status, err := c.do(ctx, c.baseURL+"?"+values.Encode())
	metrics.WeatherAPILatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WeatherAPICallsTotal.WithLabelValues(kind, status).Inc()
		return nil, fmt.Errorf("fetch weather for %s: %w", q, err)
	}

	snap, err := Decode(body)
	if err != nil {
		metrics.WeatherAPICallsTotal.WithLabelValues(kind, "decode_error").Inc()
		return nil, fmt.Errorf("decode weather for %s: %w", q, err)
	}
	metrics.WeatherAPICallsTotal.WithLabelValues(kind, "ok").Inc()

	if c.recorder != nil {
		if _, err := c.recorder.RecordPayload(Source, q.String(), body); err != nil {
			log.Printf("owm: record payload for %s: %v", q, err)
		}
	}
	return snap, nil
}

// Decode parses a current-weather response body, as returned by the API or
// kept by a PayloadRecorder.
func Decode(body []byte) (*models.WeatherSnapshot, error) {
	var snap models.WeatherSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// do runs the request through the breaker. Transport errors, throttling and
// server errors count against the breaker; client errors such as an unknown
// city do not.
func (c *Client) do(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "request_error", fmt.Errorf("create request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, "circuit_open", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, "error", err
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "error", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, strconv.Itoa(resp.StatusCode), fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, "ok", nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
