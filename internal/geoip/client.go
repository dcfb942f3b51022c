// Package geoip locates a client from its IP address using ip-api.com.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/lox/cityweather/internal/httputil"
	"github.com/lox/cityweather/internal/models"
)

const DefaultBaseURL = "http://ip-api.com/json"

var ErrPrivateAddress = errors.New("address is not publicly routable")

// Client looks up the approximate position of an IP address.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httputil.NewClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Lookup returns the position for ip. Loopback, private and unspecified
// addresses fail with ErrPrivateAddress without a request.
func (c *Client) Lookup(ctx context.Context, ip string) (models.Coordinates, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return models.Coordinates{}, fmt.Errorf("parse ip %q: invalid address", ip)
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return models.Coordinates{}, fmt.Errorf("%s: %w", ip, ErrPrivateAddress)
	}

	u := c.baseURL + "/" + url.PathEscape(addr.String()) + "?fields=status,message,lat,lon"
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "success" {
		return models.Coordinates{}, fmt.Errorf("lookup %s: %s", ip, body.Message)
	}

	pos := models.Coordinates{Lat: body.Lat, Lon: body.Lon}
	if err := models.CoordsQuery(pos.Lat, pos.Lon).Validate(); err != nil {
		return models.Coordinates{}, fmt.Errorf("lookup %s: %w", ip, err)
	}
	return pos, nil
}

// Locator binds a client to one remote address.
type Locator struct {
	client *Client
	ip     string
}

func (c *Client) Locator(remoteIP string) *Locator {
	return &Locator{client: c, ip: remoteIP}
}

func (l *Locator) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	return l.client.Lookup(ctx, l.ip)
}

// RemoteIP extracts the client address from r, preferring the first
// X-Forwarded-For entry.
func RemoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
