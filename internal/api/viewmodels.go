package api

import (
	"fmt"
	"net/url"

	"github.com/lox/cityweather/internal/screen"
)

// PageData is what the page and its partials render.
type PageData struct {
	screen.View
	Year      int
	MapURL    string
	BannerURL string
	OGURL     string
}

func (s *Server) pageData(v screen.View) PageData {
	d := PageData{
		View: v,
		Year: s.now().Year(),
	}
	if v.Map != nil && s.maps != nil {
		// The center is part of the URL so a re-centered map is refetched.
		d.MapURL = fmt.Sprintf("/screens/%s/map.png?at=%s", url.PathEscape(v.ID), url.QueryEscape(v.Map.Center.String()))
	}
	if v.HasWeather && v.Display.Category != "" && s.bannersAvailable() {
		d.BannerURL = "/banner.png?type=" + url.QueryEscape(v.Display.Category)
	}
	if v.Display.City != "" {
		d.OGURL = "/og.png?city=" + url.QueryEscape(v.Display.City)
	}
	return d
}

func (s *Server) bannersAvailable() bool {
	if s.imageGen != nil {
		return true
	}
	return s.imageCache != nil && len(s.imageCache.List("banner_")) > 0
}

// HealthStatus is the /health response.
type HealthStatus struct {
	Status          string   `json:"status"`
	SchemaVersion   int      `json:"schemaVersion"`
	LiveScreens     int      `json:"liveScreens"`
	Clients         int      `json:"clients"`
	RawPayloads     int      `json:"rawPayloads"`
	RawPayloadBytes int64    `json:"rawPayloadBytes"`
	Errors          []string `json:"errors,omitempty"`
}
