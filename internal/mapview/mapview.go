// Package mapview holds the map shown under the weather card and renders it
// through the Mapbox static images API.
package mapview

import (
	"github.com/lox/cityweather/internal/models"
)

const (
	ContainerID  = "map"
	DefaultStyle = "mapbox/light-v10"
	DefaultZoom  = 10
)

// Handle is the live map of one screen. It is created once and then only
// re-centered.
type Handle struct {
	Container string             `json:"container"`
	Style     string             `json:"style"`
	Center    models.Coordinates `json:"center"`
	Zoom      int                `json:"zoom"`
}

func New(center models.Coordinates) *Handle {
	return &Handle{
		Container: ContainerID,
		Style:     DefaultStyle,
		Center:    center,
		Zoom:      DefaultZoom,
	}
}

// Recenter moves the map to c and reports whether the center changed.
func (h *Handle) Recenter(c models.Coordinates) bool {
	if h.Center == c {
		return false
	}
	h.Center = c
	return true
}
