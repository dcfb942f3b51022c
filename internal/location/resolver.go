// Package location decides what place the weather screen shows.
package location

import (
	"context"
	"log"

	"github.com/lox/cityweather/internal/metrics"
	"github.com/lox/cityweather/internal/models"
)

// FallbackCity is used when no city is given and the position is unknown.
const FallbackCity = "osaka"

// Geolocator reports the current position of the user.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (models.Coordinates, error)
}

// GeolocatorFunc adapts a function to Geolocator.
type GeolocatorFunc func(ctx context.Context) (models.Coordinates, error)

func (f GeolocatorFunc) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	return f(ctx)
}

type Resolver struct {
	FallbackCity string
}

func NewResolver(fallbackCity string) *Resolver {
	if fallbackCity == "" {
		fallbackCity = FallbackCity
	}
	return &Resolver{FallbackCity: fallbackCity}
}

// Resolve returns a city query for a non-empty cityParam without consulting
// geo. Otherwise it asks geo for the position and falls back to the fallback
// city when geo is nil or fails.
func (r *Resolver) Resolve(ctx context.Context, cityParam string, geo Geolocator) models.LocationQuery {
	if cityParam != "" {
		metrics.GeolocationLookups.WithLabelValues("city_param").Inc()
		return models.CityQuery(cityParam)
	}

	if geo == nil {
		log.Printf("location: geolocation is not supported, using %s", r.fallback())
		metrics.GeolocationLookups.WithLabelValues("unsupported").Inc()
		return models.CityQuery(r.fallback())
	}

	pos, err := geo.CurrentPosition(ctx)
	if err != nil {
		log.Printf("location: geolocation failed, using %s: %v", r.fallback(), err)
		metrics.GeolocationLookups.WithLabelValues("fallback").Inc()
		return models.CityQuery(r.fallback())
	}

	metrics.GeolocationLookups.WithLabelValues("located").Inc()
	return models.CoordsQuery(pos.Lat, pos.Lon)
}

func (r *Resolver) fallback() string {
	if r == nil || r.FallbackCity == "" {
		return FallbackCity
	}
	return r.FallbackCity
}
