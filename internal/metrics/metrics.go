package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WeatherAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityweather_weather_api_calls_total",
			Help: "Total OpenWeatherMap current weather calls",
		},
		[]string{"query", "status"},
	)

	WeatherAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cityweather_weather_api_latency_seconds",
			Help:    "OpenWeatherMap call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	StaleFetchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cityweather_stale_fetches_discarded_total",
			Help: "Weather results dropped because a newer fetch was issued",
		},
	)

	GeolocationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityweather_geolocation_lookups_total",
			Help: "Location resolutions by outcome",
		},
		[]string{"outcome"},
	)

	BookmarkMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityweather_bookmark_mutations_total",
			Help: "Saved city additions and deletions",
		},
		[]string{"op"},
	)

	MapImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityweather_map_image_fetches_total",
			Help: "Static map image requests by source",
		},
		[]string{"source"},
	)

	LiveScreens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cityweather_live_screens",
			Help: "Weather screens currently held in memory",
		},
	)
)
