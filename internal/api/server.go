package api

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/cityweather/internal/geoip"
	"github.com/lox/cityweather/internal/imagegen"
	"github.com/lox/cityweather/internal/location"
	"github.com/lox/cityweather/internal/mapview"
	"github.com/lox/cityweather/internal/screen"
	"github.com/lox/cityweather/internal/store"
)

// Options configures the optional collaborators of a Server.
type Options struct {
	Port         string
	FallbackCity string
	RenderWait   time.Duration

	// Geo locates visitors who do not name a city. Nil means geolocation is
	// unavailable and the fallback city is used.
	Geo *geoip.Client

	Maps       *mapview.StaticMaps
	ImageCache *imagegen.Cache
	ImageGen   *imagegen.Generator
}

type Server struct {
	store      *store.Store
	weather    screen.WeatherSource
	screens    *screen.Registry
	resolver   *location.Resolver
	geo        *geoip.Client
	maps       *mapview.StaticMaps
	port       string
	renderWait time.Duration
	tmpl       *template.Template
	imageCache *imagegen.Cache
	imageGen   *imagegen.Generator
	ogCache    *imagegen.OGImageCache
	genMu      sync.Mutex // Prevents concurrent generation of the same banner
	now        func() time.Time
}

func NewServer(st *store.Store, weather screen.WeatherSource, screens *screen.Registry, opts Options) *Server {
	if opts.ImageGen == nil {
		log.Printf("api: banner generation disabled")
	}
	return &Server{
		store:      st,
		weather:    weather,
		screens:    screens,
		resolver:   location.NewResolver(opts.FallbackCity),
		geo:        opts.Geo,
		maps:       opts.Maps,
		port:       opts.Port,
		renderWait: opts.RenderWait,
		tmpl:       newTemplates(),
		imageCache: opts.ImageCache,
		imageGen:   opts.ImageGen,
		ogCache:    imagegen.NewOGImageCache(10 * time.Minute),
		now:        time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /banner.png", s.handleBannerImage)
	mux.HandleFunc("GET /og.png", s.handleOGImage)
	mux.HandleFunc("GET /screens/{id}/weather", s.handleWeatherPartial)
	mux.HandleFunc("GET /screens/{id}/navigate", s.handleNavigate)
	mux.HandleFunc("GET /screens/{id}/map.png", s.handleMapImage)
	mux.HandleFunc("POST /screens/{id}/cities", s.handleAddCity)
	mux.HandleFunc("POST /screens/{id}/cities/delete", s.handleDeleteCity)
	mux.HandleFunc("POST /screens/{id}/menu", s.handleToggleMenu)
	mux.HandleFunc("POST /screens/{id}/input", s.handleInput)
	mux.HandleFunc("GET /api/screens/{id}", s.handleAPIScreen)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// geolocator returns the position source for the requesting client, or nil
// when geolocation is unavailable.
func (s *Server) geolocator(r *http.Request) location.Geolocator {
	if s.geo == nil {
		return nil
	}
	return s.geo.Locator(geoip.RemoteIP(r))
}

// waitFor blocks until done is closed, the render wait elapses or the request
// goes away, whichever comes first.
func (s *Server) waitFor(ctx context.Context, done <-chan struct{}) {
	if s.renderWait <= 0 {
		return
	}
	timer := time.NewTimer(s.renderWait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}
