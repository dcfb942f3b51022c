// Package screen holds the server-side state of one weather page view: the
// resolved location, the latest weather snapshot, the map and the saved
// cities of the client that opened it.
package screen

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/cityweather/internal/bookmarks"
	"github.com/lox/cityweather/internal/display"
	"github.com/lox/cityweather/internal/location"
	"github.com/lox/cityweather/internal/mapview"
	"github.com/lox/cityweather/internal/metrics"
	"github.com/lox/cityweather/internal/models"
)

// WeatherSource fetches the current weather for a query.
type WeatherSource interface {
	Current(ctx context.Context, q models.LocationQuery) (*models.WeatherSnapshot, error)
}

// Screen is one live page view.
type Screen struct {
	ID       string
	ClientID string

	resolver *location.Resolver
	weather  WeatherSource
	saved    *bookmarks.Store

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	generation   uint64
	pending      int
	loading      bool
	snapshot     *models.WeatherSnapshot
	query        models.LocationQuery
	mapHandle    *mapview.Handle
	cities       *bookmarks.List
	input        string
	menuExpanded bool
	lastSeen     time.Time
}

// New creates a screen and loads the client's saved cities. A storage
// failure is logged and leaves the list empty.
func New(clientID string, resolver *location.Resolver, weather WeatherSource, saved *bookmarks.Store) *Screen {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Screen{
		ID:       uuid.NewString(),
		ClientID: clientID,
		resolver: resolver,
		weather:  weather,
		saved:    saved,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}

	cities, err := saved.Load()
	if err != nil {
		log.Printf("screen: load saved cities for %s: %v", clientID, err)
	}
	s.cities = bookmarks.NewList(cities)
	return s
}

// Activate starts a resolution cycle: resolve the location from cityParam or
// geo, then fetch its weather. The cycle takes its generation up front, so a
// later Activate supersedes it even while it is still resolving. The returned
// channel is closed once the cycle has settled, whether or not its result was
// kept.
func (s *Screen) Activate(cityParam string, geo location.Geolocator) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	s.pending++
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
		}()

		q := s.resolver.Resolve(s.ctx, cityParam, geo)
		s.fetch(gen, q)
	}()
	return done
}

// fetch issues the weather request for generation gen. Only the latest
// generation may issue its request, publish its result or clear the loading
// flag.
func (s *Screen) fetch(gen uint64, q models.LocationQuery) {
	s.mu.Lock()
	if gen != s.generation {
		log.Printf("screen: %s dropping superseded resolution %s (generation %d, latest %d)", s.ID, q, gen, s.generation)
		metrics.StaleFetchesDiscarded.Inc()
		s.mu.Unlock()
		return
	}
	s.query = q
	s.mu.Unlock()

	snap, err := s.weather.Current(s.ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		log.Printf("screen: %s discarding stale result for %s (generation %d, latest %d)", s.ID, q, gen, s.generation)
		metrics.StaleFetchesDiscarded.Inc()
		return
	}

	s.loading = false
	if err != nil {
		log.Printf("screen: %s fetch %s: %v", s.ID, q, err)
		return
	}

	s.snapshot = snap
	s.placeMap(display.Project(snap))
}

// placeMap creates the map on the first accepted snapshot and re-centers it
// afterwards. Called with s.mu held.
func (s *Screen) placeMap(rec display.Record) {
	center := models.Coordinates{Lat: rec.Lat, Lon: rec.Lon}
	if s.mapHandle == nil {
		s.mapHandle = mapview.New(center)
		return
	}
	s.mapHandle.Recenter(center)
}

// Add saves name if it is not blank and not already saved, clears the input
// buffer and persists the list. A rejected name stays in the input buffer, as
// does a name whose save failed; the list is then left as it was.
func (s *Screen) Add(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = name
	prev := s.cities.Cities()
	if !s.cities.Add(name) {
		return false, nil
	}
	if err := s.persist(prev); err != nil {
		return false, err
	}
	s.input = ""
	metrics.BookmarkMutations.WithLabelValues("add").Inc()
	return true, nil
}

// Delete removes name from the saved cities and persists the list. A failed
// save leaves the list as it was.
func (s *Screen) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cities.Cities()
	if !s.cities.Delete(name) {
		return false, nil
	}
	if err := s.persist(prev); err != nil {
		return false, err
	}
	metrics.BookmarkMutations.WithLabelValues("delete").Inc()
	return true, nil
}

// persist writes the current list, restoring prev when the write fails so the
// in-memory list never runs ahead of storage. Called with s.mu held.
func (s *Screen) persist(prev []string) error {
	if err := s.saved.Save(s.cities.Cities()); err != nil {
		s.cities = bookmarks.NewList(prev)
		return err
	}
	return nil
}

// ToggleMenu flips the saved-cities menu and returns the new state.
func (s *Screen) ToggleMenu() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menuExpanded = !s.menuExpanded
	return s.menuExpanded
}

// SetInput mirrors the add form's text field so a re-rendered form keeps what
// was typed.
func (s *Screen) SetInput(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = v
}

func (s *Screen) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Screen) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close cancels any in-flight work.
func (s *Screen) Close() {
	s.cancel()
}

// View is a consistent copy of a screen's state for rendering.
type View struct {
	ID           string          `json:"id"`
	Display      display.Record  `json:"display"`
	HasWeather   bool            `json:"hasWeather"`
	Loading      bool            `json:"loading"`
	Settled      bool            `json:"settled"`
	Query        string          `json:"query"`
	Input        string          `json:"input"`
	MenuExpanded bool            `json:"menuExpanded"`
	Cities       []string        `json:"savedCities"`
	Map          *mapview.Handle `json:"map,omitempty"`
}

func (s *Screen) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:           s.ID,
		Display:      display.Project(s.snapshot),
		HasWeather:   s.snapshot != nil,
		Loading:      s.loading,
		Settled:      s.pending == 0,
		Query:        s.query.String(),
		Input:        s.input,
		MenuExpanded: s.menuExpanded,
		Cities:       s.cities.Cities(),
	}
	if s.mapHandle != nil {
		h := *s.mapHandle
		v.Map = &h
	}
	return v
}

// ShowMenu reports whether the saved-cities menu is visible: when expanded or
// when anything is saved.
func (v View) ShowMenu() bool {
	return v.MenuExpanded || len(v.Cities) > 0
}

// ShowLoading reports whether the loading indicator replaces the card. It is
// only shown before the first snapshot arrives.
func (v View) ShowLoading() bool {
	return v.Loading && !v.HasWeather
}
