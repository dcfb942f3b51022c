package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lox/cityweather/internal/bookmarks"
	"github.com/lox/cityweather/internal/htmlutil"
	"github.com/lox/cityweather/internal/screen"
)

// handleIndex opens a new screen for this page view, starts resolving the
// location and renders once the weather arrives or the render wait elapses.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)
	sc := screen.New(clientID, s.resolver, s.weather, bookmarks.NewStore(s.store.Bucket(clientID)))
	s.screens.Add(sc)

	done := sc.Activate(r.URL.Query().Get("city"), s.geolocator(r))
	s.waitFor(r.Context(), done)

	data := s.pageData(sc.View())

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
			log.Printf("api: render index: %v", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(htmlutil.PageText(buf.String())))
		return
	}

	s.render(w, "index.html", data)
}

func (s *Server) handleWeatherPartial(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	s.render(w, "weather", s.pageData(sc.View()))
}

// handleNavigate runs a new resolution cycle on an existing screen, as when
// a saved city or "Current Location" is chosen.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	done := sc.Activate(r.URL.Query().Get("city"), s.geolocator(r))
	s.waitFor(r.Context(), done)
	s.render(w, "weather", s.pageData(sc.View()))
}

func (s *Server) handleAddCity(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	if _, err := sc.Add(r.FormValue("city")); err != nil {
		log.Printf("api: save cities for %s: %v", sc.ClientID, err)
		http.Error(w, "could not save cities", http.StatusInternalServerError)
		return
	}
	s.render(w, "cities", s.pageData(sc.View()))
}

func (s *Server) handleDeleteCity(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	if _, err := sc.Delete(r.FormValue("city")); err != nil {
		log.Printf("api: save cities for %s: %v", sc.ClientID, err)
		http.Error(w, "could not save cities", http.StatusInternalServerError)
		return
	}
	s.render(w, "cities", s.pageData(sc.View()))
}

func (s *Server) handleToggleMenu(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	sc.ToggleMenu()
	s.render(w, "cities", s.pageData(sc.View()))
}

// handleInput keeps the screen's copy of the add form's text field current.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	sc.SetInput(r.FormValue("city"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:      "ok",
		LiveScreens: s.screens.Len(),
	}

	if v, err := s.store.MigrationVersion(); err != nil {
		health.Errors = append(health.Errors, "schema: "+err.Error())
	} else {
		health.SchemaVersion = v
	}
	if n, err := s.store.Namespaces(); err != nil {
		health.Errors = append(health.Errors, "clients: "+err.Error())
	} else {
		health.Clients = n
	}
	if stats, err := s.store.GetRawPayloadStats(); err != nil {
		health.Errors = append(health.Errors, "payloads: "+err.Error())
	} else {
		health.RawPayloads = stats.TotalCount
		health.RawPayloadBytes = stats.TotalSizeBytes
	}

	w.Header().Set("Content-Type", "application/json")
	if len(health.Errors) > 0 {
		health.Status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}

// lookupScreen finds the screen named in the path. Unknown or expired
// screens, and screens opened by another client, are reported as not found.
func (s *Server) lookupScreen(w http.ResponseWriter, r *http.Request) (*screen.Screen, bool) {
	sc, err := s.screens.Get(r.PathValue("id"))
	if errors.Is(err, screen.ErrNotFound) {
		http.Error(w, "screen expired, reload the page", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if sc.ClientID != requestClientID(r) {
		http.Error(w, "screen expired, reload the page", http.StatusNotFound)
		return nil, false
	}
	return sc, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("api: template %s: %v", name, err)
	}
}
