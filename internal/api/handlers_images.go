package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lox/cityweather/internal/display"
	"github.com/lox/cityweather/internal/imagegen"
	"github.com/lox/cityweather/internal/models"
)

// handleMapImage serves the static map for a screen's current map handle.
func (s *Server) handleMapImage(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	v := sc.View()
	if v.Map == nil {
		http.NotFound(w, r)
		return
	}
	if s.maps == nil {
		http.Error(w, "Map service unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	data, err := s.maps.Image(ctx, *v.Map)
	if err != nil {
		log.Printf("map-image: %s: %v", sc.ID, err)
		http.Error(w, "Map image unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// handleBannerImage serves a banner for the weather category in ?type=.
// It checks the cache first, then generates on demand, and falls back to any
// cached banner while a missing one is generated in the background.
func (s *Server) handleBannerImage(w http.ResponseWriter, r *http.Request) {
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))
	if category == "" {
		category = "clear"
	}
	key := imagegen.Key("banner", category)

	if s.imageCache != nil {
		if data, ok := s.imageCache.Get(key); ok {
			s.serveBannerImage(w, data)
			return
		}
		if data, ok := s.imageCache.GetAny("banner_"); ok {
			go s.generateAndCache(category)
			s.serveBannerImage(w, data)
			return
		}
	}

	if s.imageGen != nil {
		s.genMu.Lock()
		defer s.genMu.Unlock()

		if s.imageCache != nil {
			if data, ok := s.imageCache.Get(key); ok {
				s.serveBannerImage(w, data)
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		data, err := s.imageGen.Generate(ctx, category)
		if err != nil {
			log.Printf("banner: generation failed: %v", err)
			http.Error(w, "Image generation failed", http.StatusServiceUnavailable)
			return
		}
		if s.imageCache != nil {
			if err := s.imageCache.Set(key, data); err != nil {
				log.Printf("banner: cache %s: %v", key, err)
			}
		}
		s.serveBannerImage(w, data)
		return
	}

	http.Error(w, "Banner service unavailable", http.StatusServiceUnavailable)
}

func (s *Server) serveBannerImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func (s *Server) generateAndCache(category string) {
	if s.imageGen == nil || s.imageCache == nil {
		return
	}
	key := imagegen.Key("banner", category)

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if _, ok := s.imageCache.Get(key); ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	data, err := s.imageGen.Generate(ctx, category)
	if err != nil {
		log.Printf("banner: background generation failed: %v", err)
		return
	}
	if err := s.imageCache.Set(key, data); err != nil {
		log.Printf("banner: cache %s: %v", key, err)
	}
}

// handleOGImage renders a sharing card with the current weather for ?city=.
func (s *Server) handleOGImage(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		city = s.resolver.FallbackCity
	}
	cacheKey := strings.ToLower(city)

	if data, ok := s.ogCache.Get(cacheKey); ok {
		s.serveOGImage(w, data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	snap, err := s.weather.Current(ctx, models.CityQuery(city))
	if err != nil {
		log.Printf("og-image: fetch %s: %v", city, err)
		http.Error(w, "Weather unavailable", http.StatusBadGateway)
		return
	}
	rec := display.Project(snap)

	card := imagegen.OGImageData{
		City:        rec.City,
		Temperature: rec.CurrentTemp,
		Description: rec.Description,
	}
	if card.City == "" {
		card.City = city
	}

	var ogImage []byte
	if bg, ok := s.bannerFor(rec.Category); ok {
		ogImage, err = imagegen.GenerateOGImage(bg, card)
	} else {
		ogImage, err = imagegen.GenerateFallbackOGImage(card)
	}
	if err != nil {
		log.Printf("og-image: render %s: %v", city, err)
		http.Error(w, "Failed to generate OG image", http.StatusInternalServerError)
		return
	}

	s.ogCache.Set(cacheKey, ogImage)
	s.serveOGImage(w, ogImage)
}

func (s *Server) bannerFor(category string) ([]byte, bool) {
	if s.imageCache == nil {
		return nil, false
	}
	if data, ok := s.imageCache.Get(imagegen.Key("banner", category)); ok {
		return data, true
	}
	return s.imageCache.GetAny("banner_")
}

func (s *Server) serveOGImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
