package screen

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/lox/cityweather/internal/metrics"
)

var ErrNotFound = errors.New("screen not found")

// Registry keeps live screens until they have been idle for longer than ttl.
type Registry struct {
	mu        sync.RWMutex
	screens   map[string]*Screen
	ttl       time.Duration
	now       func() time.Time
	scheduler *gocron.Scheduler
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		screens: make(map[string]*Screen),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *Registry) Add(s *Screen) {
	s.touch(r.now())

	r.mu.Lock()
	r.screens[s.ID] = s
	n := len(r.screens)
	r.mu.Unlock()

	metrics.LiveScreens.Set(float64(n))
}

// Get returns the screen with id and marks it as recently used.
func (r *Registry) Get(id string) (*Screen, error) {
	r.mu.RLock()
	s, ok := r.screens[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(r.now())
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.screens)
}

// Sweep closes and removes screens idle for longer than the ttl. It returns
// the number evicted.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var evicted []*Screen
	for id, s := range r.screens {
		if s.idleSince().Before(cutoff) {
			evicted = append(evicted, s)
			delete(r.screens, id)
		}
	}
	n := len(r.screens)
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
	metrics.LiveScreens.Set(float64(n))
	if len(evicted) > 0 {
		log.Printf("screen: evicted %d idle screens, %d live", len(evicted), n)
	}
	return len(evicted)
}

// Start runs Sweep periodically until Stop.
func (r *Registry) Start() error {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	r.scheduler = gocron.NewScheduler(time.UTC)
	if _, err := r.scheduler.Every(interval).SingletonMode().Do(r.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	r.scheduler.StartAsync()
	log.Printf("screen: sweeping idle screens every %s (ttl %s)", interval, r.ttl)
	return nil
}

// Stop halts the sweeper and closes every live screen.
func (r *Registry) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}

	r.mu.Lock()
	screens := r.screens
	r.screens = make(map[string]*Screen)
	r.mu.Unlock()

	for _, s := range screens {
		s.Close()
	}
	metrics.LiveScreens.Set(0)
}
