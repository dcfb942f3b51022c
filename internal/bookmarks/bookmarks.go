// Package bookmarks maintains the user's saved cities and their persisted form.
package bookmarks

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// List is an ordered set of city names. Insertion order is kept and a name
// appears at most once.
type List struct {
	cities []string
}

// NewList builds a List from stored names, dropping repeats.
func NewList(cities []string) *List {
	l := &List{cities: make([]string, 0, len(cities))}
	for _, c := range cities {
		if !l.Contains(c) {
			l.cities = append(l.cities, c)
		}
	}
	return l
}

// Add appends name when it is not blank and not already saved. It reports
// whether the list changed.
func (l *List) Add(name string) bool {
	if validate.Var(strings.TrimSpace(name), "required") != nil {
		return false
	}
	if l.Contains(name) {
		return false
	}
	l.cities = append(l.cities, name)
	return true
}

// Delete removes every entry equal to name and reports whether any was found.
func (l *List) Delete(name string) bool {
	kept := l.cities[:0]
	for _, c := range l.cities {
		if c != name {
			kept = append(kept, c)
		}
	}
	removed := len(kept) != len(l.cities)
	l.cities = kept
	return removed
}

func (l *List) Contains(name string) bool {
	for _, c := range l.cities {
		if c == name {
			return true
		}
	}
	return false
}

// Cities returns a copy of the saved names in order.
func (l *List) Cities() []string {
	out := make([]string, len(l.cities))
	copy(out, l.cities)
	return out
}
