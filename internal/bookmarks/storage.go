package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// StorageKey holds the JSON array of saved city names.
	StorageKey = "savedCities"
	// VersionKey holds the schema version of the value under StorageKey.
	VersionKey = "savedCities.version"

	SchemaVersion = 1
)

var ErrUnsupportedVersion = errors.New("unsupported saved cities schema version")

// KV is the key-value storage the saved cities live in. SetMany writes all
// entries or none.
type KV interface {
	Get(key string) (string, bool, error)
	SetMany(entries map[string]string) error
}

// Store reads and writes the saved cities list under a fixed key with an
// explicit schema version.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the stored cities, or an empty slice when nothing is stored.
// A value written before versioning existed is read as version 1.
func (s *Store) Load() ([]string, error) {
	version, err := s.version()
	if err != nil {
		return []string{}, err
	}
	if version > SchemaVersion {
		return []string{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return []string{}, fmt.Errorf("load saved cities: %w", err)
	}
	if !ok {
		return []string{}, nil
	}

	var cities []string
	if err := json.Unmarshal([]byte(raw), &cities); err != nil {
		return []string{}, fmt.Errorf("decode saved cities: %w", err)
	}
	if cities == nil {
		cities = []string{}
	}
	return cities, nil
}

// Save overwrites the stored list with cities. The list and its version are
// written together.
func (s *Store) Save(cities []string) error {
	if cities == nil {
		cities = []string{}
	}
	b, err := json.Marshal(cities)
	if err != nil {
		return fmt.Errorf("encode saved cities: %w", err)
	}
	err = s.kv.SetMany(map[string]string{
		StorageKey: string(b),
		VersionKey: strconv.Itoa(SchemaVersion),
	})
	if err != nil {
		return fmt.Errorf("save saved cities: %w", err)
	}
	return nil
}

func (s *Store) version() (int, error) {
	raw, ok, err := s.kv.Get(VersionKey)
	if err != nil {
		return 0, fmt.Errorf("load saved cities version: %w", err)
	}
	if !ok {
		return SchemaVersion, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, raw)
	}
	return v, nil
}
