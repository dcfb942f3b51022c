package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload is a provider response kept for debugging lookups.
type RawPayload struct {
	ID                int64
	FetchedAt         time.Time
	Source            string
	Query             string
	PayloadCompressed []byte
	PayloadHash       string
}

// RecordPayload stores a compressed provider response. Identical payloads are
// stored once; the returned ID is 0 for a duplicate.
func (s *Store) RecordPayload(source, query string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads (fetched_at, source, query, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), source, query, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// LatestRawPayload returns the newest payload recorded for query, or nil.
func (s *Store) LatestRawPayload(query string) (*RawPayload, error) {
	row := s.db.QueryRow(`
		SELECT id, fetched_at, source, query, payload_compressed, payload_hash
		FROM raw_payloads WHERE query = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, query)

	var p RawPayload
	err := row.Scan(&p.ID, &p.FetchedAt, &p.Source, &p.Query, &p.PayloadCompressed, &p.PayloadHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Decode returns the uncompressed payload.
func (p *RawPayload) Decode() ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(p.PayloadCompressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// RawPayloadStats summarises raw payload storage.
type RawPayloadStats struct {
	TotalCount      int
	TotalSizeBytes  int64
	NewestFetchedAt time.Time
}

func (s *Store) GetRawPayloadStats() (*RawPayloadStats, error) {
	stats := &RawPayloadStats{}

	var newest sql.NullString
	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0), MAX(fetched_at)
		FROM raw_payloads
	`)
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes, &newest); err != nil {
		return nil, err
	}
	if newest.Valid {
		if t, err := parseSQLiteTime(newest.String); err == nil {
			stats.NewestFetchedAt = t
		}
	}
	return stats, nil
}

// CleanupRawPayloads deletes payloads fetched before cutoff and returns how
// many were removed.
func (s *Store) CleanupRawPayloads(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func parseSQLiteTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
