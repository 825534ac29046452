// Package store keeps the processed-track history in a remote gist
// document and answers the duplicate filter.
//
// The document is one JSON array of records in processing order. Loading
// tolerates a store that does not exist yet (first run); saving rewrites
// the whole document and stamps the gist with the run time.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
)

// descriptionLayout stamps store updates with the local run time.
const descriptionLayout = "2006-01-02-15:04:05"

// RecordStore reads and writes the processed-track history.
type RecordStore struct {
	keeper      services.RecordKeeper
	filename    string
	retryConfig retry.Config
	now         func() time.Time
}

// NewRecordStore creates a store over the named file of the record keeper.
func NewRecordStore(keeper services.RecordKeeper, filename string) *RecordStore {
	return &RecordStore{
		keeper:      keeper,
		filename:    filename,
		retryConfig: retry.DefaultConfig(),
		now:         time.Now,
	}
}

// Load returns every record processed so far. A store that does not exist
// yet loads as empty; a document that exists but cannot be parsed is an
// error, so a corrupt store is never silently overwritten.
func (s *RecordStore) Load(ctx context.Context) ([]models.TrackRecord, error) {
	content, err := s.keeper.FetchFile(ctx, s.filename)
	if err != nil {
		if errors.Is(err, shared.ErrFileNotFound) {
			return []models.TrackRecord{}, nil
		}
		return nil, fmt.Errorf("failed to load record store: %w", err)
	}

	if len(bytes.TrimSpace(content)) == 0 {
		return []models.TrackRecord{}, nil
	}

	var records []models.TrackRecord
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("failed to parse record store %s: %w", s.filename, err)
	}

	return records, nil
}

// Save rewrites the store document with the given records and stamps the
// update time. Transient failures are retried under the default backoff
// policy.
func (s *RecordStore) Save(ctx context.Context, records []models.TrackRecord) error {
	content, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record store: %w", err)
	}

	description := fmt.Sprintf("Scrape run at %s", s.now().Format(descriptionLayout))
	err = retry.Do(ctx, s.retryConfig, retry.IsRetryable, func(ctx context.Context) error {
		return s.keeper.UpdateFile(ctx, s.filename, description, content)
	})
	if err != nil {
		return fmt.Errorf("failed to persist record store: %w", err)
	}

	return nil
}

// KnownTitles builds the deduplication oracle: the set of original titles
// processed in prior runs.
func KnownTitles(records []models.TrackRecord) map[string]struct{} {
	known := make(map[string]struct{}, len(records))
	for _, record := range records {
		known[record.OriginalTitle] = struct{}{}
	}
	return known
}

// FilterTitles removes titles the store already knows and repeats within
// the batch itself, preserving the order of first occurrence.
func FilterTitles(raw []string, known map[string]struct{}) []string {
	fresh := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, title := range raw {
		if _, ok := known[title]; ok {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		fresh = append(fresh, title)
	}

	return fresh
}
