package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TrackStatus is the reconciliation outcome recorded for one track.
type TrackStatus string

const (
	StatusAppended       TrackStatus = "appended"
	StatusAlreadyPresent TrackStatus = "already_present"
	StatusUnresolved     TrackStatus = "unresolved"
)

// RunSummary is the lightweight DTO describing one pipeline run.
type RunSummary struct {
	URL            string
	Channel        string
	Scraped        int
	Fresh          int
	Appended       int
	AlreadyPresent int
	Unresolved     int
	RecordSynced   bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// PersistedRun is a database-backed pipeline run implementing [Model].
type PersistedRun struct {
	id        string
	sequence  int
	summary   RunSummary
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPersistedRun wraps a run summary for persistence.
func NewPersistedRun(sequence int, summary RunSummary) *PersistedRun {
	now := time.Now()
	return &PersistedRun{
		sequence:  sequence,
		summary:   summary,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *PersistedRun) ID() string            { return r.id }
func (r *PersistedRun) Sequence() int         { return r.sequence }
func (r *PersistedRun) Summary() RunSummary   { return r.summary }
func (r *PersistedRun) CreatedAt() time.Time  { return r.createdAt }
func (r *PersistedRun) UpdatedAt() time.Time  { return r.updatedAt }
func (r *PersistedRun) DeletedAt() *time.Time { return r.deletedAt }

func (r *PersistedRun) SetID(id string)             { r.id = id }
func (r *PersistedRun) SetSequence(seq int)         { r.sequence = seq }
func (r *PersistedRun) SetCreatedAt(t time.Time)    { r.createdAt = t }
func (r *PersistedRun) SetUpdatedAt(t time.Time)    { r.updatedAt = t }
func (r *PersistedRun) SetDeletedAt(t *time.Time)   { r.deletedAt = t }
func (r *PersistedRun) SetSummary(s RunSummary)     { r.summary = s }
func (r *PersistedRun) SetFinishedAt(t time.Time)   { r.summary.FinishedAt = t }
func (r *PersistedRun) SetRecordSynced(synced bool) { r.summary.RecordSynced = synced }

// MarshalJSON flattens the run into its summary fields; the struct keeps
// its fields unexported for the repository layer.
func (r *PersistedRun) MarshalJSON() ([]byte, error) {
	var finished *time.Time
	if !r.summary.FinishedAt.IsZero() {
		finished = &r.summary.FinishedAt
	}

	return json.Marshal(struct {
		ID             string     `json:"id"`
		Sequence       int        `json:"sequence"`
		URL            string     `json:"url"`
		Channel        string     `json:"channel,omitempty"`
		Scraped        int        `json:"scraped"`
		Fresh          int        `json:"fresh"`
		Appended       int        `json:"appended"`
		AlreadyPresent int        `json:"already_present"`
		Unresolved     int        `json:"unresolved"`
		RecordSynced   bool       `json:"record_synced"`
		StartedAt      time.Time  `json:"started_at"`
		FinishedAt     *time.Time `json:"finished_at,omitempty"`
	}{
		ID:             r.id,
		Sequence:       r.sequence,
		URL:            r.summary.URL,
		Channel:        r.summary.Channel,
		Scraped:        r.summary.Scraped,
		Fresh:          r.summary.Fresh,
		Appended:       r.summary.Appended,
		AlreadyPresent: r.summary.AlreadyPresent,
		Unresolved:     r.summary.Unresolved,
		RecordSynced:   r.summary.RecordSynced,
		StartedAt:      r.summary.StartedAt,
		FinishedAt:     finished,
	})
}

// Validate checks that the run names its source page.
func (r *PersistedRun) Validate() error {
	if r.summary.URL == "" {
		return fmt.Errorf("run url is required")
	}
	if r.summary.StartedAt.IsZero() {
		return fmt.Errorf("run started_at is required")
	}
	return nil
}

// PersistedRunTrack is one track outcome of a run implementing [Model].
type PersistedRunTrack struct {
	id        string
	sequence  int
	runID     string
	record    TrackRecord
	status    TrackStatus
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPersistedRunTrack wraps a track record and its outcome for persistence.
func NewPersistedRunTrack(sequence int, runID string, record TrackRecord, status TrackStatus) *PersistedRunTrack {
	now := time.Now()
	return &PersistedRunTrack{
		sequence:  sequence,
		runID:     runID,
		record:    record,
		status:    status,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *PersistedRunTrack) ID() string            { return t.id }
func (t *PersistedRunTrack) Sequence() int         { return t.sequence }
func (t *PersistedRunTrack) RunID() string         { return t.runID }
func (t *PersistedRunTrack) Record() TrackRecord   { return t.record }
func (t *PersistedRunTrack) Status() TrackStatus   { return t.status }
func (t *PersistedRunTrack) CreatedAt() time.Time  { return t.createdAt }
func (t *PersistedRunTrack) UpdatedAt() time.Time  { return t.updatedAt }
func (t *PersistedRunTrack) DeletedAt() *time.Time { return t.deletedAt }

func (t *PersistedRunTrack) SetID(id string)           { t.id = id }
func (t *PersistedRunTrack) SetSequence(seq int)       { t.sequence = seq }
func (t *PersistedRunTrack) SetCreatedAt(ts time.Time) { t.createdAt = ts }
func (t *PersistedRunTrack) SetUpdatedAt(ts time.Time) { t.updatedAt = ts }
func (t *PersistedRunTrack) SetDeletedAt(ts *time.Time) {
	t.deletedAt = ts
}

// MarshalJSON flattens the outcome into the record's fields plus the
// reconciliation status.
func (t *PersistedRunTrack) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string      `json:"id"`
		Sequence int         `json:"sequence"`
		RunID    string      `json:"run_id"`
		Status   TrackStatus `json:"status"`
		TrackRecord
	}{
		ID:          t.id,
		Sequence:    t.sequence,
		RunID:       t.runID,
		Status:      t.status,
		TrackRecord: t.record,
	})
}

// Validate checks required fields and a recognized status.
func (t *PersistedRunTrack) Validate() error {
	if t.runID == "" {
		return fmt.Errorf("run id is required")
	}
	if t.record.OriginalTitle == "" {
		return fmt.Errorf("original title is required")
	}
	switch t.status {
	case StatusAppended, StatusAlreadyPresent, StatusUnresolved:
		return nil
	default:
		return fmt.Errorf("unrecognized track status: %q", t.status)
	}
}
