package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/shared"
)

// RunTrackRepository implements models.Repository[*models.PersistedRunTrack]
// for the per-track outcomes of a run.
type RunTrackRepository struct {
	db *sql.DB
}

// NewRunTrackRepository creates a new RunTrackRepository with the given database connection
func NewRunTrackRepository(db *sql.DB) *RunTrackRepository {
	return &RunTrackRepository{db: db}
}

// Create inserts a new [models.PersistedRunTrack] with generated ID and sequence
func (r *RunTrackRepository) Create(track *models.PersistedRunTrack) error {
	sequence, err := NextSequence(r.db, "run_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	track.SetID(shared.GenerateID())
	track.SetSequence(sequence)

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	record := track.Record()

	query := `
		INSERT INTO run_tracks (id, sequence, run_id, artist, track, title, original_title, channel, status, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		track.ID(),
		track.Sequence(),
		track.RunID(),
		record.Artist,
		record.Track,
		record.Title,
		record.OriginalTitle,
		record.Channel,
		string(track.Status()),
		record.ProcessedAt,
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run track: %w", err)
	}

	return nil
}

// Get retrieves a run track by ID, excluding soft-deleted rows
func (r *RunTrackRepository) Get(id string) (*models.PersistedRunTrack, error) {
	query := runTrackSelect + ` WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// ListByRun retrieves the track outcomes of one run in processing order
func (r *RunTrackRepository) ListByRun(runID string) ([]*models.PersistedRunTrack, error) {
	return r.List(map[string]any{"run_id": runID})
}

// Update modifies an existing run track in the database
func (r *RunTrackRepository) Update(track *models.PersistedRunTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	track.SetUpdatedAt(now)
	record := track.Record()

	query := `
		UPDATE run_tracks
		SET artist = ?, track = ?, title = ?, status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		record.Artist,
		record.Track,
		record.Title,
		string(track.Status()),
		now,
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run track not found or already deleted: %s", track.ID())
	}

	return nil
}

// Delete soft-deletes a run track by ID
func (r *RunTrackRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE run_tracks
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete run track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run track not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves run tracks matching the given criteria in processing order.
// Supported criteria: "run_id" (string), "status" (string),
// "original_title" (string).
func (r *RunTrackRepository) List(criteria map[string]any) ([]*models.PersistedRunTrack, error) {
	query := runTrackSelect + ` WHERE deleted_at IS NULL`
	args := []any{}

	if runID, ok := criteria["run_id"].(string); ok && runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if title, ok := criteria["original_title"].(string); ok && title != "" {
		query += " AND original_title = ?"
		args = append(args, title)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.PersistedRunTrack
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

const runTrackSelect = `
	SELECT id, sequence, run_id, artist, track, title, original_title, channel, status, processed_at, created_at, updated_at, deleted_at
	FROM run_tracks
`

// scanOne scans a single [sql.Row] into a [models.PersistedRunTrack]
func (r *RunTrackRepository) scanOne(row *sql.Row) (*models.PersistedRunTrack, error) {
	var (
		id            string
		sequence      int
		runID         string
		artist        string
		trackName     string
		title         string
		originalTitle string
		channel       string
		status        string
		processedAt   time.Time
		createdAt     time.Time
		updatedAt     time.Time
		deletedAt     sql.NullTime
	)

	err := row.Scan(&id, &sequence, &runID, &artist, &trackName, &title, &originalTitle, &channel, &status, &processedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run track not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run track: %w", err)
	}

	return buildRunTrack(id, sequence, runID, artist, trackName, title, originalTitle, channel, status, processedAt, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.PersistedRunTrack]
func (r *RunTrackRepository) scanRow(rows *sql.Rows) (*models.PersistedRunTrack, error) {
	var (
		id            string
		sequence      int
		runID         string
		artist        string
		trackName     string
		title         string
		originalTitle string
		channel       string
		status        string
		processedAt   time.Time
		createdAt     time.Time
		updatedAt     time.Time
		deletedAt     sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &runID, &artist, &trackName, &title, &originalTitle, &channel, &status, &processedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run track: %w", err)
	}

	return buildRunTrack(id, sequence, runID, artist, trackName, title, originalTitle, channel, status, processedAt, createdAt, updatedAt, deletedAt), nil
}

func buildRunTrack(id string, sequence int, runID, artist, trackName, title, originalTitle, channel, status string, processedAt, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.PersistedRunTrack {
	record := models.TrackRecord{
		Artist:        artist,
		Track:         trackName,
		Title:         title,
		OriginalTitle: originalTitle,
		Channel:       channel,
		ProcessedAt:   processedAt,
	}

	track := models.NewPersistedRunTrack(sequence, runID, record, models.TrackStatus(status))
	track.SetID(id)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		track.SetDeletedAt(&deletedAt.Time)
	}

	return track
}
