package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/shared"
)

// RunRepository implements models.Repository[*models.PersistedRun] for the
// pipeline run history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new [models.PersistedRun] with generated ID and sequence
func (r *RunRepository) Create(run *models.PersistedRun) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	s := run.Summary()

	query := `
		INSERT INTO runs (id, sequence, url, channel, scraped, fresh, appended, already_present, unresolved, record_synced, started_at, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID(),
		run.Sequence(),
		s.URL,
		s.Channel,
		s.Scraped,
		s.Fresh,
		s.Appended,
		s.AlreadyPresent,
		s.Unresolved,
		s.RecordSynced,
		s.StartedAt,
		nullableTime(s.FinishedAt),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.PersistedRun, error) {
	query := runSelect + ` WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetBySequence retrieves a run by its human-readable sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.PersistedRun, error) {
	query := runSelect + ` WHERE sequence = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, sequence))
}

// Latest retrieves the most recent run
func (r *RunRepository) Latest() (*models.PersistedRun, error) {
	query := runSelect + ` WHERE deleted_at IS NULL ORDER BY sequence DESC LIMIT 1`
	return r.scanOne(r.db.QueryRow(query))
}

// Update modifies an existing run in the database
func (r *RunRepository) Update(run *models.PersistedRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)
	s := run.Summary()

	query := `
		UPDATE runs
		SET channel = ?, scraped = ?, fresh = ?, appended = ?, already_present = ?, unresolved = ?, record_synced = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		s.Channel,
		s.Scraped,
		s.Fresh,
		s.Appended,
		s.AlreadyPresent,
		s.Unresolved,
		s.RecordSynced,
		nullableTime(s.FinishedAt),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found or already deleted: %s", run.ID())
	}

	return nil
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves runs matching the given criteria, newest first.
// Supported criteria: "url" (string), "channel" (string), "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.PersistedRun, error) {
	query := runSelect + ` WHERE deleted_at IS NULL`
	args := []any{}

	if url, ok := criteria["url"].(string); ok && url != "" {
		query += " AND url = ?"
		args = append(args, url)
	}

	if channel, ok := criteria["channel"].(string); ok && channel != "" {
		query += " AND channel = ?"
		args = append(args, channel)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PersistedRun
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

const runSelect = `
	SELECT id, sequence, url, channel, scraped, fresh, appended, already_present, unresolved, record_synced, started_at, finished_at, created_at, updated_at, deleted_at
	FROM runs
`

// scanOne scans a single [sql.Row] into a [models.PersistedRun]
func (r *RunRepository) scanOne(row *sql.Row) (*models.PersistedRun, error) {
	var (
		id             string
		sequence       int
		url            string
		channel        string
		scraped        int
		fresh          int
		appended       int
		alreadyPresent int
		unresolved     int
		recordSynced   bool
		startedAt      time.Time
		finishedAt     sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := row.Scan(&id, &sequence, &url, &channel, &scraped, &fresh, &appended, &alreadyPresent, &unresolved, &recordSynced, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return buildRun(id, sequence, url, channel, scraped, fresh, appended, alreadyPresent, unresolved, recordSynced, startedAt, finishedAt, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.PersistedRun]
func (r *RunRepository) scanRow(rows *sql.Rows) (*models.PersistedRun, error) {
	var (
		id             string
		sequence       int
		url            string
		channel        string
		scraped        int
		fresh          int
		appended       int
		alreadyPresent int
		unresolved     int
		recordSynced   bool
		startedAt      time.Time
		finishedAt     sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &url, &channel, &scraped, &fresh, &appended, &alreadyPresent, &unresolved, &recordSynced, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return buildRun(id, sequence, url, channel, scraped, fresh, appended, alreadyPresent, unresolved, recordSynced, startedAt, finishedAt, createdAt, updatedAt, deletedAt), nil
}

func buildRun(id string, sequence int, url, channel string, scraped, fresh, appended, alreadyPresent, unresolved int, recordSynced bool, startedAt time.Time, finishedAt sql.NullTime, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.PersistedRun {
	summary := models.RunSummary{
		URL:            url,
		Channel:        channel,
		Scraped:        scraped,
		Fresh:          fresh,
		Appended:       appended,
		AlreadyPresent: alreadyPresent,
		Unresolved:     unresolved,
		RecordSynced:   recordSynced,
		StartedAt:      startedAt,
	}
	if finishedAt.Valid {
		summary.FinishedAt = finishedAt.Time
	}

	run := models.NewPersistedRun(sequence, summary)
	run.SetID(id)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
