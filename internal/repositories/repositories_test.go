package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func testSummary() models.RunSummary {
	return models.RunSummary{
		URL:            "https://www.youtube.com/@somecreator/videos",
		Channel:        "somecreator",
		Scraped:        10,
		Fresh:          2,
		Appended:       1,
		AlreadyPresent: 0,
		Unresolved:     1,
		RecordSynced:   true,
		StartedAt:      time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC),
		FinishedAt:     time.Date(2024, 6, 1, 15, 2, 30, 0, time.UTC),
	}
}

func testRecord(originalTitle string) models.TrackRecord {
	return models.TrackRecord{
		Artist:        "Artist One",
		Track:         "Song One",
		Title:         "Song One",
		OriginalTitle: originalTitle,
		Channel:       "somecreator",
		ProcessedAt:   time.Date(2024, 6, 1, 15, 1, 0, 0, time.UTC),
	}
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewPersistedRun(0, testSummary())

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if run.ID() == "" {
			t.Error("run ID should be set after creation")
		}
		if run.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", run.Sequence())
		}

		second := models.NewPersistedRun(0, testSummary())
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create second run: %v", err)
		}
		if second.Sequence() != 2 {
			t.Errorf("expected sequence 2, got %d", second.Sequence())
		}
	})

	t.Run("Create validates the run", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewPersistedRun(0, models.RunSummary{})

		if err := repo.Create(run); err == nil {
			t.Error("expected validation error for run without URL")
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewPersistedRun(0, testSummary())

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}

		got := retrieved.Summary()
		want := testSummary()
		if got.URL != want.URL || got.Channel != want.Channel {
			t.Errorf("expected %s on %s, got %s on %s", want.URL, want.Channel, got.URL, got.Channel)
		}
		if got.Scraped != want.Scraped || got.Fresh != want.Fresh || got.Appended != want.Appended || got.Unresolved != want.Unresolved {
			t.Errorf("counts did not round-trip: %+v", got)
		}
		if !got.RecordSynced {
			t.Error("record_synced did not round-trip")
		}
		if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
			t.Errorf("timestamps did not round-trip: %+v", got)
		}
	})

	t.Run("Get missing run", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		if _, err := repo.Get("does-not-exist"); err == nil {
			t.Error("expected error for missing run")
		}
	})

	t.Run("Unfinished run round-trips a zero finish time", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		summary := testSummary()
		summary.FinishedAt = time.Time{}
		run := models.NewPersistedRun(0, summary)

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if !retrieved.Summary().FinishedAt.IsZero() {
			t.Errorf("expected zero finish time, got %v", retrieved.Summary().FinishedAt)
		}
	})

	t.Run("GetBySequence and Latest", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		first := models.NewPersistedRun(0, testSummary())
		second := models.NewPersistedRun(0, testSummary())

		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		bySeq, err := repo.GetBySequence(1)
		if err != nil {
			t.Fatalf("failed to get run by sequence: %v", err)
		}
		if bySeq.ID() != first.ID() {
			t.Errorf("expected run %s, got %s", first.ID(), bySeq.ID())
		}

		latest, err := repo.Latest()
		if err != nil {
			t.Fatalf("failed to get latest run: %v", err)
		}
		if latest.ID() != second.ID() {
			t.Errorf("expected latest run %s, got %s", second.ID(), latest.ID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		summary := testSummary()
		summary.FinishedAt = time.Time{}
		summary.RecordSynced = false
		run := models.NewPersistedRun(0, summary)

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		run.SetFinishedAt(time.Date(2024, 6, 1, 15, 5, 0, 0, time.UTC))
		run.SetRecordSynced(true)

		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if !retrieved.Summary().RecordSynced {
			t.Error("updated record_synced did not persist")
		}
		if retrieved.Summary().FinishedAt.IsZero() {
			t.Error("updated finish time did not persist")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewPersistedRun(0, testSummary())

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}

		if _, err := repo.Get(run.ID()); err == nil {
			t.Error("soft-deleted run should not be retrievable")
		}

		if err := repo.Delete(run.ID()); err == nil {
			t.Error("double delete should fail")
		}

		runs, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected empty listing, got %d runs", len(runs))
		}
	})

	t.Run("List newest first with limit", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		for i := 0; i < 3; i++ {
			if err := repo.Create(models.NewPersistedRun(0, testSummary())); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		runs, err := repo.List(map[string]any{"limit": 2})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Sequence() != 3 || runs[1].Sequence() != 2 {
			t.Errorf("expected newest first, got sequences %d, %d", runs[0].Sequence(), runs[1].Sequence())
		}
	})

	t.Run("List by URL", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)

		other := testSummary()
		other.URL = "https://www.youtube.com/@othercreator/videos"
		other.Channel = "othercreator"

		if err := repo.Create(models.NewPersistedRun(0, testSummary())); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if err := repo.Create(models.NewPersistedRun(0, other)); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		runs, err := repo.List(map[string]any{"url": other.URL})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].Summary().Channel != "othercreator" {
			t.Errorf("expected the other creator's run, got %d runs", len(runs))
		}
	})
}

func TestRunTrackRepository(t *testing.T) {
	createRun := func(t *testing.T, db *sql.DB) *models.PersistedRun {
		t.Helper()
		run := models.NewPersistedRun(0, testSummary())
		if err := NewRunRepository(db).Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		return run
	}

	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		repo := NewRunTrackRepository(db)
		track := models.NewPersistedRunTrack(0, run.ID(), testRecord("ARTIST ONE - SONG ONE"), models.StatusAppended)

		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}
		if track.ID() == "" {
			t.Error("track ID should be set after creation")
		}

		retrieved, err := repo.Get(track.ID())
		if err != nil {
			t.Fatalf("failed to get run track: %v", err)
		}

		record := retrieved.Record()
		if record.Artist != "Artist One" || record.Track != "Song One" {
			t.Errorf("record did not round-trip: %+v", record)
		}
		if record.OriginalTitle != "ARTIST ONE - SONG ONE" {
			t.Errorf("expected original title, got %q", record.OriginalTitle)
		}
		if retrieved.Status() != models.StatusAppended {
			t.Errorf("expected appended status, got %q", retrieved.Status())
		}
		if retrieved.RunID() != run.ID() {
			t.Errorf("expected run ID %s, got %s", run.ID(), retrieved.RunID())
		}
	})

	t.Run("Create validates the status", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		repo := NewRunTrackRepository(db)
		track := models.NewPersistedRunTrack(0, run.ID(), testRecord("ARTIST ONE - SONG ONE"), models.TrackStatus("bogus"))

		if err := repo.Create(track); err == nil {
			t.Error("expected validation error for unrecognized status")
		}
	})

	t.Run("ListByRun preserves processing order", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		other := createRun(t, db)
		repo := NewRunTrackRepository(db)

		titles := []string{"first title", "second title", "third title"}
		for _, title := range titles {
			if err := repo.Create(models.NewPersistedRunTrack(0, run.ID(), testRecord(title), models.StatusUnresolved)); err != nil {
				t.Fatalf("failed to create run track: %v", err)
			}
		}
		if err := repo.Create(models.NewPersistedRunTrack(0, other.ID(), testRecord("other run title"), models.StatusAppended)); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}

		tracks, err := repo.ListByRun(run.ID())
		if err != nil {
			t.Fatalf("failed to list run tracks: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(tracks))
		}
		for i, title := range titles {
			if tracks[i].Record().OriginalTitle != title {
				t.Errorf("expected %q at position %d, got %q", title, i, tracks[i].Record().OriginalTitle)
			}
		}
	})

	t.Run("List by status", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		repo := NewRunTrackRepository(db)

		if err := repo.Create(models.NewPersistedRunTrack(0, run.ID(), testRecord("resolved title"), models.StatusAppended)); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}
		if err := repo.Create(models.NewPersistedRunTrack(0, run.ID(), testRecord("unresolved title"), models.StatusUnresolved)); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}

		tracks, err := repo.List(map[string]any{"status": string(models.StatusUnresolved)})
		if err != nil {
			t.Fatalf("failed to list run tracks: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Record().OriginalTitle != "unresolved title" {
			t.Errorf("expected the unresolved track, got %d tracks", len(tracks))
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		repo := NewRunTrackRepository(db)
		track := models.NewPersistedRunTrack(0, run.ID(), testRecord("ARTIST ONE - SONG ONE"), models.StatusUnresolved)

		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}

		updated := models.NewPersistedRunTrack(track.Sequence(), run.ID(), testRecord("ARTIST ONE - SONG ONE"), models.StatusAppended)
		updated.SetID(track.ID())

		if err := repo.Update(updated); err != nil {
			t.Fatalf("failed to update run track: %v", err)
		}

		retrieved, err := repo.Get(track.ID())
		if err != nil {
			t.Fatalf("failed to get run track: %v", err)
		}
		if retrieved.Status() != models.StatusAppended {
			t.Errorf("expected updated status, got %q", retrieved.Status())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := createRun(t, db)
		repo := NewRunTrackRepository(db)
		track := models.NewPersistedRunTrack(0, run.ID(), testRecord("ARTIST ONE - SONG ONE"), models.StatusAppended)

		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create run track: %v", err)
		}
		if err := repo.Delete(track.ID()); err != nil {
			t.Fatalf("failed to delete run track: %v", err)
		}
		if _, err := repo.Get(track.ID()); err == nil {
			t.Error("soft-deleted track should not be retrievable")
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "runs")
		if err != nil {
			t.Fatalf("failed to get next sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}
}

func TestRepositoryErrors(t *testing.T) {
	t.Run("operations on a closed database fail", func(t *testing.T) {
		db := setupTestDB(t)
		run := models.NewPersistedRun(0, testSummary())
		repo := NewRunRepository(db)

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		db.Close()

		if err := repo.Create(models.NewPersistedRun(0, testSummary())); err == nil {
			t.Error("expected create to fail on closed database")
		}
		if _, err := repo.Get(run.ID()); err == nil {
			t.Error("expected get to fail on closed database")
		}
		if _, err := repo.List(map[string]any{}); err == nil {
			t.Error("expected list to fail on closed database")
		}
	})

	t.Run("update of a missing run fails", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := models.NewPersistedRun(1, testSummary())
		run.SetID("missing-id")

		if err := NewRunRepository(db).Update(run); err == nil {
			t.Error("expected update of missing run to fail")
		}
	})
}
