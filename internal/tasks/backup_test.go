package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	th "github.com/songsift/songsift/internal/testing"
)

func backupCatalog() *fakeCatalog {
	catalog := newFakeCatalog()
	catalog.playlists = []services.Playlist{
		{ID: "p1", Name: "Liked Mix", TrackCount: 2},
		{ID: "p2", Name: "Empty Mix", TrackCount: 0},
		{ID: "p3", Name: "Road Trip", TrackCount: 1},
	}
	catalog.members["p1"] = []services.Track{
		{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"},
		{ID: "t2", URI: "spotify:track:t2", Name: "Song Two", Artist: "Artist Two"},
	}
	catalog.members["p3"] = []services.Track{
		{ID: "t3", URI: "spotify:track:t3", Name: "Song Three", Artist: "Artist Three"},
	}
	return catalog
}

func backupOpts() BackupOpts {
	return BackupOpts{Filename: "backup.json", NumWorkers: 3, RateLimit: 100}
}

func TestBackup(t *testing.T) {
	t.Run("Backs Up Every Playlist", func(t *testing.T) {
		catalog := backupCatalog()
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, catalog, &fakeRecords{}, keeper)

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Backup(context.Background(), backupOpts(), progress)
		if err != nil {
			t.Fatalf("Backup failed: %v", err)
		}

		if result.TotalPlaylists != 3 || result.BackedUp != 3 {
			t.Errorf("Expected 3 of 3 playlists, got %d of %d", result.BackedUp, result.TotalPlaylists)
		}
		if result.TotalTracks != 3 {
			t.Errorf("Expected 3 tracks total, got %d", result.TotalTracks)
		}
		if len(result.Failed) != 0 {
			t.Errorf("Expected no failures, got %+v", result.Failed)
		}
		if result.Filename != "backup.json" {
			t.Errorf("Unexpected filename: %q", result.Filename)
		}

		if keeper.updates != 1 {
			t.Fatalf("Expected a single upload, got %d", keeper.updates)
		}
		if keeper.filename != "backup.json" {
			t.Errorf("Uploaded to wrong file: %q", keeper.filename)
		}
		if keeper.description != "Backup taken at 01/06/2024 15:04:05" {
			t.Errorf("Unexpected description: %q", keeper.description)
		}

		var document []models.PlaylistBackup
		if err := json.Unmarshal(keeper.content, &document); err != nil {
			t.Fatalf("Uploaded document is not valid JSON: %v", err)
		}
		if len(document) != 3 {
			t.Fatalf("Expected 3 playlists in document, got %d", len(document))
		}
		// Concurrent fetches must not reorder the catalog listing.
		if document[0].ID != "p1" || document[1].ID != "p2" || document[2].ID != "p3" {
			t.Errorf("Document out of listing order: %s %s %s", document[0].ID, document[1].ID, document[2].ID)
		}
		if len(document[0].Tracks) != 2 || document[0].Tracks[0].TrackID != "t1" {
			t.Errorf("Unexpected tracks for p1: %+v", document[0].Tracks)
		}
		if document[0].Tracks[0].Artist != "Artist One" || document[0].Tracks[0].Name != "Song One" {
			t.Errorf("Unexpected track fields: %+v", document[0].Tracks[0])
		}

		content := string(keeper.content)
		if !strings.Contains(content, `"track_id": "t1"`) {
			t.Errorf("Document missing track_id field, got: %s", content)
		}
		if !strings.Contains(content, `"tracks": []`) {
			t.Errorf("Empty playlist must serialize as an empty array, got: %s", content)
		}

		updates := collectUpdates(progress)
		if !hasMessage(updates, "Backing up 3 playlists") {
			t.Error("Missing backup-start progress")
		}
		if !hasMessage(updates, "✓ Liked Mix (2 tracks)") {
			t.Error("Missing per-playlist progress")
		}
		if !hasMessage(updates, "Uploading backup document to backup.json") {
			t.Error("Missing upload progress")
		}
	})

	t.Run("Skips Failed Playlists", func(t *testing.T) {
		catalog := backupCatalog()
		catalog.tracksErr["p2"] = errors.New("contents unavailable")
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, catalog, &fakeRecords{}, keeper)

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Backup(context.Background(), backupOpts(), progress)
		if err != nil {
			t.Fatalf("Backup failed: %v", err)
		}

		if result.BackedUp != 2 || len(result.Failed) != 1 {
			t.Errorf("Expected 2 backed up and 1 failure, got %d and %d", result.BackedUp, len(result.Failed))
		}
		if result.Failed[0].PlaylistID != "p2" || result.Failed[0].Err == nil {
			t.Errorf("Unexpected failure entry: %+v", result.Failed[0])
		}

		var document []models.PlaylistBackup
		if err := json.Unmarshal(keeper.content, &document); err != nil {
			t.Fatalf("Uploaded document is not valid JSON: %v", err)
		}
		if len(document) != 2 || document[0].ID != "p1" || document[1].ID != "p3" {
			t.Errorf("Failed playlist must be skipped in order, got %+v", document)
		}

		if !hasMessage(collectUpdates(progress), "✗ Empty Mix") {
			t.Error("Missing failure progress")
		}
	})

	t.Run("Uploads An Empty Document", func(t *testing.T) {
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, newFakeCatalog(), &fakeRecords{}, keeper)

		result, err := engine.Backup(context.Background(), backupOpts(), nil)
		if err != nil {
			t.Fatalf("Backup failed: %v", err)
		}

		if result.TotalPlaylists != 0 || result.BackedUp != 0 {
			t.Errorf("Expected empty backup, got %+v", result)
		}
		if keeper.updates != 1 || strings.TrimSpace(string(keeper.content)) != "[]" {
			t.Errorf("Expected empty array upload, got %q", keeper.content)
		}
	})

	t.Run("Writes A Local Copy", func(t *testing.T) {
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, backupCatalog(), &fakeRecords{}, keeper)

		opts := backupOpts()
		opts.LocalPath = filepath.Join(t.TempDir(), "backup.json")

		result, err := engine.Backup(context.Background(), opts, nil)
		if err != nil {
			t.Fatalf("Backup failed: %v", err)
		}

		if result.LocalPath != opts.LocalPath {
			t.Errorf("Expected local path %q, got %q", opts.LocalPath, result.LocalPath)
		}
		th.AssertFileExists(t, opts.LocalPath)
		if content := th.MustReadFile(t, opts.LocalPath); content != string(keeper.content) {
			t.Error("Local copy must match the uploaded document")
		}
	})

	t.Run("Listing Failure Is Fatal", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.listErr = errors.New("session expired")
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, catalog, &fakeRecords{}, keeper)

		_, err := engine.Backup(context.Background(), backupOpts(), nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("Expected ErrAPIRequest, got %v", err)
		}
		if keeper.updates != 0 {
			t.Error("Nothing must be uploaded when the listing fails")
		}
	})

	t.Run("Upload Failure Returns The Document", func(t *testing.T) {
		keeper := &fakeKeeper{updateErr: errors.New("gist down")}
		engine, _ := newTestEngine(nil, nil, backupCatalog(), &fakeRecords{}, keeper)

		result, err := engine.Backup(context.Background(), backupOpts(), nil)
		if err == nil {
			t.Fatal("Expected upload failure")
		}
		if result == nil || len(result.Document) != 3 {
			t.Errorf("Expected the assembled document alongside the error, got %+v", result)
		}
	})

	t.Run("Requires A Filename", func(t *testing.T) {
		engine, _ := newTestEngine(nil, nil, newFakeCatalog(), &fakeRecords{}, &fakeKeeper{})

		if _, err := engine.Backup(context.Background(), BackupOpts{}, nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("Expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Missing Dependencies", func(t *testing.T) {
		engine := &PipelineEngine{}
		if _, err := engine.Backup(context.Background(), backupOpts(), nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Cancellation Aborts Before Upload", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		catalog := backupCatalog()
		catalog.onTracks = cancel
		keeper := &fakeKeeper{}
		engine, _ := newTestEngine(nil, nil, catalog, &fakeRecords{}, keeper)

		opts := backupOpts()
		opts.NumWorkers = 1

		_, err := engine.Backup(ctx, opts, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if keeper.updates != 0 {
			t.Error("Cancelled backup must not upload")
		}
	})
}
