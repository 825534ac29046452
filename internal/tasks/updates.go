package tasks

import (
	"fmt"
	"time"

	"github.com/songsift/songsift/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	FetchTitles Phase = iota
	FilterTitles
	ClassifyTitles
	ReconcileTracks
	WriteReport
	PersistRecords
	BackupPlaylists
)

func (p Phase) String() string {
	switch p {
	case FetchTitles:
		return "fetch_titles"
	case FilterTitles:
		return "filter_titles"
	case ClassifyTitles:
		return "classify_titles"
	case ReconcileTracks:
		return "reconcile_tracks"
	case WriteReport:
		return "write_report"
	case PersistRecords:
		return "persist_records"
	case BackupPlaylists:
		return "backup_playlists"
	default:
		return ""
	}
}

func fetchTitlesUpdate(url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTitles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching titles from %s...", url),
	}
}

func sourceFailedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTitles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ Title source unavailable: %v", err),
	}
}

func titlesFetchedUpdate(channel string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTitles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d titles on %s", count, channel),
	}
}

func filterUpdate(scraped, fresh int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FilterTitles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d of %d titles are new", fresh, scraped),
	}
}

func classifyUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ClassifyTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Classifying: %s", step, total, title),
	}
}

func classifyMalformedUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ClassifyTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Unusable classification for %q, recording as Unknown", step, total, title),
	}
}

func classifySuspendedUpdate(step, total int, wait time.Duration) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ClassifyTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Rate limited, waiting %s before one more attempt", step, total, wait),
	}
}

func classifyFailedUpdate(step, total int, title string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ClassifyTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ Classification failed for %q: %v", step, total, title, err),
	}
}

func reconcileStartUpdate(playlistName string, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReconcileTracks,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Reconciling %d tracks into %q...", total, playlistName),
	}
}

func reconcileTrackUpdate(step, total int, record models.TrackRecord) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReconcileTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, record.Artist, record.Track),
	}
}

func trackUnresolvedUpdate(step, total int, record models.TrackRecord, err error) ProgressUpdate {
	update := ProgressUpdate{
		Phase:   ReconcileTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s - %s", step, total, record.Artist, record.Track),
	}
	if err != nil {
		update.Message = fmt.Sprintf("%s: %v", update.Message, err)
	}
	return update
}

func writeReportUpdate(count int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteReport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %d unresolved tracks to %s", count, path),
	}
}

func reportFailedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteReport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ Report write failed: %v", err),
	}
}

func persistUpdate(added, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistRecords,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Persisting %d new records (%d total)...", added, total),
	}
}

func persistFailedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistRecords,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ Record store update failed: %v", err),
	}
}

func backupStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylists,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Backing up %d playlists...", total),
	}
}

func backupCompletedUpdate(step, total int, name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, name, tracks),
	}
}

func backupFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func backupUploadUpdate(filename string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Uploading backup document to %s...", filename),
	}
}
