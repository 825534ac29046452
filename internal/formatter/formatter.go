// package formatter renders pipeline outcomes: the unresolved-tracks CSV
// report and run-history views (plain text, Markdown).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/songsift/songsift/internal/models"
)

// UnresolvedToCSV converts unresolved track records to CSV with columns:
// artist, track, title, original_title, channel, date
func UnresolvedToCSV(records []models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"artist", "track", "title", "original_title", "channel", "date"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.Artist,
			record.Track,
			record.Title,
			record.OriginalTitle,
			record.Channel,
			record.ProcessedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteUnresolvedReport writes the unresolved-tracks report to path,
// replacing any report left by a previous run.
func WriteUnresolvedReport(path string, records []models.TrackRecord) error {
	data, err := UnresolvedToCSV(records)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// RunsToText renders a run listing, one line per run.
func RunsToText(runs []*models.PersistedRun) []byte {
	var buf bytes.Buffer

	for _, run := range runs {
		s := run.Summary()
		buf.WriteString(fmt.Sprintf("#%d  %s  %s\n", run.Sequence(), s.StartedAt.Format("2006-01-02 15:04"), s.URL))
		buf.WriteString(fmt.Sprintf("    scraped %d | new %d | appended %d | already present %d | unresolved %d\n",
			s.Scraped, s.Fresh, s.Appended, s.AlreadyPresent, s.Unresolved))
	}

	return buf.Bytes()
}

// RunToText renders one run and its per-track outcomes as plain text.
func RunToText(run *models.PersistedRun, tracks []*models.PersistedRunTrack) []byte {
	var buf bytes.Buffer
	s := run.Summary()

	buf.WriteString(fmt.Sprintf("Run #%d (%s)\n", run.Sequence(), run.ID()))
	buf.WriteString(fmt.Sprintf("URL: %s\n", s.URL))
	if s.Channel != "" {
		buf.WriteString(fmt.Sprintf("Channel: %s\n", s.Channel))
	}
	buf.WriteString(fmt.Sprintf("Started: %s\n", s.StartedAt.Format(time.RFC3339)))
	if !s.FinishedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("Finished: %s\n", s.FinishedAt.Format(time.RFC3339)))
	}
	buf.WriteString(fmt.Sprintf("Scraped: %d, new: %d\n", s.Scraped, s.Fresh))
	buf.WriteString(fmt.Sprintf("Appended: %d, already present: %d, unresolved: %d\n", s.Appended, s.AlreadyPresent, s.Unresolved))
	buf.WriteString(fmt.Sprintf("Record store synced: %t\n", s.RecordSynced))

	if len(tracks) > 0 {
		buf.WriteString("\nTracks:\n")
		for i, track := range tracks {
			r := track.Record()
			buf.WriteString(fmt.Sprintf("%d. [%s] %s - %s (%s)\n", i+1, track.Status(), r.Artist, r.Track, r.OriginalTitle))
		}
	}

	return buf.Bytes()
}

// RunToMarkdown renders one run and its per-track outcomes as Markdown.
func RunToMarkdown(run *models.PersistedRun, tracks []*models.PersistedRunTrack) []byte {
	var buf bytes.Buffer
	s := run.Summary()

	buf.WriteString(fmt.Sprintf("# Run %d\n\n", run.Sequence()))
	buf.WriteString(fmt.Sprintf("**URL**: %s\n\n", s.URL))
	if s.Channel != "" {
		buf.WriteString(fmt.Sprintf("**Channel**: %s\n\n", s.Channel))
	}
	buf.WriteString(fmt.Sprintf("**Started**: %s\n\n", s.StartedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Scraped**: %d | **New**: %d | **Appended**: %d | **Already present**: %d | **Unresolved**: %d\n\n",
		s.Scraped, s.Fresh, s.Appended, s.AlreadyPresent, s.Unresolved))

	if len(tracks) > 0 {
		buf.WriteString("## Tracks\n\n")
		buf.WriteString("| # | Status | Artist | Track | Original Title |\n")
		buf.WriteString("|---|--------|--------|-------|----------------|\n")
		for i, track := range tracks {
			r := track.Record()
			buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", i+1, track.Status(), r.Artist, r.Track, r.OriginalTitle))
		}
	}

	return buf.Bytes()
}
