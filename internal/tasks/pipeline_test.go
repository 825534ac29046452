package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/scrape"
	"github.com/songsift/songsift/internal/services"
	"github.com/songsift/songsift/internal/shared"
	th "github.com/songsift/songsift/internal/testing"
)

const pageURL = "https://www.youtube.com/@somecreator/videos"

var testStart = time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)

// stubSource returns a scripted page or error for every fetch.
type stubSource struct {
	mu    sync.Mutex
	page  *scrape.PageTitles
	err   error
	calls int
}

func (s *stubSource) FetchTitles(ctx context.Context, pageURL string, opts scrape.Options) (*scrape.PageTitles, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	page := *s.page
	return &page, nil
}

func (s *stubSource) Name() string { return "stub" }

// classifierFunc adapts a function to [services.Classifier].
type classifierFunc func(ctx context.Context, title string) (models.SongFields, error)

func (f classifierFunc) ClassifyTitle(ctx context.Context, title string) (models.SongFields, error) {
	return f(ctx, title)
}

func (f classifierFunc) Name() string { return "stub" }

// countingClassifier scripts responses per title and counts attempts.
type countingClassifier struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(title string, call int) (models.SongFields, error)
}

func newCountingClassifier(respond func(title string, call int) (models.SongFields, error)) *countingClassifier {
	return &countingClassifier{calls: map[string]int{}, respond: respond}
}

func (c *countingClassifier) ClassifyTitle(ctx context.Context, title string) (models.SongFields, error) {
	c.mu.Lock()
	c.calls[title]++
	call := c.calls[title]
	c.mu.Unlock()
	return c.respond(title, call)
}

func (c *countingClassifier) Name() string { return "stub" }

func (c *countingClassifier) callCount(title string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[title]
}

// fakeCatalog is a scriptable in-memory [services.Catalog]. Every method
// honors context cancellation the way a real HTTP client would.
type fakeCatalog struct {
	mu sync.Mutex

	playlist    services.Playlist
	ensureErr   error
	ensureCalls int
	lastEnsure  struct {
		name, description string
		public            bool
	}

	searchHits map[string]*services.Track
	searchErr  error
	searches   int
	onSearch   func()

	members    map[string][]services.Track
	trackByURI map[string]services.Track
	tracksErr  map[string]error
	onTracks   func()

	addErr error
	added  []string

	playlists []services.Playlist
	listErr   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		playlist:   services.Playlist{ID: "pl1", Name: "Sifted Songs"},
		searchHits: map[string]*services.Track{},
		members:    map[string][]services.Track{},
		trackByURI: map[string]services.Track{},
		tracksErr:  map[string]error{},
	}
}

// addHit registers a search result and makes it appendable by URI.
func (f *fakeCatalog) addHit(artist, track string, hit services.Track) {
	f.searchHits[artist+"|"+track] = &hit
	f.trackByURI[hit.URI] = hit
}

func (f *fakeCatalog) SearchTrack(ctx context.Context, artist, track string) (*services.Track, error) {
	if f.onSearch != nil {
		f.onSearch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if hit, ok := f.searchHits[artist+"|"+track]; ok {
		copied := *hit
		return &copied, nil
	}
	return nil, shared.ErrTrackNotFound
}

func (f *fakeCatalog) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]services.Playlist(nil), f.playlists...), nil
}

func (f *fakeCatalog) EnsurePlaylist(ctx context.Context, name, description string, public bool) (*services.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	f.lastEnsure.name, f.lastEnsure.description, f.lastEnsure.public = name, description, public
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	copied := f.playlist
	return &copied, nil
}

func (f *fakeCatalog) PlaylistTracks(ctx context.Context, playlistID string) ([]services.Track, error) {
	if f.onTracks != nil {
		f.onTracks()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tracksErr[playlistID]; err != nil {
		return nil, err
	}
	return append([]services.Track(nil), f.members[playlistID]...), nil
}

func (f *fakeCatalog) AddTrack(ctx context.Context, playlistID, trackURI string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, trackURI)
	if hit, ok := f.trackByURI[trackURI]; ok {
		f.members[playlistID] = append(f.members[playlistID], hit)
	}
	return nil
}

func (f *fakeCatalog) Name() string { return "fake" }

func (f *fakeCatalog) addedURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

func (f *fakeCatalog) ensured() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureCalls
}

// fakeRecords is an in-memory [Records] double.
type fakeRecords struct {
	mu       sync.Mutex
	existing []models.TrackRecord
	loadErr  error
	saveErr  error
	saved    [][]models.TrackRecord
}

func (f *fakeRecords) Load(ctx context.Context) ([]models.TrackRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]models.TrackRecord(nil), f.existing...), nil
}

func (f *fakeRecords) Save(ctx context.Context, records []models.TrackRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, records)
	return f.saveErr
}

func (f *fakeRecords) savedBatches() [][]models.TrackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]models.TrackRecord(nil), f.saved...)
}

// fakeKeeper records the last uploaded file.
type fakeKeeper struct {
	mu          sync.Mutex
	updateErr   error
	filename    string
	description string
	content     []byte
	updates     int
}

func (f *fakeKeeper) FetchFile(ctx context.Context, filename string) ([]byte, error) {
	return nil, shared.ErrFileNotFound
}

func (f *fakeKeeper) UpdateFile(ctx context.Context, filename, description string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.filename, f.description, f.content = filename, description, content
	return nil
}

func (f *fakeKeeper) Name() string { return "fake" }

// sleepRecorder captures rate-limit suspensions instead of sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// newTestEngine builds an engine with instant retries and a recorded clock.
func newTestEngine(source scrape.TitleSource, classifier services.Classifier, catalog services.Catalog, records Records, keeper services.RecordKeeper) (*PipelineEngine, *sleepRecorder) {
	sleeps := &sleepRecorder{}
	engine := &PipelineEngine{
		source:      func(string) (scrape.TitleSource, error) { return source, nil },
		classifier:  classifier,
		catalog:     catalog,
		records:     records,
		keeper:      keeper,
		playlist:    shared.PlaylistConfig{Name: "Sifted Songs", Description: "Songs sifted from scraped titles", Public: false},
		retryConfig: retry.Config{MaxAttempts: 3},
		sleep:       sleeps.sleep,
		now:         func() time.Time { return testStart },
	}
	return engine, sleeps
}

func testPage() *scrape.PageTitles {
	return &scrape.PageTitles{
		Channel: "somecreator",
		Titles: []string{
			"ARTIST ONE - SONG ONE (Official Video)",
			"artist two - song two [lyric video]",
		},
	}
}

func classifiedAs(fields models.SongFields) classifierFunc {
	return func(context.Context, string) (models.SongFields, error) {
		return fields, nil
	}
}

func collectUpdates(progress chan ProgressUpdate) []ProgressUpdate {
	close(progress)
	var updates []ProgressUpdate
	for update := range progress {
		updates = append(updates, update)
	}
	return updates
}

func hasMessage(updates []ProgressUpdate, substr string) bool {
	for _, update := range updates {
		if strings.Contains(update.Message, substr) {
			return true
		}
	}
	return false
}

func TestPipelineRun(t *testing.T) {
	t.Run("Appends Fresh Titles", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})
		catalog.addHit("Artist Two", "Song Two", services.Track{ID: "t2", URI: "spotify:track:t2", Name: "Song Two", Artist: "Artist Two"})

		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			if strings.Contains(title, "ONE") {
				return models.SongFields{Artist: "artist one", Track: "song one", Title: "song one (official video)"}, nil
			}
			return models.SongFields{Artist: "artist two", Track: "song two", Title: "song two [lyric video]"}, nil
		})

		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: testPage()}, classifier, catalog, records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.Scraped != 2 || result.Fresh != 2 {
			t.Errorf("Expected 2 scraped and 2 fresh, got %d and %d", result.Scraped, result.Fresh)
		}
		if result.Appended != 2 || result.AlreadyPresent != 0 || len(result.Unresolved) != 0 {
			t.Errorf("Expected 2 appended, got %d appended / %d present / %d unresolved",
				result.Appended, result.AlreadyPresent, len(result.Unresolved))
		}
		if result.Channel != "somecreator" {
			t.Errorf("Expected channel somecreator, got %q", result.Channel)
		}
		if result.Playlist == nil || result.Playlist.Name != "Sifted Songs" {
			t.Errorf("Expected playlist Sifted Songs, got %+v", result.Playlist)
		}
		if !result.RecordSynced {
			t.Error("Expected record store to be synced")
		}

		if len(result.Processed) != 2 {
			t.Fatalf("Expected 2 processed records, got %d", len(result.Processed))
		}
		first := result.Processed[0]
		if first.Artist != "Artist One" || first.Track != "Song One" {
			t.Errorf("Expected title-cased fields, got %q / %q", first.Artist, first.Track)
		}
		if first.OriginalTitle != "ARTIST ONE - SONG ONE (Official Video)" {
			t.Errorf("Unexpected original title: %q", first.OriginalTitle)
		}
		if first.Channel != "somecreator" || !first.ProcessedAt.Equal(testStart) {
			t.Errorf("Unexpected provenance: %+v", first)
		}

		if got := catalog.addedURIs(); len(got) != 2 || got[0] != "spotify:track:t1" || got[1] != "spotify:track:t2" {
			t.Errorf("Unexpected appended URIs: %v", got)
		}
		if catalog.ensured() != 1 {
			t.Errorf("Expected one playlist resolution, got %d", catalog.ensured())
		}
		if catalog.lastEnsure.name != "Sifted Songs" || catalog.lastEnsure.public {
			t.Errorf("Playlist config not plumbed through: %+v", catalog.lastEnsure)
		}

		batches := records.savedBatches()
		if len(batches) != 1 || len(batches[0]) != 2 {
			t.Fatalf("Expected one save of 2 records, got %d batches", len(batches))
		}

		summary := result.Summary()
		if summary.Appended != 2 || summary.Scraped != 2 || !summary.RecordSynced {
			t.Errorf("Summary does not match result: %+v", summary)
		}

		updates := collectUpdates(progress)
		if !hasMessage(updates, "2 of 2 titles are new") {
			t.Error("Missing filter progress")
		}
		if !hasMessage(updates, "[1/2] Classifying:") {
			t.Error("Missing classification progress")
		}
		if !hasMessage(updates, `Reconciling 2 tracks into "Sifted Songs"`) {
			t.Error("Missing reconciliation progress")
		}
	})

	t.Run("Skips Known Titles", func(t *testing.T) {
		known := models.TrackRecord{
			Artist:        "Artist One",
			Track:         "Song One",
			Title:         "Song One",
			OriginalTitle: "ARTIST ONE - SONG ONE (Official Video)",
			Channel:       "somecreator",
			ProcessedAt:   testStart.Add(-24 * time.Hour),
		}

		catalog := newFakeCatalog()
		catalog.addHit("Artist Two", "Song Two", services.Track{ID: "t2", URI: "spotify:track:t2", Name: "Song Two", Artist: "Artist Two"})

		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			return models.SongFields{Artist: "Artist Two", Track: "Song Two", Title: "Song Two"}, nil
		})

		records := &fakeRecords{existing: []models.TrackRecord{known}}
		engine, _ := newTestEngine(&stubSource{page: testPage()}, classifier, catalog, records, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.Scraped != 2 || result.Fresh != 1 {
			t.Errorf("Expected 1 fresh of 2 scraped, got %d of %d", result.Fresh, result.Scraped)
		}
		if classifier.callCount(known.OriginalTitle) != 0 {
			t.Error("Known title must not be classified again")
		}

		batches := records.savedBatches()
		if len(batches) != 1 || len(batches[0]) != 2 {
			t.Fatalf("Expected history of 2 records, got %+v", batches)
		}
		if batches[0][0].OriginalTitle != known.OriginalTitle {
			t.Error("Existing history must precede new records")
		}
	})

	t.Run("Already Present Tracks Are Not Re-Added", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})
		// Same song, different case and spacing than the catalog hit.
		catalog.members["pl1"] = []services.Track{{ID: "t1", URI: "spotify:track:t1", Name: "SONG  ONE", Artist: "artist one"}}

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE (Official Video)"}}
		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, records, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.Appended != 0 || result.AlreadyPresent != 1 {
			t.Errorf("Expected membership hit, got %d appended / %d present", result.Appended, result.AlreadyPresent)
		}
		if got := catalog.addedURIs(); len(got) != 0 {
			t.Errorf("Expected no appends, got %v", got)
		}
		if len(records.savedBatches()) != 1 {
			t.Error("Present track must still join the history")
		}
	})

	t.Run("Membership Sees Appends From The Same Run", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})

		// Two distinct titles that classify to the same song.
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{
			"ARTIST ONE - SONG ONE (Official Video)",
			"Artist One - Song One (Live)",
		}}
		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})

		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.Appended != 1 || result.AlreadyPresent != 1 {
			t.Errorf("Expected second copy to be present, got %d appended / %d present",
				result.Appended, result.AlreadyPresent)
		}
		if got := catalog.addedURIs(); len(got) != 1 {
			t.Errorf("Expected a single append, got %v", got)
		}
	})

	t.Run("Unknown Classification Skips The Catalog", func(t *testing.T) {
		catalog := newFakeCatalog()
		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			return models.SongFields{}, fmt.Errorf("%w: not a JSON object", shared.ErrMalformedClassification)
		})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"my vlog, day 12"}}
		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if classifier.callCount("my vlog, day 12") != 1 {
			t.Errorf("Malformed response must not be retried, got %d calls", classifier.callCount("my vlog, day 12"))
		}
		if len(result.Processed) != 1 || !result.Processed[0].IsUnknown() {
			t.Fatalf("Expected one Unknown record, got %+v", result.Processed)
		}
		if len(result.Unresolved) != 1 {
			t.Errorf("Unknown record must be unresolved, got %d", len(result.Unresolved))
		}
		if catalog.searches != 0 {
			t.Errorf("Unknown record must not be searched, got %d searches", catalog.searches)
		}
		if len(records.savedBatches()) != 1 || len(records.savedBatches()[0]) != 1 {
			t.Error("Unknown record must still join the history")
		}
		if !hasMessage(collectUpdates(progress), "recording as Unknown") {
			t.Error("Missing malformed-classification progress")
		}
	})

	t.Run("Retries Transient Classifier Failures", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})

		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			if call < 3 {
				return models.SongFields{}, errors.New("upstream hiccup")
			}
			return models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"}, nil
		})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if classifier.callCount("ARTIST ONE - SONG ONE") != 3 {
			t.Errorf("Expected 3 attempts, got %d", classifier.callCount("ARTIST ONE - SONG ONE"))
		}
		if result.Appended != 1 {
			t.Errorf("Expected recovered classification to append, got %d", result.Appended)
		}
	})

	t.Run("Falls Back To Unknown When Retries Exhaust", func(t *testing.T) {
		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			return models.SongFields{}, errors.New("upstream hiccup")
		})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, newFakeCatalog(), records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if classifier.callCount("ARTIST ONE - SONG ONE") != 3 {
			t.Errorf("Expected exactly 3 attempts, got %d", classifier.callCount("ARTIST ONE - SONG ONE"))
		}
		if len(result.Processed) != 1 || !result.Processed[0].IsUnknown() {
			t.Fatalf("Expected Unknown fallback, got %+v", result.Processed)
		}
		if !hasMessage(collectUpdates(progress), "✗ Classification failed") {
			t.Error("Missing classification-failure progress")
		}
	})

	t.Run("Rate Limit Suspends Then Retries Once", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})

		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			if call <= 3 {
				return models.SongFields{}, &retry.RateLimitError{StatusCode: 429, RetryAfter: 7 * time.Second}
			}
			return models.SongFields{Artist: "artist one", Track: "song one", Title: "song one"}, nil
		})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, sleeps := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if classifier.callCount("ARTIST ONE - SONG ONE") != 4 {
			t.Errorf("Expected 3 attempts plus one after suspension, got %d", classifier.callCount("ARTIST ONE - SONG ONE"))
		}
		if waits := sleeps.recorded(); len(waits) != 1 || waits[0] != 7*time.Second {
			t.Errorf("Expected a single 7s suspension, got %v", waits)
		}
		if result.Processed[0].Artist != "Artist One" {
			t.Errorf("Expected recovered classification, got %+v", result.Processed[0])
		}
		if result.Appended != 1 {
			t.Errorf("Expected recovered track to append, got %d", result.Appended)
		}
		if !hasMessage(collectUpdates(progress), "Rate limited, waiting 7s") {
			t.Error("Missing suspension progress")
		}
	})

	t.Run("Rate Limited Final Attempt Falls Back To Unknown", func(t *testing.T) {
		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			return models.SongFields{}, &retry.RateLimitError{
				StatusCode: 429,
				Message:    "Please try again in 2.5s",
			}
		})

		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, sleeps := newTestEngine(&stubSource{page: page}, classifier, newFakeCatalog(), &fakeRecords{}, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if classifier.callCount("ARTIST ONE - SONG ONE") != 4 {
			t.Errorf("Expected 4 attempts total, got %d", classifier.callCount("ARTIST ONE - SONG ONE"))
		}
		if waits := sleeps.recorded(); len(waits) != 1 || waits[0] != 2500*time.Millisecond {
			t.Errorf("Expected the parsed 2.5s hint, got %v", waits)
		}
		if !result.Processed[0].IsUnknown() {
			t.Errorf("Expected Unknown fallback, got %+v", result.Processed[0])
		}
	})

	t.Run("Source Failure Yields An Empty Run", func(t *testing.T) {
		source := &stubSource{err: fmt.Errorf("%w: connection refused", shared.ErrSourceUnavailable)}
		records := &fakeRecords{existing: []models.TrackRecord{{OriginalTitle: "old", ProcessedAt: testStart}}}
		catalog := newFakeCatalog()
		engine, _ := newTestEngine(source, classifiedAs(models.SongFields{}), catalog, records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Expected contained source failure, got %v", err)
		}

		if result.Scraped != 0 || result.Fresh != 0 {
			t.Errorf("Expected empty run, got %d scraped / %d fresh", result.Scraped, result.Fresh)
		}
		if result.Channel != "somecreator" {
			t.Errorf("Expected channel from URL, got %q", result.Channel)
		}
		if catalog.ensured() != 0 {
			t.Error("Empty run must not resolve the playlist")
		}

		// The store is still written, so the run is visible in history.
		batches := records.savedBatches()
		if len(batches) != 1 || len(batches[0]) != 1 {
			t.Fatalf("Expected history rewrite with existing records, got %+v", batches)
		}
		if !result.RecordSynced {
			t.Error("Expected record store to be synced")
		}
		if !hasMessage(collectUpdates(progress), "✗ Title source unavailable") {
			t.Error("Missing source-failure progress")
		}
	})

	t.Run("Invalid URL Is Fatal", func(t *testing.T) {
		source := &stubSource{err: fmt.Errorf("%w: page URL needs a scheme", shared.ErrInvalidArgument)}
		records := &fakeRecords{}
		engine, _ := newTestEngine(source, classifiedAs(models.SongFields{}), newFakeCatalog(), records, &fakeKeeper{})

		_, err := engine.Run(context.Background(), RunOpts{URL: "not a url"}, nil)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("Expected ErrInvalidArgument, got %v", err)
		}
		if len(records.savedBatches()) != 0 {
			t.Error("Fatal run must not touch the record store")
		}
	})

	t.Run("Driver Selection Failure Is Fatal", func(t *testing.T) {
		records := &fakeRecords{}
		engine, _ := newTestEngine(nil, classifiedAs(models.SongFields{}), newFakeCatalog(), records, &fakeKeeper{})
		engine.source = func(string) (scrape.TitleSource, error) {
			return nil, fmt.Errorf("%w: page URL needs a host", shared.ErrInvalidArgument)
		}

		_, err := engine.Run(context.Background(), RunOpts{URL: "https://"}, nil)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("Expected ErrInvalidArgument, got %v", err)
		}
		if len(records.savedBatches()) != 0 {
			t.Error("Fatal run must not touch the record store")
		}
	})

	t.Run("Unreadable Record Store Is Fatal", func(t *testing.T) {
		source := &stubSource{page: testPage()}
		records := &fakeRecords{loadErr: errors.New("corrupt store")}
		engine, _ := newTestEngine(source, classifiedAs(models.SongFields{}), newFakeCatalog(), records, &fakeKeeper{})

		_, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err == nil {
			t.Fatal("Expected load failure to abort the run")
		}
		if source.calls != 0 {
			t.Error("Titles must not be fetched when the store is unreadable")
		}
	})

	t.Run("Playlist Resolution Failure Is Fatal", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.ensureErr = errors.New("expired session")

		classifier := newCountingClassifier(func(title string, call int) (models.SongFields, error) {
			return models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"}, nil
		})

		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: testPage()}, classifier, catalog, records, &fakeKeeper{})

		_, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("Expected ErrAPIRequest, got %v", err)
		}
		if classifier.callCount("ARTIST ONE - SONG ONE (Official Video)") != 0 {
			t.Error("Playlist must be resolved before any classifier call is spent")
		}
		if len(records.savedBatches()) != 0 {
			t.Error("Fatal run must not touch the record store")
		}
	})

	t.Run("Search Failure Marks The Track Unresolved", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.searchErr = errors.New("search exploded")

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Per-track failure must be contained, got %v", err)
		}

		if len(result.Unresolved) != 1 {
			t.Fatalf("Expected one unresolved track, got %d", len(result.Unresolved))
		}
		if result.Outcomes[0].Err == nil {
			t.Error("Outcome must carry the search failure")
		}
		if !result.RecordSynced || len(records.savedBatches()) != 1 {
			t.Error("Failed track must still join the history")
		}
		if !hasMessage(collectUpdates(progress), "✗ Artist One - Song One") {
			t.Error("Missing unresolved-track progress")
		}
	})

	t.Run("Membership Snapshot Failure Marks The Track Unresolved", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})
		catalog.tracksErr["pl1"] = errors.New("snapshot exploded")

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Per-track failure must be contained, got %v", err)
		}
		if len(result.Unresolved) != 1 || result.Appended != 0 {
			t.Errorf("Expected unresolved track, got %d unresolved / %d appended", len(result.Unresolved), result.Appended)
		}
	})

	t.Run("Append Failure Marks The Track Unresolved", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})
		catalog.addErr = errors.New("append rejected")

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil)
		if err != nil {
			t.Fatalf("Per-track failure must be contained, got %v", err)
		}
		if len(result.Unresolved) != 1 || result.Appended != 0 {
			t.Errorf("Expected unresolved track, got %d unresolved / %d appended", len(result.Unresolved), result.Appended)
		}
	})

	t.Run("Writes The Unresolved Report", func(t *testing.T) {
		classifier := classifiedAs(models.SongFields{Artist: models.UnknownField, Track: models.UnknownField, Title: models.UnknownField})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"my vlog, day 12"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, newFakeCatalog(), &fakeRecords{}, &fakeKeeper{})

		reportPath := filepath.Join(t.TempDir(), "unresolved.csv")
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL, ReportPath: reportPath}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.ReportPath != reportPath {
			t.Errorf("Expected report path %q, got %q", reportPath, result.ReportPath)
		}
		th.AssertFileExists(t, reportPath)
		if content := th.MustReadFile(t, reportPath); !strings.Contains(content, "my vlog, day 12") {
			t.Errorf("Report missing unresolved title, got: %s", content)
		}
	})

	t.Run("No Report Without Unresolved Tracks", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, &fakeRecords{}, &fakeKeeper{})

		reportPath := filepath.Join(t.TempDir(), "unresolved.csv")
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL, ReportPath: reportPath}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.ReportPath != "" {
			t.Errorf("Expected no report, got %q", result.ReportPath)
		}
		if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
			t.Error("Report file must not be created for a clean run")
		}
	})

	t.Run("Report Failure Does Not Fail The Run", func(t *testing.T) {
		classifier := classifiedAs(models.SongFields{Artist: models.UnknownField, Track: models.UnknownField, Title: models.UnknownField})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"my vlog, day 12"}}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, newFakeCatalog(), &fakeRecords{}, &fakeKeeper{})

		reportPath := filepath.Join(t.TempDir(), "missing", "unresolved.csv")
		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL, ReportPath: reportPath}, progress)
		if err != nil {
			t.Fatalf("Report failure must be contained, got %v", err)
		}

		if result.ReportPath != "" {
			t.Errorf("Failed report must not be recorded, got %q", result.ReportPath)
		}
		if !result.RecordSynced {
			t.Error("Records must still be persisted after a report failure")
		}
		if !hasMessage(collectUpdates(progress), "✗ Report write failed") {
			t.Error("Missing report-failure progress")
		}
	})

	t.Run("Persist Failure Is Reported Not Fatal", func(t *testing.T) {
		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		records := &fakeRecords{saveErr: errors.New("gist down")}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, records, &fakeKeeper{})

		progress := make(chan ProgressUpdate, 64)
		result, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, progress)
		if err != nil {
			t.Fatalf("Persist failure must be contained, got %v", err)
		}

		if result.RecordSynced {
			t.Error("Expected RecordSynced=false after a failed save")
		}
		if result.Appended != 1 {
			t.Error("Playlist mutations must survive a failed save")
		}
		if !hasMessage(collectUpdates(progress), "✗ Record store update failed") {
			t.Error("Missing persist-failure progress")
		}
	})

	t.Run("Cancellation During Classification Aborts The Run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		classifier := classifierFunc(func(ctx context.Context, title string) (models.SongFields, error) {
			cancel()
			return models.SongFields{}, ctx.Err()
		})

		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: testPage()}, classifier, newFakeCatalog(), records, &fakeKeeper{})

		result, err := engine.Run(ctx, RunOpts{URL: pageURL}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if result != nil {
			t.Errorf("Expected nil result, got %+v", result)
		}
		if len(records.savedBatches()) != 0 {
			t.Error("Cancelled run must not touch the record store")
		}
	})

	t.Run("Cancellation During Reconciliation Aborts The Run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		catalog := newFakeCatalog()
		catalog.addHit("Artist One", "Song One", services.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song One", Artist: "Artist One"})
		catalog.onTracks = cancel

		classifier := classifiedAs(models.SongFields{Artist: "Artist One", Track: "Song One", Title: "Song One"})
		page := &scrape.PageTitles{Channel: "somecreator", Titles: []string{"ARTIST ONE - SONG ONE"}}
		records := &fakeRecords{}
		engine, _ := newTestEngine(&stubSource{page: page}, classifier, catalog, records, &fakeKeeper{})

		_, err := engine.Run(ctx, RunOpts{URL: pageURL}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if len(records.savedBatches()) != 0 {
			t.Error("Cancelled run must not touch the record store")
		}
	})

	t.Run("Missing Dependencies", func(t *testing.T) {
		engine := &PipelineEngine{}
		if _, err := engine.Run(context.Background(), RunOpts{URL: pageURL}, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
		}
	})
}
