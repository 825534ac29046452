// Package tasks orchestrates the title-to-playlist pipeline with real-time
// progress reporting.
//
// # Core Operations
//
// The [Engine] interface defines two operations:
//
//  1. [Engine.Run] : the full pipeline
//     - Fetches raw titles from the creator page
//     - Filters out titles the record store already knows
//     - Classifies each fresh title into {artist, track, title}
//     - Reconciles each record into the target playlist
//     - Writes the unresolved report and persists the record store
//
//  2. [Engine.Backup] : companion playlist backup
//     - Lists every playlist of the authenticated user
//     - Fetches contents concurrently under a shared rate limiter
//     - Uploads one JSON document to the record keeper
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters and messages
// for display. Updates use select with default to prevent blocking.
//
// # Failure Containment
//
// Classification failures degrade to the Unknown record after the retry
// ladder; reconciliation failures are caught per track and mark the track
// unresolved. Only an unreadable record store, an unresolvable playlist,
// or a cancelled context abort a run.
//
// # Implementation
//
// [PipelineEngine] implements [Engine] with dependencies on:
//   - [services.Classifier] : the Groq title classifier
//   - [services.Catalog] : the Spotify playlist service
//   - [Records] : the gist-backed processed-track history
//   - [services.RecordKeeper] : raw gist file access for the backup
package tasks
