// Package models defines domain entities and persistence interfaces for the songsift pipeline.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs crossing component boundaries
//   - [SongFields] : The three-field result of classifying one raw title
//   - [TrackRecord] : A classified title plus provenance; the record-store unit
//   - [RunSummary] : Aggregate counters for one pipeline run
//   - [PlaylistBackup], [TrackBackup] : The gist backup document shape
//   - [GistCredentials] : The optional credentials bootstrap document
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PersistedRun] : One pipeline run with its counters
//   - [PersistedRunTrack] : One track outcome (appended, already present, unresolved)
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
