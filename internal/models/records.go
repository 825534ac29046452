package models

import (
	"time"
)

// UnknownField is the literal value classification falls back to when a
// title carries no discernible song reference.
const UnknownField = "Unknown"

// SongFields is the structured result of classifying one raw title.
type SongFields struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
	Title  string `json:"title"`
}

// IsUnknown reports whether the classifier found no song reference: a
// record that names neither an artist nor a track cannot be searched.
func (s SongFields) IsUnknown() bool {
	return s.Artist == UnknownField && s.Track == UnknownField
}

// TrackRecord is a classified title plus its provenance. Records are
// immutable once built and are both the unit of playlist reconciliation
// and the unit of record-store persistence.
type TrackRecord struct {
	Artist        string    `json:"artist"`
	Track         string    `json:"track"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title"`
	Channel       string    `json:"channel"`
	ProcessedAt   time.Time `json:"date"`
}

// NewTrackRecord stamps classified song fields with their provenance.
func NewTrackRecord(fields SongFields, originalTitle, channel string, at time.Time) TrackRecord {
	return TrackRecord{
		Artist:        fields.Artist,
		Track:         fields.Track,
		Title:         fields.Title,
		OriginalTitle: originalTitle,
		Channel:       channel,
		ProcessedAt:   at,
	}
}

// UnknownRecord builds the default record for a title that could not be
// classified.
func UnknownRecord(originalTitle, channel string, at time.Time) TrackRecord {
	return NewTrackRecord(SongFields{
		Artist: UnknownField,
		Track:  UnknownField,
		Title:  UnknownField,
	}, originalTitle, channel, at)
}

// Fields returns the song fields of the record.
func (r TrackRecord) Fields() SongFields {
	return SongFields{Artist: r.Artist, Track: r.Track, Title: r.Title}
}

// IsUnknown reports whether the record carries no searchable song reference.
func (r TrackRecord) IsUnknown() bool {
	return r.Fields().IsUnknown()
}

// PlaylistBackup is one playlist in the gist backup document.
type PlaylistBackup struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Tracks []TrackBackup `json:"tracks"`
}

// TrackBackup is one track of a backed-up playlist.
type TrackBackup struct {
	TrackID string `json:"track_id"`
	Artist  string `json:"artist"`
	Name    string `json:"name"`
}

// GistCredentials is the bootstrap credentials document optionally stored
// alongside the record store.
type GistCredentials struct {
	UserID       string `json:"user_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	GroqAPIKey   string `json:"groq_api_key"`
}
