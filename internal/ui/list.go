package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/songsift/songsift/internal/models"
)

var _ list.Item = unresolvedItem{}

// unresolvedItem wraps [models.TrackRecord] to implement [list.Item].
type unresolvedItem struct {
	record models.TrackRecord
}

func (i unresolvedItem) FilterValue() string { return i.record.OriginalTitle }
func (i unresolvedItem) Title() string {
	return fmt.Sprintf("%s - %s", i.record.Artist, i.record.Track)
}
func (i unresolvedItem) Description() string {
	desc := i.record.OriginalTitle
	if i.record.Channel != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.record.Channel)
	}
	return desc
}
