package nowplaying

import (
	"strings"
	"time"

	"vibe/internal/palette"
	"vibe/internal/spotify"
)

// TrackState is the client-facing now-playing payload, recomputed on every resolution.
type TrackState struct {
	Item          *spotify.Track   `json:"item"`
	IsPlaying     bool             `json:"is_playing"`
	PlayedAt      *time.Time       `json:"played_at"`
	ProgressMs    int              `json:"progress_ms,omitempty"`
	AlbumImageURL string           `json:"album_image_url"`
	AlbumBase64   *string          `json:"album_base64"`
	AlbumPalette  *palette.Palette `json:"album_palette"`
}

func newTrackState(item *spotify.Track, isPlaying bool, playedAt *time.Time) *TrackState {
	return &TrackState{
		Item:          item,
		IsPlaying:     isPlaying,
		PlayedAt:      playedAt,
		AlbumImageURL: spotify.AlbumImageURL(item),
	}
}

// TrackID returns the id of the resolved track, or "" for an empty state.
func (s *TrackState) TrackID() string {
	if s == nil || s.Item == nil {
		return ""
	}
	return string(s.Item.ID)
}

// Title returns the track name, or "Nothing" for an empty state.
func (s *TrackState) Title() string {
	if s == nil || s.Item == nil {
		return "Nothing"
	}
	return s.Item.Name
}

// Artists returns the artist names joined with ", ".
func (s *TrackState) Artists() string {
	if s == nil || s.Item == nil {
		return ""
	}
	names := make([]string, 0, len(s.Item.Artists))
	for _, a := range s.Item.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Changed reports whether next differs from s in what the display shows:
// presence of a track, the playing flag, the track itself, when it was played,
// or its artwork and background colour.
func (s *TrackState) Changed(next *TrackState) bool {
	if s == nil || next == nil {
		return s != next
	}
	if s.IsPlaying != next.IsPlaying || s.TrackID() != next.TrackID() {
		return true
	}
	if !samePlayedAt(s.PlayedAt, next.PlayedAt) {
		return true
	}
	if (s.AlbumBase64 == nil) != (next.AlbumBase64 == nil) {
		return true
	}
	if (s.AlbumPalette == nil) != (next.AlbumPalette == nil) {
		return true
	}
	return s.AlbumPalette != nil && s.AlbumPalette.Background != next.AlbumPalette.Background
}

func samePlayedAt(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
