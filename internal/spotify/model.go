package spotify

import (
	"time"

	spotifyapi "github.com/zmb3/spotify"
)

// Track is the upstream track object. Only id, name, artists and album are relied on.
type Track = spotifyapi.FullTrack

// CurrentlyPlaying represents the currently playing object from the Spotify API.
// IsPlaying is a pointer so an omitted flag can be told apart from false.
type CurrentlyPlaying struct {
	IsPlaying  *bool  `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
	Timestamp  int64  `json:"timestamp"`
	Item       *Track `json:"item"`
}

// RecentlyPlayedItem is one entry of the recently-played history.
type RecentlyPlayedItem struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

type recentlyPlayedPage struct {
	Items []RecentlyPlayedItem `json:"items"`
}

type errorBody struct {
	Error spotifyapi.Error `json:"error"`
}

// AlbumImageURL returns the first (largest) album image of t, or "" when there is none.
func AlbumImageURL(t *Track) string {
	if t == nil || len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}
