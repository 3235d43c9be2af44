// Package nowplaying resolves what the account is playing and derives the album colours.
package nowplaying

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"vibe/internal/spotify"
)

// Upstream is the subset of the Web API the resolver needs.
type Upstream interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.CurrentlyPlaying, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]spotify.RecentlyPlayedItem, error)
}

// Resolver reconciles currently-playing and recently-played into one TrackState.
type Resolver struct {
	upstream Upstream
}

// NewResolver creates a Resolver.
func NewResolver(upstream Upstream) *Resolver {
	return &Resolver{upstream: upstream}
}

// Resolve returns what is playing now, or the most recently played track when nothing is.
// A nil state with a nil error means there is nothing to show.
func (r *Resolver) Resolve(ctx context.Context) (*TrackState, error) {
	current, err := r.upstream.CurrentlyPlaying(ctx)
	if errors.Is(err, spotify.ErrNoContent) {
		return r.lastPlayed(ctx), nil
	}
	if err != nil {
		return nil, err
	}

	if current.Item == nil {
		logrus.Debug("currently playing response has no track")
		return nil, nil
	}

	isPlaying := true
	if current.IsPlaying != nil {
		isPlaying = *current.IsPlaying
	}

	state := newTrackState(current.Item, isPlaying, nil)
	state.ProgressMs = current.ProgressMs
	return state, nil
}

func (r *Resolver) lastPlayed(ctx context.Context) *TrackState {
	items, err := r.upstream.RecentlyPlayed(ctx, 1)
	if err != nil {
		logrus.WithError(err).Warn("failed to get recently played track")
		return nil
	}
	if len(items) == 0 {
		return nil
	}

	item := items[0]
	if item.Track.ID == "" && item.Track.Name == "" {
		logrus.Debug("recently played entry has no track")
		return nil
	}

	playedAt := item.PlayedAt
	return newTrackState(&item.Track, false, &playedAt)
}
