package nowplaying

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/sirupsen/logrus"

	"vibe/internal/imageproxy"
	"vibe/internal/palette"
)

// ImageFetcher fetches album art.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imageproxy.Image, error)
}

// Service runs the full pipeline: resolve the track, inline its album art and derive its palette.
type Service struct {
	resolver *Resolver
	images   ImageFetcher
}

// NewService creates a Service. A nil images skips the artwork step.
func NewService(resolver *Resolver, images ImageFetcher) *Service {
	return &Service{resolver: resolver, images: images}
}

// NowPlaying resolves the current state. Artwork failures degrade to nil album fields
// rather than failing the whole resolution.
func (s *Service) NowPlaying(ctx context.Context) (*TrackState, error) {
	state, err := s.resolver.Resolve(ctx)
	if err != nil || state == nil {
		return state, err
	}
	s.attachArtwork(ctx, state)
	return state, nil
}

func (s *Service) attachArtwork(ctx context.Context, state *TrackState) {
	if s.images == nil || state.AlbumImageURL == "" {
		return
	}

	img, err := s.images.Fetch(ctx, state.AlbumImageURL)
	if err != nil {
		logrus.WithError(err).WithField("url", state.AlbumImageURL).Warn("album image fetch failed")
		return
	}

	uri := img.DataURI()
	state.AlbumBase64 = &uri

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		logrus.WithError(err).WithField("contentType", img.ContentType).Debug("album image could not be decoded")
		return
	}

	p := palette.Extract(decoded)
	state.AlbumPalette = &p
}
