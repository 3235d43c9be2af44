package nowplaying

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"vibe/internal/imageproxy"
	"vibe/internal/palette"
	"vibe/internal/spotify"
)

type fakeImages struct {
	img  *imageproxy.Image
	err  error
	urls []string
}

func (f *fakeImages) Fetch(_ context.Context, rawURL string) (*imageproxy.Image, error) {
	f.urls = append(f.urls, rawURL)
	return f.img, f.err
}

func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, palette.GridSize, palette.GridSize))
	for y := 0; y < palette.GridSize; y++ {
		for x := 0; x < palette.GridSize; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func playing() *fakeUpstream {
	item := track("t1", "Song One")
	return &fakeUpstream{current: &spotify.CurrentlyPlaying{IsPlaying: boolPtr(true), Item: &item}}
}

func TestNowPlayingAttachesArtwork(t *testing.T) {
	images := &fakeImages{img: &imageproxy.Image{
		ContentType: "image/png",
		Data:        solidPNG(t, color.RGBA{R: 30, G: 60, B: 90, A: 255}),
	}}
	svc := NewService(NewResolver(playing()), images)

	state, err := svc.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}

	if len(images.urls) != 1 || images.urls[0] != "https://i.scdn.co/image/t1" {
		t.Errorf("unexpected fetches %v", images.urls)
	}
	if state.AlbumBase64 == nil || !strings.HasPrefix(*state.AlbumBase64, "data:image/png;base64,") {
		t.Fatalf("expected data uri, got %v", state.AlbumBase64)
	}
	if state.AlbumPalette == nil {
		t.Fatal("expected palette")
	}
	if want := (palette.Color{R: 30, G: 60, B: 90}); state.AlbumPalette.Background != want {
		t.Errorf("expected background %v, got %v", want, state.AlbumPalette.Background)
	}
}

func TestNowPlayingImageFailureDegrades(t *testing.T) {
	images := &fakeImages{err: &imageproxy.Error{URL: "x", Err: errors.New("boom")}}
	svc := NewService(NewResolver(playing()), images)

	state, err := svc.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("expected image failure to be swallowed, got %v", err)
	}
	if state.AlbumBase64 != nil || state.AlbumPalette != nil {
		t.Errorf("expected nil album fields, got %v %v", state.AlbumBase64, state.AlbumPalette)
	}
	if state.AlbumImageURL == "" {
		t.Error("expected raw album url to remain for plain display")
	}
}

func TestNowPlayingUndecodableImage(t *testing.T) {
	images := &fakeImages{img: &imageproxy.Image{ContentType: "image/webp", Data: []byte("RIFF....WEBP")}}
	svc := NewService(NewResolver(playing()), images)

	state, err := svc.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if state.AlbumBase64 == nil {
		t.Error("expected data uri even when the palette cannot be derived")
	}
	if state.AlbumPalette != nil {
		t.Error("expected no palette for undecodable image")
	}
}

func TestNowPlayingNothingSkipsArtwork(t *testing.T) {
	images := &fakeImages{}
	svc := NewService(NewResolver(&fakeUpstream{currentErr: spotify.ErrNoContent}), images)

	state, err := svc.NowPlaying(context.Background())
	if err != nil || state != nil {
		t.Fatalf("expected nothing to show, got %+v, %v", state, err)
	}
	if len(images.urls) != 0 {
		t.Error("expected no image fetch")
	}
}
