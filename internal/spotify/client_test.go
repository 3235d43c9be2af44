package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticTokens struct {
	token       string
	err         error
	invalidated int
}

func (s *staticTokens) AccessToken(context.Context) (string, error) { return s.token, s.err }
func (s *staticTokens) Invalidate()                                 { s.invalidated++ }

const currentlyPlayingJSON = `{
	"is_playing": true,
	"progress_ms": 42000,
	"timestamp": 1700000000000,
	"item": {
		"id": "track-1",
		"name": "Song One",
		"artists": [{"name": "Artist A"}, {"name": "Artist B"}],
		"album": {"name": "Album", "images": [{"url": "https://i.scdn.co/image/large", "height": 640, "width": 640}, {"url": "https://i.scdn.co/image/small", "height": 64, "width": 64}]}
	}
}`

func TestCurrentlyPlaying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me/player/currently-playing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(currentlyPlayingJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", &staticTokens{token: "access"}, srv.Client())
	cp, err := c.CurrentlyPlaying(context.Background())
	if err != nil {
		t.Fatalf("CurrentlyPlaying: %v", err)
	}

	if cp.IsPlaying == nil || !*cp.IsPlaying {
		t.Errorf("expected is_playing true, got %v", cp.IsPlaying)
	}
	if cp.ProgressMs != 42000 {
		t.Errorf("expected progress 42000, got %d", cp.ProgressMs)
	}
	if cp.Item == nil || cp.Item.ID != "track-1" || cp.Item.Name != "Song One" {
		t.Fatalf("unexpected item %+v", cp.Item)
	}
	if len(cp.Item.Artists) != 2 || cp.Item.Artists[1].Name != "Artist B" {
		t.Errorf("unexpected artists %+v", cp.Item.Artists)
	}
	if got := AlbumImageURL(cp.Item); got != "https://i.scdn.co/image/large" {
		t.Errorf("expected first album image, got %q", got)
	}
}

func TestCurrentlyPlayingNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{token: "access"}, srv.Client())
	_, err := c.CurrentlyPlaying(context.Background())
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestCurrentlyPlayingUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"status":429,"message":"API rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{token: "access"}, srv.Client())
	_, err := c.CurrentlyPlaying(context.Background())

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", upErr.Status)
	}
	if upErr.Message != "API rate limit exceeded" {
		t.Errorf("unexpected message %q", upErr.Message)
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "stale"}
	c := NewClient(srv.URL, tokens, srv.Client())
	if _, err := c.CurrentlyPlaying(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if tokens.invalidated != 1 {
		t.Errorf("expected token cache to be invalidated once, got %d", tokens.invalidated)
	}
}

func TestTokenErrorSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{err: ErrNoRefreshToken}, srv.Client())
	_, err := c.CurrentlyPlaying(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if called {
		t.Error("expected no upstream request")
	}
}

func TestRecentlyPlayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/player/recently-played" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("expected limit=1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"played_at":"2024-05-01T12:30:00.000Z","track":{"id":"track-2","name":"Song Two","artists":[{"name":"Artist C"}],"album":{"name":"Other","images":[{"url":"https://i.scdn.co/image/other"}]}}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{token: "access"}, srv.Client())
	items, err := c.RecentlyPlayed(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentlyPlayed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}

	want := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if !items[0].PlayedAt.Equal(want) {
		t.Errorf("expected played_at %v, got %v", want, items[0].PlayedAt)
	}
	if items[0].Track.ID != "track-2" {
		t.Errorf("unexpected track %+v", items[0].Track)
	}
	if got := AlbumImageURL(&items[0].Track); got != "https://i.scdn.co/image/other" {
		t.Errorf("unexpected album image %q", got)
	}
}
