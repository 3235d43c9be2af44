package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	spotifyapi "github.com/zmb3/spotify"

	"vibe/internal/imageproxy"
	"vibe/internal/letterboxd"
	"vibe/internal/nowplaying"
	"vibe/internal/recommend"
	"vibe/internal/spotify"
)

type fakeNowPlaying struct {
	state *nowplaying.TrackState
	err   error
}

func (f fakeNowPlaying) NowPlaying(context.Context) (*nowplaying.TrackState, error) {
	return f.state, f.err
}

type fakeImages struct {
	img *imageproxy.Image
	err error
}

func (f fakeImages) Fetch(context.Context, string) (*imageproxy.Image, error) {
	return f.img, f.err
}

type fakeTokens struct {
	tok  *spotify.TokenResponse
	err  error
	code string
}

func (f *fakeTokens) Exchange(_ context.Context, code, _ string) (*spotify.TokenResponse, error) {
	f.code = code
	return f.tok, f.err
}

func (f *fakeTokens) Refresh(_ context.Context, refreshToken string) (*spotify.TokenResponse, error) {
	if refreshToken == "" {
		return nil, spotify.ErrNoRefreshToken
	}
	return f.tok, f.err
}

type fakeFilms struct {
	films []letterboxd.Film
	err   error
}

func (f fakeFilms) Recent(context.Context) ([]letterboxd.Film, error) {
	return f.films, f.err
}

type nopSink struct{}

func (nopSink) Name() string                                  { return "nop" }
func (nopSink) Send(context.Context, recommend.Message) error { return nil }

func newHandlers() *Handlers {
	return &Handlers{
		NowPlaying: fakeNowPlaying{},
		Images:     fakeImages{},
		Tokens:     &fakeTokens{},
		Recommend:  recommend.NewService(recommend.NewMemoryLimiter(5, time.Hour), nopSink{}),
		Films:      fakeFilms{},
		Live: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}
}

func serve(t *testing.T, h *Handlers, method, target, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("%s %s: expected permissive CORS header, got %q", method, target, got)
	}

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestNowPlayingResponses(t *testing.T) {
	var item spotify.Track
	item.ID = spotifyapi.ID("t1")
	item.Name = "Song"
	base64 := "data:image/png;base64,AAAA"

	tests := []struct {
		name   string
		source fakeNowPlaying
		status int
		code   string
	}{
		{"playing", fakeNowPlaying{state: &nowplaying.TrackState{Item: &item, IsPlaying: true, AlbumBase64: &base64}}, http.StatusOK, ""},
		{"nothing", fakeNowPlaying{}, http.StatusNoContent, ""},
		{"no refresh token", fakeNowPlaying{err: spotify.ErrNoRefreshToken}, http.StatusInternalServerError, "no_refresh_token_configured"},
		{"auth", fakeNowPlaying{err: &spotify.AuthError{Err: errors.New("invalid_grant")}}, http.StatusInternalServerError, "failed_refresh"},
		{"upstream", fakeNowPlaying{err: &spotify.UpstreamError{Status: http.StatusTooManyRequests}}, http.StatusTooManyRequests, "spotify_error"},
		{"other", fakeNowPlaying{err: errors.New("boom")}, http.StatusInternalServerError, "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandlers()
			h.NowPlaying = tt.source

			rec, body := serve(t, h, http.MethodGet, "/now-playing", "", nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.code != "" && body["error"] != tt.code {
				t.Errorf("expected error %q, got %v", tt.code, body["error"])
			}
			if tt.status == http.StatusOK && body["album_base64"] != base64 {
				t.Errorf("expected album_base64, got %v", body)
			}
			if tt.status == http.StatusNoContent && rec.Body.Len() != 0 {
				t.Errorf("expected empty body, got %q", rec.Body.String())
			}
		})
	}
}

func TestNowPlayingMethodNotAllowed(t *testing.T) {
	rec, _ := serve(t, newHandlers(), http.MethodPost, "/now-playing", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestProxyImage(t *testing.T) {
	h := newHandlers()
	h.Images = fakeImages{img: &imageproxy.Image{ContentType: "image/png", Data: []byte{1, 2, 3}}}

	rec, body := serve(t, h, http.MethodPost, "/proxy-image", `{"url":"https://i.scdn.co/image/x"}`, nil)
	if rec.Code != http.StatusOK || body["base64"] != "data:image/png;base64,AQID" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}

	for _, payload := range []string{`{}`, `{"url":""}`, `not json`} {
		rec, body = serve(t, h, http.MethodPost, "/proxy-image", payload, nil)
		if rec.Code != http.StatusBadRequest || body["error"] != "no_url" {
			t.Errorf("%s: unexpected response %d %v", payload, rec.Code, body)
		}
	}

	h.Images = fakeImages{err: &imageproxy.Error{Err: imageproxy.ErrHostNotAllowed}}
	rec, body = serve(t, h, http.MethodPost, "/proxy-image", `{"url":"http://10.0.0.1/"}`, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "url_not_allowed" {
		t.Errorf("unexpected rejection response %d %v", rec.Code, body)
	}

	h.Images = fakeImages{err: &imageproxy.Error{Status: http.StatusNotFound}}
	rec, body = serve(t, h, http.MethodPost, "/proxy-image", `{"url":"https://i.scdn.co/missing"}`, nil)
	if rec.Code != http.StatusInternalServerError || body["error"] != "server_error" {
		t.Errorf("unexpected failure response %d %v", rec.Code, body)
	}
}

func TestSpotifyToken(t *testing.T) {
	h := newHandlers()
	tokens := &fakeTokens{tok: &spotify.TokenResponse{AccessToken: "acc", TokenType: "Bearer", RefreshToken: "ref", ExpiresIn: 3600}}
	h.Tokens = tokens

	rec, body := serve(t, h, http.MethodPost, "/spotify-token", `{"code":"abc","redirect_uri":"http://localhost/cb"}`, nil)
	if rec.Code != http.StatusOK || body["refresh_token"] != "ref" || body["expires_in"] != float64(3600) {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}
	if tokens.code != "abc" {
		t.Errorf("expected code to be forwarded, got %q", tokens.code)
	}

	tokens.err = &spotify.AuthError{Err: errors.New("invalid_grant")}
	rec, body = serve(t, h, http.MethodPost, "/spotify-token", `{"code":"bad"}`, nil)
	if rec.Code != http.StatusInternalServerError || body["error"] != "server_error" {
		t.Errorf("unexpected failure response %d %v", rec.Code, body)
	}
}

func TestRefreshToken(t *testing.T) {
	h := newHandlers()
	h.Tokens = &fakeTokens{tok: &spotify.TokenResponse{AccessToken: "acc", TokenType: "Bearer"}}

	rec, body := serve(t, h, http.MethodPost, "/refresh-token", `{"refresh_token":"r"}`, nil)
	if rec.Code != http.StatusOK || body["access_token"] != "acc" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}

	rec, body = serve(t, h, http.MethodPost, "/refresh-token", `{}`, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "no_refresh_token" {
		t.Errorf("unexpected missing-token response %d %v", rec.Code, body)
	}
}

func TestRecommend(t *testing.T) {
	h := newHandlers()
	header := http.Header{"X-Forwarded-For": {"203.0.113.7"}}

	rec, body := serve(t, h, http.MethodPost, "/recommend", `{"recommendation":"a"}`, header)
	if rec.Code != http.StatusBadRequest || body["error"] != "Recommendation too short" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	for i := 0; i < 4; i++ {
		rec, body = serve(t, h, http.MethodPost, "/recommend", `{"name":"Ann","type":"movie","recommendation":"<Heat>"}`, header)
		if rec.Code != http.StatusOK || body["success"] != true {
			t.Fatalf("request %d: unexpected response %d %v", i+2, rec.Code, body)
		}
		if _, ok := body["note"]; ok {
			t.Errorf("unexpected note for a delivering sink: %v", body)
		}
	}

	rec, body = serve(t, h, http.MethodPost, "/recommend", `{"recommendation":"Heat"}`, header)
	if rec.Code != http.StatusTooManyRequests || body["error"] != "Too many requests. Please try again later." {
		t.Errorf("expected the 6th request to be limited, got %d %v", rec.Code, body)
	}

	rec, _ = serve(t, h, http.MethodPost, "/recommend", `{"recommendation":"Heat"}`, http.Header{"X-Forwarded-For": {"198.51.100.1"}})
	if rec.Code != http.StatusOK {
		t.Errorf("expected another client to be accepted, got %d", rec.Code)
	}
}

func TestRecommendMethods(t *testing.T) {
	h := newHandlers()

	rec, _ := serve(t, h, http.MethodOptions, "/recommend", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") != "POST, OPTIONS" {
		t.Errorf("unexpected preflight %d %v", rec.Code, rec.Header())
	}

	rec, body := serve(t, h, http.MethodGet, "/recommend", "", nil)
	if rec.Code != http.StatusMethodNotAllowed || body["error"] != "Method not allowed" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}

	rec, body = serve(t, h, http.MethodPost, "/recommend", `{"recommendation": 7}`, nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "Valid recommendation is required" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}
}

type failingSink struct{}

func (failingSink) Name() string                                  { return "failing" }
func (failingSink) Send(context.Context, recommend.Message) error { return errors.New("provider down") }

func TestRecommendDeliveryFailure(t *testing.T) {
	h := newHandlers()
	h.Recommend = recommend.NewService(recommend.NewMemoryLimiter(5, time.Hour), failingSink{})

	rec, body := serve(t, h, http.MethodPost, "/recommend", `{"recommendation":"Heat"}`, nil)
	if rec.Code != http.StatusInternalServerError || body["error"] != "Failed to process recommendation" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}
}

func TestRecommendConsoleNote(t *testing.T) {
	h := newHandlers()
	h.Recommend = recommend.NewService(recommend.NewMemoryLimiter(5, time.Hour), recommend.ConsoleSink{})

	rec, body := serve(t, h, http.MethodPost, "/recommend", `{"recommendation":"Heat"}`, nil)
	if rec.Code != http.StatusOK || body["note"] == nil {
		t.Errorf("expected a console note, got %d %v", rec.Code, body)
	}
}

func TestLetterboxd(t *testing.T) {
	h := newHandlers()
	h.Films = fakeFilms{films: []letterboxd.Film{{Title: "Heat", Year: "1995"}}}

	rec, body := serve(t, h, http.MethodGet, "/letterboxd", "", nil)
	movies, _ := body["movies"].([]any)
	if rec.Code != http.StatusOK || len(movies) != 1 {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if movies[0].(map[string]any)["title"] != "Heat" {
		t.Errorf("unexpected movie %v", movies[0])
	}

	h.Films = fakeFilms{err: letterboxd.ErrNoUsername}
	rec, body = serve(t, h, http.MethodGet, "/letterboxd", "", nil)
	if rec.Code != http.StatusInternalServerError || body["error"] != "server_error" || body["message"] == "" {
		t.Errorf("unexpected failure response %d %v", rec.Code, body)
	}
}

func TestHealthAndRoot(t *testing.T) {
	h := newHandlers()

	rec, _ := serve(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	rec, _ = serve(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", rec.Code)
	}

	rec, _ = serve(t, h, http.MethodGet, "/", "", http.Header{"Upgrade": {"websocket"}, "Connection": {"Upgrade"}})
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected the live handler, got %d", rec.Code)
	}

	rec, _ = serve(t, h, http.MethodGet, "/ws", "", nil)
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected the live handler on /ws, got %d", rec.Code)
	}

	rec, _ = serve(t, h, http.MethodGet, "/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
