package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"vibe/internal/imageproxy"
	"vibe/internal/letterboxd"
	"vibe/internal/nowplaying"
	"vibe/internal/recommend"
	"vibe/internal/spotify"
)

const maxBodyBytes = 64 << 10

// NowPlayingSource runs the full now-playing pipeline.
type NowPlayingSource interface {
	NowPlaying(ctx context.Context) (*nowplaying.TrackState, error)
}

// ImageFetcher fetches arbitrary images.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imageproxy.Image, error)
}

// TokenExchanger performs the one-time authorization and manual refresh exchanges.
type TokenExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*spotify.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*spotify.TokenResponse, error)
}

// Recommender accepts visitor recommendations.
type Recommender interface {
	Submit(ctx context.Context, key string, sub recommend.Submission, userAgent string) (recommend.Result, error)
}

// FilmFeed lists recently watched films.
type FilmFeed interface {
	Recent(ctx context.Context) ([]letterboxd.Film, error)
}

// Handlers are the HTTP endpoints. Every field must be set.
type Handlers struct {
	NowPlaying NowPlayingSource
	Images     ImageFetcher
	Tokens     TokenExchanger
	Recommend  Recommender
	Films      FilmFeed
	Live       http.Handler
}

// Routes returns the router with the permissive CORS header applied to every response.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /now-playing", h.nowPlaying)
	mux.HandleFunc("POST /proxy-image", h.proxyImage)
	mux.HandleFunc("POST /spotify-token", h.spotifyToken)
	mux.HandleFunc("POST /refresh-token", h.refreshToken)
	mux.HandleFunc("/recommend", h.recommend)
	mux.HandleFunc("GET /letterboxd", h.letterboxd)
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /ws", h.Live)
	mux.HandleFunc("GET /{$}", h.root)

	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) nowPlaying(w http.ResponseWriter, r *http.Request) {
	state, err := h.NowPlaying.NowPlaying(r.Context())

	var (
		authErr     *spotify.AuthError
		upstreamErr *spotify.UpstreamError
	)
	switch {
	case err == nil && state == nil:
		w.WriteHeader(http.StatusNoContent)
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, spotify.ErrNoRefreshToken):
		logrus.Error("now-playing requested but no refresh token is configured")
		writeError(w, http.StatusInternalServerError, "no_refresh_token_configured")
	case errors.As(err, &authErr):
		logrus.WithError(err).Error("failed to refresh spotify access token")
		writeError(w, http.StatusInternalServerError, "failed_refresh")
	case errors.As(err, &upstreamErr):
		logrus.WithError(err).WithField("status", upstreamErr.Status).Warn("spotify returned an error")
		writeError(w, upstreamErr.Status, "spotify_error")
	default:
		logrus.WithError(err).Error("failed to resolve now playing")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (h *Handlers) proxyImage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(w, r, &body); err != nil || strings.TrimSpace(body.URL) == "" {
		writeError(w, http.StatusBadRequest, "no_url")
		return
	}

	img, err := h.Images.Fetch(r.Context(), body.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"base64": img.DataURI()})
	case imageproxy.Rejected(err):
		logrus.WithError(err).Warn("image proxy request rejected")
		writeError(w, http.StatusBadRequest, "url_not_allowed")
	default:
		logrus.WithError(err).Error("image proxy fetch failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (h *Handlers) spotifyToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		logrus.WithError(err).Warn("invalid token exchange request")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	tok, err := h.Tokens.Exchange(r.Context(), body.Code, body.RedirectURI)
	if err != nil {
		logrus.WithError(err).Error("authorization code exchange failed")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *Handlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "no_refresh_token")
		return
	}

	tok, err := h.Tokens.Refresh(r.Context(), body.RefreshToken)
	switch {
	case errors.Is(err, spotify.ErrNoRefreshToken):
		writeError(w, http.StatusBadRequest, "no_refresh_token")
	case err != nil:
		logrus.WithError(err).Error("manual token refresh failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	default:
		writeJSON(w, http.StatusOK, tok)
	}
}

func (h *Handlers) recommend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var sub recommend.Submission
	if err := decodeBody(w, r, &sub); err != nil {
		logrus.WithError(err).Debug("undecodable recommendation body")
		sub = recommend.Submission{}
	}

	result, err := h.Recommend.Submit(r.Context(), recommend.ClientKey(r), sub, r.UserAgent())

	var verr *recommend.ValidationError
	switch {
	case errors.Is(err, recommend.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case err != nil:
		logrus.WithError(err).Error("error processing recommendation")
		writeError(w, http.StatusInternalServerError, "Failed to process recommendation")
	default:
		resp := map[string]any{"success": true}
		if result.Note != "" {
			resp["note"] = result.Note
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handlers) letterboxd(w http.ResponseWriter, r *http.Request) {
	films, err := h.Films.Recent(r.Context())
	if err != nil {
		logrus.WithError(err).Error("failed to read letterboxd feed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "server_error",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movies": films})
}

// root serves websocket upgrades on / and tells plain HTTP clients to upgrade.
func (h *Handlers) root(w http.ResponseWriter, r *http.Request) {
	isWebSocket := strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")

	if isWebSocket {
		h.Live.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.WriteHeader(http.StatusUpgradeRequired)
	if _, err := w.Write([]byte("426 Upgrade Required")); err != nil {
		logrus.WithError(err).Warn("failed to write upgrade required response")
	}
}

// healthHandler responds to container health checks.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		logrus.WithError(err).Warn("failed to write health check response")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
