package nowplaying

import (
	"errors"

	"vibe/internal/spotify"
)

// ErrorCode maps a resolution failure to the code shown to clients.
func ErrorCode(err error) string {
	var (
		authErr     *spotify.AuthError
		upstreamErr *spotify.UpstreamError
	)
	switch {
	case errors.Is(err, spotify.ErrNoRefreshToken):
		return "no_refresh_token_configured"
	case errors.As(err, &authErr):
		return "failed_refresh"
	case errors.As(err, &upstreamErr):
		return "spotify_error"
	default:
		return "server_error"
	}
}
