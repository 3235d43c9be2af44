package spotify

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRefreshToken is returned before any network call when no refresh token is configured.
	ErrNoRefreshToken = errors.New("spotify: no refresh token configured")
	// ErrNoContent is the upstream's empty-playback signal (204 from currently-playing).
	ErrNoContent = errors.New("spotify: no active playback")
)

// AuthError reports that the upstream token endpoint did not yield an access token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("spotify: token refresh failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-success response from the Web API, other than the empty-playback signal.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify: upstream returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("spotify: upstream returned %d: %s", e.Status, e.Message)
}
