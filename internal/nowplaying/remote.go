package nowplaying

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// RemoteSource reads the state from a running server's /now-playing endpoint.
type RemoteSource struct {
	endpoint string
	client   *http.Client
}

// NewRemoteSource creates a RemoteSource for the server at baseURL.
func NewRemoteSource(baseURL string, client *http.Client) *RemoteSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteSource{
		endpoint: strings.TrimRight(baseURL, "/") + "/now-playing",
		client:   client,
	}
}

// NowPlaying fetches the state. A 204 yields a nil state and a nil error.
func (r *RemoteSource) NowPlaying(ctx context.Context) (*TrackState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close now-playing response body")
		}
	}()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var state TrackState
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			return nil, fmt.Errorf("decode now-playing: %w", err)
		}
		return &state, nil
	}

	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &body)
	return nil, fmt.Errorf("now-playing returned %d: %s", resp.StatusCode, body.Error)
}
