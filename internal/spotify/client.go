package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// AccessTokenSource yields bearer tokens for Web API calls.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a thread-safe client for the playback endpoints of the Spotify Web API.
type Client struct {
	baseURL    string
	tokens     AccessTokenSource
	httpClient *http.Client
}

// NewClient creates a new Spotify API client. baseURL is the Web API root, e.g. https://api.spotify.com/v1.
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, tokens AccessTokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// CurrentlyPlaying fetches the user's currently playing track.
// It returns ErrNoContent when the upstream reports no active playback.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*CurrentlyPlaying, error) {
	var currentlyPlaying CurrentlyPlaying
	if err := c.get(ctx, "/me/player/currently-playing", nil, &currentlyPlaying); err != nil {
		return nil, err
	}
	return &currentlyPlaying, nil
}

// RecentlyPlayed fetches up to limit of the most recently played tracks, newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]RecentlyPlayedItem, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}

	var page recentlyPlayedPage
	if err := c.get(ctx, "/me/player/recently-played", query, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close spotify api response body")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return ErrNoContent
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.upstreamError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) upstreamError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}

	upErr := &UpstreamError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			upErr.Message = eb.Error.Message
		}
	}
	return upErr
}
