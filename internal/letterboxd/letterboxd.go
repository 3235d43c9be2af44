// Package letterboxd reads a member's public diary feed.
package letterboxd

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	// MaxFilms is the number of diary entries returned by Recent.
	MaxFilms = 12

	thumbCrop  = "-0-150-0-225-crop"
	posterCrop = "-0-460-0-690-crop"
)

// ErrNoUsername is returned when no member is configured.
var ErrNoUsername = errors.New("letterboxd: no username configured")

// Film is one diary entry.
type Film struct {
	Title       string   `json:"title"`
	Year        string   `json:"year"`
	Poster      *string  `json:"poster"`
	Rating      *float64 `json:"rating"`
	WatchedDate *string  `json:"watchedDate"`
	Link        *string  `json:"link"`
}

// Client fetches the feed of a single member.
type Client struct {
	baseURL    string
	username   string
	httpClient *http.Client
}

// New creates a Client. A nil httpClient uses http.DefaultClient.
func New(baseURL, username string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		httpClient: httpClient,
	}
}

// Recent returns the newest diary entries, at most MaxFilms.
func (c *Client) Recent(ctx context.Context) ([]Film, error) {
	if c.username == "" {
		return nil, ErrNoUsername
	}

	feedURL := fmt.Sprintf("%s/%s/rss/", c.baseURL, url.PathEscape(c.username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close letterboxd response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	return Parse(resp.Body, MaxFilms)
}

type rss struct {
	Items []item `xml:"channel>item"`
}

type item struct {
	Link        string `xml:"link"`
	Description string `xml:"description"`
	FilmTitle   string `xml:"filmTitle"`
	FilmYear    string `xml:"filmYear"`
	Rating      string `xml:"memberRating"`
	WatchedDate string `xml:"watchedDate"`
}

// Parse decodes an RSS feed into at most limit films.
func Parse(r io.Reader, limit int) ([]Film, error) {
	var feed rss
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	items := feed.Items
	if len(items) > limit {
		items = items[:limit]
	}

	films := make([]Film, 0, len(items))
	for _, it := range items {
		films = append(films, it.film())
	}
	return films, nil
}

func (it item) film() Film {
	f := Film{
		Title: strings.TrimSpace(it.FilmTitle),
		Year:  strings.TrimSpace(it.FilmYear),
	}
	if f.Title == "" {
		f.Title = "Unknown"
	}
	if poster := posterURL(it.Description); poster != "" {
		f.Poster = &poster
	}
	if rating, err := strconv.ParseFloat(strings.TrimSpace(it.Rating), 64); err == nil {
		f.Rating = &rating
	}
	if watched := strings.TrimSpace(it.WatchedDate); watched != "" {
		f.WatchedDate = &watched
	}
	if link := strings.TrimSpace(it.Link); link != "" {
		f.Link = &link
	}
	return f
}

// posterURL returns the first image in the entry's HTML description, upsized to a full poster.
func posterURL(description string) string {
	if description == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	src, ok := doc.Find("img").First().Attr("src")
	if !ok {
		return ""
	}
	return strings.Replace(src, thumbCrop, posterCrop, 1)
}
