// Package imageproxy fetches remote images server-side and re-serves them as data URIs,
// so the browser can read their pixels without cross-origin restrictions.
package imageproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidURL is returned for anything but an absolute http or https url.
	ErrInvalidURL = errors.New("imageproxy: url must be absolute http or https")
	// ErrHostNotAllowed is returned when the url, or any redirect it follows, leaves the allow-list.
	ErrHostNotAllowed = errors.New("imageproxy: host not allowed")
	// ErrTooLarge is returned when the body exceeds Config.MaxBytes.
	ErrTooLarge = errors.New("imageproxy: image exceeds size limit")
	// ErrNotImage is returned when the response is not image/*.
	ErrNotImage = errors.New("imageproxy: response is not an image")
)

// Error is returned for any failed fetch.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("imageproxy: fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("imageproxy: fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Rejected reports whether err is a policy rejection rather than a fetch failure.
func Rejected(err error) bool {
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrHostNotAllowed)
}

// Config bounds what the proxy will fetch.
type Config struct {
	// AllowedHosts restricts fetches to these hostnames. Empty allows any host.
	AllowedHosts []string
	MaxBytes     int64
	Timeout      time.Duration
	CacheSize    int
	CacheTTL     time.Duration
}

// Image is a fetched image.
type Image struct {
	ContentType string
	Data        []byte
}

// DataURI renders the image as data:<content-type>;base64,<payload>.
func (i *Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Proxy fetches images. It is safe for concurrent use.
type Proxy struct {
	cfg     Config
	allowed map[string]struct{}
	client  *http.Client
	cache   *expirable.LRU[string, *Image]
}

// maxRedirects matches the net/http default.
const maxRedirects = 10

// New creates a Proxy. A nil httpClient uses a client without its own timeout;
// cfg.Timeout bounds each fetch either way. The client is copied so every redirect
// hop is held to the same policy as the requested url.
func New(cfg Config, httpClient *http.Client) *Proxy {
	client := &http.Client{}
	if httpClient != nil {
		c := *httpClient
		client = &c
	}

	p := &Proxy{
		cfg:    cfg,
		client: client,
	}
	client.CheckRedirect = p.checkRedirect

	if len(cfg.AllowedHosts) > 0 {
		p.allowed = make(map[string]struct{}, len(cfg.AllowedHosts))
		for _, h := range cfg.AllowedHosts {
			p.allowed[strings.ToLower(h)] = struct{}{}
		}
	}

	if cfg.CacheSize > 0 {
		p.cache = expirable.NewLRU[string, *Image](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	return p
}

// Fetch downloads rawURL and returns it as an Image.
func (p *Proxy) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if err := p.check(rawURL); err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	if p.cache != nil {
		if img, ok := p.cache.Get(rawURL); ok {
			return img, nil
		}
	}

	img, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(rawURL, img)
	}
	return img, nil
}

func (p *Proxy) check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if p.allowed == nil {
		return nil
	}
	if _, ok := p.allowed[strings.ToLower(u.Hostname())]; !ok {
		return ErrHostNotAllowed
	}
	return nil
}

func (p *Proxy) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return p.check(req.URL.String())
}

func (p *Proxy) fetch(ctx context.Context, rawURL string) (*Image, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close image response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode}
	}

	if p.cfg.MaxBytes > 0 && resp.ContentLength > p.cfg.MaxBytes {
		return nil, &Error{URL: rawURL, Err: ErrTooLarge}
	}

	var body io.Reader = resp.Body
	if p.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, p.cfg.MaxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if p.cfg.MaxBytes > 0 && int64(len(data)) > p.cfg.MaxBytes {
		return nil, &Error{URL: rawURL, Err: ErrTooLarge}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, &Error{URL: rawURL, Err: ErrNotImage}
	}

	return &Image{ContentType: contentType, Data: data}, nil
}
