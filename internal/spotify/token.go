package spotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh, which outlives the caller that started it.
const refreshTimeout = 10 * time.Second

// Credentials identify the application and the single account it reads.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AuthURL      string
	TokenURL     string
}

func (c Credentials) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TokenProvider hands out short-lived access tokens derived from the configured refresh token.
// Tokens are cached until they expire and concurrent refreshes collapse into one exchange.
// It is safe for concurrent use.
type TokenProvider struct {
	conf         *oauth2.Config
	refreshToken string
	httpClient   *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenProvider creates a TokenProvider. A nil httpClient uses http.DefaultClient.
func NewTokenProvider(creds Credentials, httpClient *http.Client) *TokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenProvider{
		conf:         creds.oauthConfig(),
		refreshToken: creds.RefreshToken,
		httpClient:   httpClient,
	}
}

// AccessToken returns a valid access token, refreshing it if needed.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if p.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	if tok := p.cached(); tok.Valid() {
		return tok.AccessToken, nil
	}

	ch := p.group.DoChan("access_token", func() (any, error) {
		if tok := p.cached(); tok.Valid() {
			return tok, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		tctx := context.WithValue(rctx, oauth2.HTTPClient, p.httpClient)
		tok, err := p.conf.TokenSource(tctx, &oauth2.Token{RefreshToken: p.refreshToken}).Token()
		if err != nil {
			return nil, &AuthError{Err: err}
		}

		p.mu.Lock()
		p.token = tok
		p.mu.Unlock()

		logrus.WithField("expiry", tok.Expiry).Debug("refreshed spotify access token")
		return tok, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", &AuthError{Err: ctx.Err()}
	case res = <-ch:
	}
	if res.Err != nil {
		return "", res.Err
	}
	if res.Shared {
		logrus.Debug("reused in-flight spotify token refresh")
	}

	return res.Val.(*oauth2.Token).AccessToken, nil
}

// Invalidate drops the cached token so the next call refreshes it.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}

func (p *TokenProvider) cached() *oauth2.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
