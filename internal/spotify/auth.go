package spotify

import (
	"context"
	"errors"
	"net/http"
	"time"

	spotifyapi "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
)

// Scopes needed to read the account's playback and history.
var Scopes = []string{
	spotifyapi.ScopeUserReadCurrentlyPlaying,
	spotifyapi.ScopeUserReadPlaybackState,
	spotifyapi.ScopeUserReadRecentlyPlayed,
}

// TokenResponse is the client-facing shape of an OAuth token exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Authorizer performs the one-time authorization flow and manual refresh exchanges.
type Authorizer struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewAuthorizer creates an Authorizer. A nil httpClient uses http.DefaultClient.
func NewAuthorizer(creds Credentials, httpClient *http.Client) *Authorizer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	conf := creds.oauthConfig()
	conf.Scopes = Scopes
	return &Authorizer{conf: conf, httpClient: httpClient}
}

// AuthCodeURL returns the consent page URL that redirects back to redirectURI with a code.
func (a *Authorizer) AuthCodeURL(state, redirectURI string) string {
	return a.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
		oauth2.SetAuthURLParam("show_dialog", "true"),
	)
}

// Exchange trades an authorization code for tokens.
func (a *Authorizer) Exchange(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	if code == "" {
		return nil, &AuthError{Err: errors.New("missing authorization code")}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.conf.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return newTokenResponse(tok), nil
}

// Refresh trades a refresh token for a fresh access token.
func (a *Authorizer) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return newTokenResponse(tok), nil
}

func newTokenResponse(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
