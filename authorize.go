package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vibe/internal/spotify"
)

var redirectURI string

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "print the Spotify consent url",
	Long: `authorize prints the one-time consent url for the configured client. after approving,
exchange the returned code through POST /spotify-token and store the refresh token as
SPOTIFY_REFRESH_TOKEN.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Spotify.ClientID == "" {
			return errors.New("SPOTIFY_CLIENT_ID is not set")
		}

		state, err := randomState()
		if err != nil {
			return err
		}

		authorizer := spotify.NewAuthorizer(spotify.Credentials{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			AuthURL:      cfg.Spotify.AuthURL,
			TokenURL:     cfg.Spotify.TokenURL,
		}, nil)

		fmt.Fprintln(cmd.OutOrStdout(), authorizer.AuthCodeURL(state, redirectURI))
		return nil
	},
}

func init() {
	authorizeCmd.Flags().StringVarP(&redirectURI, "redirect-uri", "r", "", "redirect uri registered for the client")
	_ = authorizeCmd.MarkFlagRequired("redirect-uri")
	rootCmd.AddCommand(authorizeCmd)
}

func randomState() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
