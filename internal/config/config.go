package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	spotifyapi "github.com/zmb3/spotify"
)

const (
	defaultAPIURL        = "https://api.spotify.com/v1"
	defaultLetterboxdURL = "https://letterboxd.com"
)

// defaultImageHosts are the CDNs album art and film posters are served from.
var defaultImageHosts = []string{
	"i.scdn.co",
	"mosaic.scdn.co",
	"image-cdn-ak.spotifycdn.com",
	"image-cdn-fa.spotifycdn.com",
	"a.ltrbxd.com",
}

// Config holds the application configuration.
type Config struct {
	ServerPort      string        `toml:"server_port"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	LogLevel        logrus.Level  `toml:"-"`
	LogFormat       string        `toml:"log_format"`
	PollInterval    time.Duration `toml:"-"`
	UpstreamTimeout time.Duration `toml:"-"`

	Spotify    SpotifyConfig    `toml:"spotify"`
	Images     ImageConfig      `toml:"images"`
	Recommend  RecommendConfig  `toml:"recommend"`
	Letterboxd LetterboxdConfig `toml:"letterboxd"`
}

// SpotifyConfig identifies the single account whose playback is shown.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// ImageConfig bounds what the image proxy will fetch.
type ImageConfig struct {
	MaxBytes     int64         `toml:"max_bytes"`
	Timeout      time.Duration `toml:"-"`
	AllowedHosts []string      `toml:"allowed_hosts"`
	CacheSize    int           `toml:"cache_size"`
	CacheTTL     time.Duration `toml:"-"`
}

// RecommendConfig holds the rate limit and the notification provider credentials.
type RecommendConfig struct {
	Limit  int           `toml:"limit"`
	Window time.Duration `toml:"-"`

	ResendAPIKey     string `toml:"resend_api_key"`
	SendGridAPIKey   string `toml:"sendgrid_api_key"`
	TwilioAccountSID string `toml:"twilio_account_sid"`
	TwilioAuthToken  string `toml:"twilio_auth_token"`
	TwilioFromNumber string `toml:"twilio_phone_number"`
	ToPhoneNumber    string `toml:"to_phone_number"`
	ToEmail          string `toml:"to_email"`
	FromEmail        string `toml:"from_email"`
}

// LetterboxdConfig points at the public film diary feed.
type LetterboxdConfig struct {
	Username string `toml:"username"`
	BaseURL  string `toml:"base_url"`
}

// fileValues are the top-level TOML keys that need parsing; durations are written as strings ("15s").
type fileValues struct {
	LogLevel        string `toml:"log_level"`
	PollInterval    string `toml:"poll_interval"`
	UpstreamTimeout string `toml:"upstream_timeout"`
	ImageTimeout    string `toml:"image_timeout"`
	ImageCacheTTL   string `toml:"image_cache_ttl"`
	RecommendWindow string `toml:"recommend_window"`
}

// Load loads the configuration from an optional TOML file and environment variables.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using environment variables")
	}

	cfg := defaults()
	raw := map[string]string{}

	if path != "" {
		if err := loadFile(path, cfg, raw); err != nil {
			return nil, err
		}
	}

	setString(&cfg.ServerPort, "SERVER_PORT")
	setList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&cfg.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&cfg.Spotify.RefreshToken, "SPOTIFY_REFRESH_TOKEN")
	setString(&cfg.Spotify.AuthURL, "SPOTIFY_AUTH_URL")
	setString(&cfg.Spotify.TokenURL, "SPOTIFY_TOKEN_URL")
	setString(&cfg.Spotify.APIURL, "SPOTIFY_API_URL")

	setList(&cfg.Images.AllowedHosts, "IMAGE_ALLOWED_HOSTS")

	setString(&cfg.Recommend.ResendAPIKey, "RESEND_API_KEY")
	setString(&cfg.Recommend.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&cfg.Recommend.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.Recommend.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.Recommend.TwilioFromNumber, "TWILIO_PHONE_NUMBER")
	setString(&cfg.Recommend.ToPhoneNumber, "YOUR_PHONE_NUMBER")
	setString(&cfg.Recommend.ToEmail, "YOUR_EMAIL")
	setString(&cfg.Recommend.FromEmail, "FROM_EMAIL")

	setString(&cfg.Letterboxd.Username, "LETTERBOXD_USERNAME")
	setString(&cfg.Letterboxd.BaseURL, "LETTERBOXD_URL")

	for key, env := range map[string]string{
		"log_level":        "LOG_LEVEL",
		"poll_interval":    "POLL_INTERVAL",
		"upstream_timeout": "UPSTREAM_TIMEOUT",
		"image_timeout":    "IMAGE_TIMEOUT",
		"image_cache_ttl":  "IMAGE_CACHE_TTL",
		"recommend_window": "RECOMMEND_WINDOW",
		"image_max_bytes":  "IMAGE_MAX_BYTES",
		"image_cache_size": "IMAGE_CACHE_SIZE",
		"recommend_limit":  "RECOMMEND_LIMIT",
	} {
		if v := os.Getenv(env); v != "" {
			raw[key] = v
		}
	}

	if err := applyRaw(cfg, raw); err != nil {
		return nil, err
	}

	if cfg.Spotify.RefreshToken == "" {
		logrus.Warn("SPOTIFY_REFRESH_TOKEN is not set, /now-playing will fail until it is configured")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServerPort:      "3000",
		LogLevel:        logrus.InfoLevel,
		LogFormat:       "text",
		PollInterval:    15 * time.Second,
		UpstreamTimeout: 10 * time.Second,
		Spotify: SpotifyConfig{
			AuthURL:  spotifyapi.AuthURL,
			TokenURL: spotifyapi.TokenURL,
			APIURL:   defaultAPIURL,
		},
		Images: ImageConfig{
			MaxBytes:     5 << 20,
			Timeout:      10 * time.Second,
			AllowedHosts: append([]string(nil), defaultImageHosts...),
			CacheSize:    64,
			CacheTTL:     10 * time.Minute,
		},
		Recommend: RecommendConfig{
			Limit:     5,
			Window:    time.Hour,
			ToEmail:   "your-email@example.com",
			FromEmail: "noreply@example.com",
		},
		Letterboxd: LetterboxdConfig{
			BaseURL: defaultLetterboxdURL,
		},
	}
}

func loadFile(path string, cfg *Config, raw map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var fc fileValues
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	for key, v := range map[string]string{
		"log_level":        fc.LogLevel,
		"poll_interval":    fc.PollInterval,
		"upstream_timeout": fc.UpstreamTimeout,
		"image_timeout":    fc.ImageTimeout,
		"image_cache_ttl":  fc.ImageCacheTTL,
		"recommend_window": fc.RecommendWindow,
	} {
		if v != "" {
			raw[key] = v
		}
	}
	return nil
}

// applyRaw parses the values that need more than a string copy.
func applyRaw(cfg *Config, raw map[string]string) error {
	if v, ok := raw["log_level"]; ok {
		cfg.LogLevel = parseLevel(v)
	}

	durations := map[string]*time.Duration{
		"poll_interval":    &cfg.PollInterval,
		"upstream_timeout": &cfg.UpstreamTimeout,
		"image_timeout":    &cfg.Images.Timeout,
		"image_cache_ttl":  &cfg.Images.CacheTTL,
		"recommend_window": &cfg.Recommend.Window,
	}
	for key, dst := range durations {
		v, ok := raw[key]
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", key, v)
		}
		*dst = d
	}

	if v, ok := raw["image_max_bytes"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid image_max_bytes %q: %w", v, err)
		}
		cfg.Images.MaxBytes = n
	}

	ints := map[string]*int{
		"image_cache_size": &cfg.Images.CacheSize,
		"recommend_limit":  &cfg.Recommend.Limit,
	}
	for key, dst := range ints {
		v, ok := raw[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}

	return nil
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
