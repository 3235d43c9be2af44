// Package server exposes the now-playing pipeline and its companion endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibe/internal/config"
	"vibe/internal/imageproxy"
	"vibe/internal/letterboxd"
	"vibe/internal/nowplaying"
	"vibe/internal/poller"
	"vibe/internal/recommend"
	"vibe/internal/spotify"
	"vibe/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// Server is the main application orchestrator.
type Server struct {
	addr       string
	handler    http.Handler
	httpServer *http.Server
	hub        *websocket.Hub
	poller     *poller.Poller
}

// New wires every component from cfg.
func New(cfg *config.Config) *Server {
	upstreamClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	creds := spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		AuthURL:      cfg.Spotify.AuthURL,
		TokenURL:     cfg.Spotify.TokenURL,
	}
	tokens := spotify.NewTokenProvider(creds, upstreamClient)
	spotifyClient := spotify.NewClient(cfg.Spotify.APIURL, tokens, upstreamClient)

	images := imageproxy.New(imageproxy.Config{
		AllowedHosts: cfg.Images.AllowedHosts,
		MaxBytes:     cfg.Images.MaxBytes,
		Timeout:      cfg.Images.Timeout,
		CacheSize:    cfg.Images.CacheSize,
		CacheTTL:     cfg.Images.CacheTTL,
	}, nil)

	service := nowplaying.NewService(nowplaying.NewResolver(spotifyClient), images)

	hub := websocket.NewHub()

	var p *poller.Poller
	if cfg.Spotify.RefreshToken != "" {
		p = poller.New(service, hub, cfg.PollInterval, cfg.UpstreamTimeout)
	} else {
		logrus.Warn("no spotify refresh token configured, live updates are disabled")
	}

	recommender := recommend.NewService(
		recommend.NewMemoryLimiter(cfg.Recommend.Limit, cfg.Recommend.Window),
		recommend.SelectSink(cfg.Recommend, upstreamClient),
	)

	handlers := &Handlers{
		NowPlaying: service,
		Images:     images,
		Tokens:     spotify.NewAuthorizer(creds, upstreamClient),
		Recommend:  recommender,
		Films:      letterboxd.New(cfg.Letterboxd.BaseURL, cfg.Letterboxd.Username, upstreamClient),
		Live:       websocket.Handler(hub, cfg.AllowedOrigins),
	}

	return &Server{
		addr:    net.JoinHostPort("", cfg.ServerPort),
		handler: handlers.Routes(),
		hub:     hub,
		poller:  p,
	}
}

// Handler returns the HTTP handler without starting anything.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the server and its components and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.Run(ctx)
	}()

	if s.poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.poller.Run(ctx)
		}()
	}

	go func() {
		<-ctx.Done()
		logrus.Info("shutdown signal received, stopping http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("http server shutdown error")
		}
	}()

	logrus.WithField("addr", s.addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()

	return nil
}
