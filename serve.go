package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vibe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP server, the websocket hub and the poller",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logrus.WithFields(logrus.Fields{
		"port":         cfg.ServerPort,
		"pollInterval": cfg.PollInterval,
	}).Info("starting server")

	if err := server.New(cfg).Run(ctx); err != nil {
		return err
	}

	logrus.Info("server shut down gracefully")
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
