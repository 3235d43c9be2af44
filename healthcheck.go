package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	defaultPort    = "3000"
	requestTimeout = 5 * time.Second
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "check the local server's /health endpoint",
	Long:  `healthcheck exits non-zero unless the server on SERVER_PORT answers /health with 200. it is meant for container health checks.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		if err := checkHealth(ctx, localHealthURL()); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}

func localHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = defaultPort
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// checkHealth succeeds only on a 200 from url.
func checkHealth(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Debug("failed to close health response body")
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
