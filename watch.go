package main

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vibe/internal/nowplaying"
	"vibe/internal/poller"
)

var (
	watchURL      string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "poll a running server and log every change",
	Long: `watch polls the /now-playing endpoint of a running server on a fixed interval and logs
the track and its background colour whenever either changes.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchURL, "url", "u", "http://localhost:3000", "base url of the server")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "poll interval (defaults to POLL_INTERVAL)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval := watchInterval
	if interval <= 0 {
		interval = cfg.PollInterval
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	source := nowplaying.NewRemoteSource(watchURL, &http.Client{Timeout: cfg.UpstreamTimeout})
	p := poller.New(source, poller.PublisherFunc(logState), interval, cfg.UpstreamTimeout)
	p.Run(ctx)

	if last, ok := p.LastState(); ok {
		logrus.WithField("track", last.Title()).Info("last state before exit")
	}
	return nil
}

func logState(state *nowplaying.TrackState) {
	if state == nil {
		logrus.Info("nothing playing")
		return
	}

	fields := logrus.Fields{
		"track":     state.Title(),
		"artists":   state.Artists(),
		"isPlaying": state.IsPlaying,
	}
	if state.PlayedAt != nil {
		fields["playedAt"] = state.PlayedAt.Format(time.RFC3339)
	}
	if state.AlbumPalette != nil {
		fields["background"] = state.AlbumPalette.Background.String()
	}
	logrus.WithFields(fields).Info("now playing")
}
