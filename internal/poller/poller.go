// Package poller periodically resolves the now-playing state and publishes changes.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vibe/internal/nowplaying"
)

// Source resolves the current state. A nil state with a nil error means nothing is playing.
type Source interface {
	NowPlaying(ctx context.Context) (*nowplaying.TrackState, error)
}

// Publisher receives every state change. A nil state is the empty state.
type Publisher interface {
	Publish(state *nowplaying.TrackState)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(state *nowplaying.TrackState)

// Publish calls f(state).
func (f PublisherFunc) Publish(state *nowplaying.TrackState) { f(state) }

// ErrorPublisher is implemented by publishers that can show a failed cycle.
// PublishError is called once when cycles start failing.
type ErrorPublisher interface {
	PublishError(err error)
}

// Poller is responsible for resolving the state on a fixed interval.
// Cycles never overlap, and a cycle that is still running when the poller is torn down
// is discarded.
type Poller struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	timeout   time.Duration

	inFlight  atomic.Bool
	mu        sync.RWMutex
	lastState *nowplaying.TrackState
	hasState  bool
	failing   bool
}

// New creates a new Poller. timeout bounds a single cycle; zero means the interval.
func New(source Source, publisher Publisher, interval, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = interval
	}
	return &Poller{
		source:    source,
		publisher: publisher,
		interval:  interval,
		timeout:   timeout,
	}
}

// Run polls until ctx is cancelled. It must be run in a separate goroutine.
func (p *Poller) Run(ctx context.Context) {
	logrus.WithField("interval", p.interval).Info("poller started")
	defer logrus.Info("poller stopped")

	p.UpdateState(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.UpdateState(ctx)
		}
	}
}

// UpdateState runs one cycle: resolve, compare with the last state and publish if it changed.
// It returns false without doing anything when another cycle is still in flight.
func (p *Poller) UpdateState(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		logrus.Debug("previous poll still in flight, skipping")
		return false
	}
	defer p.inFlight.Store(false)

	cycleCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	current, err := p.source.NowPlaying(cycleCtx)
	if ctx.Err() != nil {
		logrus.Debug("poller torn down, discarding cycle result")
		return true
	}
	if err != nil {
		logrus.WithError(err).Error("failed to resolve now playing state")
		p.mu.Lock()
		first := !p.failing
		p.failing = true
		p.mu.Unlock()
		if ep, ok := p.publisher.(ErrorPublisher); ok && first {
			ep.PublishError(err)
		}
		return true
	}

	p.mu.Lock()
	hasChanged := !p.hasState || p.failing || p.lastState.Changed(current)
	p.failing = false
	if hasChanged {
		p.lastState = current
		p.hasState = true
	}
	p.mu.Unlock()

	if hasChanged {
		logrus.WithFields(logrus.Fields{
			"isPlaying": current != nil && current.IsPlaying,
			"track":     current.Title(),
			"artists":   current.Artists(),
		}).Info("state changed, publishing update")
		p.publisher.Publish(current)
	}
	return true
}

// LastState returns the last published state and whether one has been published yet.
func (p *Poller) LastState() (*nowplaying.TrackState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastState, p.hasState
}
