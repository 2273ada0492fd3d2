// internal/writer/mirror.go
package writer

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/status"
)

// Source produces the status snapshot to deliver.
type Source func() status.Snapshot

// Mirror periodically delivers the link status block.
type Mirror struct {
	w        StatusWriter
	src      Source
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
}

// NewMirror creates a mirror with immutable config.
func NewMirror(w StatusWriter, src Source, interval time.Duration, clk clock.Clock, log *zap.Logger) (*Mirror, error) {
	if w == nil {
		return nil, errors.New("mirror: status writer required")
	}
	if src == nil {
		return nil, errors.New("mirror: source required")
	}
	if interval <= 0 {
		return nil, errors.New("mirror: interval must be > 0")
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{w: w, src: src, interval: interval, clock: clk, log: log}, nil
}

// WriteOnce delivers exactly one snapshot.
func (m *Mirror) WriteOnce() error {
	return m.w.WriteStatus(m.src())
}

// Run writes once immediately, then on every tick until ctx is done.
// Failures are logged on the transition only; the writer re-asserts the
// full block on its own.
func (m *Mirror) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	failing := false
	write := func() {
		err := m.WriteOnce()
		switch {
		case err != nil && !failing:
			m.log.Warn("status mirror write failed", zap.Error(err))
		case err != nil:
			m.log.Debug("status mirror still failing", zap.Error(err))
		case failing:
			m.log.Info("status mirror recovered")
		}
		failing = err != nil
	}

	write()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			write()
		}
	}
}
