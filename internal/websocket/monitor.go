package websocket

import (
	"context"
	"log/slog"
	"time"
)

// ConnectionLister exposes the full set of live connections, bound to an
// identity or not, so the monitor covers sockets that never joined.
type ConnectionLister interface {
	Connections() []*Client
}

// Monitor probes every connection once per interval and terminates the
// ones that did not answer the previous probe. Termination drives the
// same disconnect cleanup as a peer close, so a silently vanished socket
// leaves the registry within at most two intervals.
type Monitor struct {
	conns    ConnectionLister
	interval time.Duration
	logger   *slog.Logger
}

func NewMonitor(conns ConnectionLister, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		conns:    conns,
		interval: interval,
		logger:   logger.With("component", "liveness"),
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep terminates connections still unconfirmed from the previous tick,
// then marks the rest unconfirmed and probes them.
func (m *Monitor) sweep() {
	for _, c := range m.conns.Connections() {
		if !c.Alive() {
			m.logger.Info("terminating unresponsive connection", "user_id", c.UserID())
			c.Terminate()
			continue
		}
		c.MarkUnconfirmed()
		c.Probe()
	}
}
