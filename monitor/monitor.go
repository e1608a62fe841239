// Package monitor measures round-trip latency of every connected user and
// output client with correlated ping/pong frames, and periodically pushes an
// activity and latency snapshot to the users of each group.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"keyrelay/hub"
	"keyrelay/models"
)

type Options struct {
	// Interval between probes.
	Interval time.Duration
	// ReportEvery is the number of ticks between activity snapshots.
	ReportEvery int
	// StaleAfter is the number of ticks after which an unanswered ping is dropped.
	StaleAfter int
}

func DefaultOptions() Options {
	return Options{
		Interval:    200 * time.Millisecond,
		ReportEvery: 10,
		StaleAfter:  3,
	}
}

type pendingPing struct {
	id   string
	sent time.Time
}

type Monitor struct {
	hub  *hub.Hub
	opts Options

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	pending map[string]pendingPing
	ticks   int

	logger *slog.Logger
}

func New(h *hub.Hub, opts Options, logger *slog.Logger) *Monitor {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.ReportEvery <= 0 {
		opts.ReportEvery = def.ReportEvery
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	return &Monitor{
		hub:     h,
		opts:    opts,
		now:     time.Now,
		newID:   uuid.NewString,
		pending: make(map[string]pendingPing),
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// SetClock replaces the time source. Tests use it for deterministic latency.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Run ticks until ctx is cancelled. In-flight pings are abandoned.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.logger.Info("Liveness monitor started", slog.Duration("interval", m.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped")
			return
		case <-ticker.C:
			var pc panics.Catcher
			pc.Try(m.Tick)
			if r := pc.Recovered(); r != nil {
				m.logger.Error("Liveness tick panicked", slog.Any("panic", r.Value), slog.String("stack", string(r.Stack)))
			}
		}
	}
}

// Tick probes every connection, purges stale pings and, every ReportEvery
// ticks, broadcasts the activity snapshot.
func (m *Monitor) Tick() {
	now := m.now()
	for _, u := range m.hub.Users() {
		m.probe(u.ID, u.Peer, now)
	}
	for _, c := range m.hub.OutputClients() {
		m.probe(c.ID, c.Peer, now)
	}

	m.mu.Lock()
	cutoff := now.Add(-time.Duration(m.opts.StaleAfter) * m.opts.Interval)
	for sender, p := range m.pending {
		if p.sent.Before(cutoff) {
			delete(m.pending, sender)
		}
	}
	m.ticks++
	report := m.ticks%m.opts.ReportEvery == 0
	m.mu.Unlock()

	if report {
		m.Report()
	}
}

func (m *Monitor) probe(senderID string, peer models.Peer, now time.Time) {
	id := m.newID()
	m.mu.Lock()
	m.pending[senderID] = pendingPing{id: id, sent: now}
	m.mu.Unlock()

	if err := peer.Send(models.Encode(models.Ping{Type: models.KindPing, ID: id})); err != nil {
		m.mu.Lock()
		delete(m.pending, senderID)
		m.mu.Unlock()
		m.logger.Debug("Ping not sent", slog.String("senderID", senderID), slog.Any("error", err))
	}
}

// HandlePong matches a pong against the pending ping of its sender. A match
// records the round trip on the sender (or on every device an output client
// hosts) and reports true. A mismatch changes nothing.
func (m *Monitor) HandlePong(senderID, id string) bool {
	if id == "" {
		return false
	}

	m.mu.Lock()
	p, ok := m.pending[senderID]
	if !ok || p.id != id {
		m.mu.Unlock()
		return false
	}
	delete(m.pending, senderID)
	m.mu.Unlock()

	ms := float64(m.now().Sub(p.sent)) / float64(time.Millisecond)
	if u, ok := m.hub.User(senderID); ok {
		u.Latency.Add(ms)
		return true
	}
	if c, ok := m.hub.OutputClient(senderID); ok {
		for _, d := range c.Devices() {
			d.Latency.Add(ms)
		}
		return true
	}
	return false
}

// Pending reports whether a ping to sender is awaiting its pong.
func (m *Monitor) Pending(senderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[senderID]
	return ok
}

// Report pushes the activity snapshot of every group to its users.
func (m *Monitor) Report() {
	for _, g := range m.hub.Groups() {
		if len(g.Users()) == 0 {
			continue
		}
		g.BroadcastToUsers(models.Encode(g.Activity()))
	}
}
