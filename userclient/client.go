// Package userclient is a headless user: it joins a group on the relay and
// renders membership, device availability and latency as they change.
package userclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"keyrelay/models"
)

type Options struct {
	// URL of the relay's user endpoint, e.g. ws://localhost:8000/ws/user.
	URL     string
	Name    string
	Color   string
	GroupID string

	HandshakeTimeout time.Duration
}

type Watcher struct {
	opts   Options
	out    io.Writer
	now    func() time.Time
	logger *slog.Logger

	state State
}

func NewWatcher(opts Options, out io.Writer, logger *slog.Logger) *Watcher {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 2 * time.Second
	}
	return &Watcher{
		opts:   opts,
		out:    out,
		now:    time.Now,
		logger: logger.With(slog.String("component", "watch")),
	}
}

// State returns the current view of the group.
func (w *Watcher) State() State {
	return w.state
}

// Run connects, joins the group and renders until the connection closes or
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	send := func(v any) error { return conn.WriteJSON(v) }
	if err := w.hello(send); err != nil {
		return err
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		changed, err := w.handleFrame(frame, send)
		if err != nil {
			w.logger.Debug("Frame not handled", slog.Any("error", err))
			continue
		}
		if changed {
			io.WriteString(w.out, Render(w.state, w.now())+"\n")
		}
	}
}

// hello sends the profile and joins the configured group.
func (w *Watcher) hello(send func(any) error) error {
	if w.opts.Name != "" || w.opts.Color != "" {
		err := send(struct {
			Type  models.Kind `json:"type"`
			Name  string      `json:"name"`
			Color string      `json:"color"`
		}{models.KindUpdateUserData, w.opts.Name, w.opts.Color})
		if err != nil {
			return err
		}
	}
	return send(struct {
		Type    models.Kind `json:"type"`
		GroupID string      `json:"group_id,omitempty"`
	}{models.KindJoinGroup, w.opts.GroupID})
}

// handleFrame applies one frame to the state and reports whether the view
// changed. Pings are answered through send.
func (w *Watcher) handleFrame(frame []byte, send func(any) error) (bool, error) {
	switch models.TypeOf(frame) {
	case models.KindConfig:
		var m models.Config
		if err := json.Unmarshal(frame, &m); err != nil {
			return false, err
		}
		w.state.ApplyConfig(m)
		return false, nil

	case models.KindGroupState:
		var m models.GroupState
		if err := json.Unmarshal(frame, &m); err != nil {
			return false, err
		}
		w.state.ApplyGroupState(m)
		return true, nil

	case models.KindActivityAndPing:
		var m models.ActivityAndPing
		if err := json.Unmarshal(frame, &m); err != nil {
			return false, err
		}
		w.state.ApplyActivity(m)
		return true, nil

	case models.KindPing:
		var m models.Ping
		if err := json.Unmarshal(frame, &m); err != nil {
			return false, err
		}
		return false, send(models.Ping{Type: models.KindPong, ID: m.ID})
	}
	return false, nil
}
