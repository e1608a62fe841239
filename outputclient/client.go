// Package outputclient is the output side counterpart of the relay: it
// registers local virtual devices, remaps them to the ids the relay issues,
// turns relayed key events into emitter calls, and reconnects when the
// connection drops.
package outputclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"keyrelay/models"
)

type Options struct {
	Host      string
	Port      int
	IPVersion string
	Secure    bool

	HandshakeTimeout time.Duration
	Backoff          time.Duration
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 8000
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 2 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 3 * time.Second
	}
	return o
}

// Families returns the networks to try, in order, for an ip_version setting.
func Families(ipVersion string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(ipVersion)) {
	case "4", "v4", "ipv4":
		return []string{"tcp4"}, nil
	case "6", "v6", "ipv6":
		return []string{"tcp6"}, nil
	case "", "auto":
		return []string{"tcp6", "tcp4"}, nil
	}
	return nil, fmt.Errorf("unknown ip version %q (use 4, 6, auto)", ipVersion)
}

// Connector keeps one connection to the relay's output endpoint alive.
type Connector struct {
	opts     Options
	families []string
	table    *DeviceTable
	logger   *slog.Logger
}

func NewConnector(opts Options, table *DeviceTable, logger *slog.Logger) (*Connector, error) {
	opts = opts.withDefaults()
	families, err := Families(opts.IPVersion)
	if err != nil {
		return nil, err
	}
	return &Connector{
		opts:     opts,
		families: families,
		table:    table,
		logger:   logger.With(slog.String("component", "output_client")),
	}, nil
}

func (c *Connector) hostPort() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// URL is the websocket address of the output endpoint.
func (c *Connector) URL() string {
	scheme := "ws"
	if c.opts.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.hostPort() + "/ws/output"
}

// JoinURL is the page users open to join groupID.
func (c *Connector) JoinURL(groupID string) string {
	scheme := "http"
	if c.opts.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.hostPort() + "/?group_id=" + url.QueryEscape(groupID)
}

// Run connects, serves the connection until it drops, and retries until ctx
// is cancelled. Each round tries every address family in order before
// sleeping for the backoff.
func (c *Connector) Run(ctx context.Context) error {
	c.logger.Info("Connecting", slog.String("url", c.URL()))
	for ctx.Err() == nil {
		for _, network := range c.families {
			conn, err := c.dial(ctx, network)
			if err != nil {
				c.logger.Warn("Connection attempt failed", slog.String("network", network), slog.Any("error", err))
				continue
			}
			c.logger.Info("Connected", slog.String("url", c.URL()), slog.String("network", network))
			if err := c.serve(ctx, conn); err != nil && ctx.Err() == nil {
				c.logger.Warn("Connection to relay lost", slog.Any("error", err))
			}
			break
		}

		if ctx.Err() != nil {
			break
		}
		c.logger.Info("Retrying", slog.Duration("backoff", c.opts.Backoff))
		select {
		case <-ctx.Done():
		case <-time.After(c.opts.Backoff):
		}
	}
	c.logger.Info("Shut down")
	return nil
}

func (c *Connector) dial(ctx context.Context, network string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HandshakeTimeout,
		NetDialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	conn, _, err := dialer.DialContext(ctx, c.URL(), nil)
	return conn, err
}

// serve registers pending devices and handles frames until the connection
// fails or ctx is cancelled. All writes happen on this goroutine.
func (c *Connector) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer func() {
		close(stop)
		conn.Close()
		c.table.MarkAllDisconnected()
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	send := func(v any) error { return conn.WriteJSON(v) }

	for _, frame := range c.table.Pending() {
		if err := send(frame); err != nil {
			return err
		}
		c.logger.Debug("Sent registration", slog.String("device", frame.DeviceName), slog.String("temporaryID", frame.TemporaryID))
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handleFrame(frame, send); err != nil {
			c.logger.Warn("Frame not handled", slog.Any("error", err))
		}
	}
}

// handleFrame acts on one frame from the relay. send writes a reply.
func (c *Connector) handleFrame(frame []byte, send func(any) error) error {
	switch models.TypeOf(frame) {
	case models.KindDeviceRegistered:
		var m models.DeviceRegistered
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		d, err := c.table.Remap(m)
		if err != nil {
			return err
		}
		c.logger.Info("Device registered",
			slog.String("device", d.Name),
			slog.String("deviceID", d.ID),
			slog.String("groupID", d.GroupID),
			slog.Int("slot", d.Slot),
		)
		c.logger.Info("Open " + c.JoinURL(d.GroupID) + " to join the group")

	case models.KindKeyEvent:
		var m models.KeyEvent
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		var event string
		if err := json.Unmarshal(m.Code, &event); err != nil {
			return fmt.Errorf("key_event for %s: code is not an event name: %w", m.DeviceID, err)
		}
		return c.table.Emit(m.DeviceID, event, m.State)

	case models.KindRenameOutput:
		var m models.RenameNotice
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		return c.table.Rename(m.DeviceID, m.Name)

	case models.KindPing:
		var m models.Ping
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		return send(models.Ping{Type: models.KindPong, ID: m.ID})
	}
	return nil
}
