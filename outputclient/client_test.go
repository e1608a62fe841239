package outputclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrelay/logging"
	"keyrelay/models"
)

func TestFamilies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"4", []string{"tcp4"}},
		{"ipv4", []string{"tcp4"}},
		{"6", []string{"tcp6"}},
		{"V6", []string{"tcp6"}},
		{"auto", []string{"tcp6", "tcp4"}},
		{"", []string{"tcp6", "tcp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Families(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Families("5")
	assert.Error(t, err)
}

func TestConnectorURLs(t *testing.T) {
	t.Parallel()

	table, _ := newTable()
	c, err := NewConnector(Options{}, table, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/output", c.URL())
	assert.Equal(t, "http://localhost:8000/?group_id=a+b", c.JoinURL("a b"))

	c, err = NewConnector(Options{Host: "::1", Port: 443, Secure: true, IPVersion: "6"}, table, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "wss://[::1]:443/ws/output", c.URL())

	_, err = NewConnector(Options{IPVersion: "7"}, table, logging.Discard())
	assert.Error(t, err)
}

func TestHandleFrame(t *testing.T) {
	t.Parallel()

	table, em := newTable()
	tmp := table.Add(Device{Name: "pad", AllowedEvents: []string{"BTN_A"}})
	c, err := NewConnector(Options{}, table, logging.Discard())
	require.NoError(t, err)

	var sent []any
	send := func(v any) error {
		sent = append(sent, v)
		return nil
	}

	frame := models.Encode(models.DeviceRegistered{
		Type: models.KindDeviceRegistered, DeviceID: "output_1", TemporaryID: tmp, GroupID: "g", Slot: 1,
	})
	require.NoError(t, c.handleFrame(frame, send))
	_, ok := table.Lookup("output_1")
	require.True(t, ok)

	frame = models.Encode(models.KeyEvent{Type: models.KindKeyEvent, DeviceID: "output_1", UserID: "user_a", Code: models.Encode("BTN_A"), State: 1})
	require.NoError(t, c.handleFrame(frame, send))
	assert.Equal(t, []emitted{{"output_1", "BTN_A", 1}}, em.events)
	assert.Error(t, c.handleFrame([]byte(`{"type":"key_event","device_id":"output_1","code":57,"state":1}`), send))
	assert.Len(t, em.events, 1)

	frame = models.Encode(models.RenameNotice{Type: models.KindRenameOutput, DeviceID: "output_1", Name: "left"})
	require.NoError(t, c.handleFrame(frame, send))
	d, _ := table.Lookup("output_1")
	assert.Equal(t, "left", d.Name)

	require.NoError(t, c.handleFrame([]byte(`{"type":"ping","id":"p1"}`), send))
	assert.Equal(t, []any{models.Ping{Type: models.KindPong, ID: "p1"}}, sent)

	require.NoError(t, c.handleFrame([]byte(`{"type":"something_else"}`), send))
	assert.Error(t, c.handleFrame([]byte(`{"type":"device_registered","slot":"x"}`), send))
}

// fakeRelay accepts one output connection and plays a short exchange.
func fakeRelay(t *testing.T, done chan<- map[string]any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var reg map[string]any
		if err := conn.ReadJSON(&reg); err != nil {
			return
		}
		conn.WriteJSON(models.DeviceRegistered{
			Type:        models.KindDeviceRegistered,
			DeviceID:    "output_1",
			TemporaryID: reg["temporary_id"].(string),
			GroupID:     "g",
			Slot:        1,
		})
		conn.WriteJSON(models.Ping{Type: models.KindPing, ID: "p1"})

		var pong map[string]any
		if err := conn.ReadJSON(&pong); err != nil {
			return
		}
		done <- reg
		done <- pong
		conn.ReadMessage()
	}))
}

func TestRunRegistersAndAnswersPings(t *testing.T) {
	t.Parallel()

	done := make(chan map[string]any, 2)
	srv := fakeRelay(t, done)
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	table, _ := newTable()
	table.Add(Device{Name: "pad", GroupID: "g", AllowedEvents: []string{"BTN_A"}})
	c, err := NewConnector(Options{Host: host, Port: port, IPVersion: "4", Backoff: 10 * time.Millisecond}, table, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- c.Run(ctx) }()

	var reg, pong map[string]any
	select {
	case reg = <-done:
		pong = <-done
	case <-time.After(5 * time.Second):
		t.Fatal("relay exchange did not complete")
	}

	assert.Equal(t, "register_device", reg["type"])
	assert.Equal(t, "pad", reg["device_name"])
	assert.Equal(t, "g", reg["group_id"])
	raw, _ := json.Marshal(pong)
	assert.JSONEq(t, `{"type":"pong","id":"p1"}`, string(raw))

	require.Eventually(t, func() bool {
		d, ok := table.Lookup("output_1")
		return ok && d.Connected
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	d, _ := table.Lookup("output_1")
	assert.False(t, d.Connected)
}
