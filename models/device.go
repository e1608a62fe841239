package models

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"
)

// OutputDevice is one virtual controllable target hosted by an OutputClient.
type OutputDevice struct {
	ID             string
	GroupID        string
	Slot           int
	Owner          *OutputClient
	KeybindPresets json.RawMessage
	AllowedEvents  []string
	Latency        LatencyWindow

	mu   sync.RWMutex
	name string
}

// NewOutputDevice builds a device. Allowed events are deduplicated and sorted;
// an empty name falls back to the id. Presets are kept verbatim, with missing
// or null presets stored as an empty object.
func NewOutputDevice(id, groupID, name string, slot int, owner *OutputClient, presets json.RawMessage, allowed []string) *OutputDevice {
	if name = strings.TrimSpace(name); name == "" {
		name = id
	}
	if p := bytes.TrimSpace(presets); len(p) == 0 || bytes.Equal(p, []byte("null")) {
		presets = json.RawMessage("{}")
	} else {
		presets = bytes.Clone(p)
	}
	events := append([]string{}, allowed...)
	slices.Sort(events)
	return &OutputDevice{
		ID:             id,
		GroupID:        groupID,
		Slot:           slot,
		Owner:          owner,
		KeybindPresets: presets,
		AllowedEvents:  slices.Compact(events),
		name:           name,
	}
}

func (d *OutputDevice) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// Rename trims name and applies it. It returns false, keeping the previous
// name, when nothing is left after trimming.
func (d *OutputDevice) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
	return true
}

// Peer is the connection of the owning output client.
func (d *OutputDevice) Peer() Peer {
	if d.Owner == nil {
		return nil
	}
	return d.Owner.Peer
}

func (d *OutputDevice) View(connectedUsers []string) DeviceView {
	if connectedUsers == nil {
		connectedUsers = []string{}
	}
	return DeviceView{
		ID:               d.ID,
		Name:             d.Name(),
		Slot:             d.Slot,
		ConnectedUserIDs: connectedUsers,
		KeybindPresets:   d.KeybindPresets,
		AllowedEvents:    d.AllowedEvents,
		LastPing:         d.Latency.Average(),
	}
}

// OutputClient is one output connection. It may host several devices.
type OutputClient struct {
	ID   string
	Peer Peer

	mu      sync.Mutex
	devices map[string]*OutputDevice
}

func NewOutputClient(id string, peer Peer) *OutputClient {
	return &OutputClient{
		ID:      id,
		Peer:    peer,
		devices: make(map[string]*OutputDevice),
	}
}

func (c *OutputClient) Attach(d *OutputDevice) {
	c.mu.Lock()
	c.devices[d.ID] = d
	c.mu.Unlock()
}

// Devices returns the hosted devices ordered by id.
func (c *OutputClient) Devices() []*OutputDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedDevices(c.devices)
}

// DetachAll empties the client and returns what it hosted.
func (c *OutputClient) DetachAll() []*OutputDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := sortedDevices(c.devices)
	clear(c.devices)
	return out
}

func sortedDevices(m map[string]*OutputDevice) []*OutputDevice {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]*OutputDevice, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
