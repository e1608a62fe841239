package outputclient

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"keyrelay/models"
)

var ErrUnknownDevice = errors.New("unknown device")

// Device is the local descriptor of one virtual device. ID starts out as a
// temporary placeholder and becomes the relay's id once registered.
type Device struct {
	ID             string
	Name           string
	GroupID        string
	Slot           int
	Profile        Profile
	AllowedEvents  []string
	KeybindPresets map[string][]models.Keybind
	Connected      bool
}

// Allows reports whether the device accepts event.
func (d Device) Allows(event string) bool {
	return slices.Contains(d.AllowedEvents, event)
}

// RegisterFrame is the register_device frame sent for a device.
type RegisterFrame struct {
	Type models.Kind `json:"type"`
	models.RegisterDevice
}

// DeviceTable holds the local devices keyed by their current id.
type DeviceTable struct {
	mu      sync.Mutex
	devices map[string]*Device
	emitter Emitter
	logger  *slog.Logger
}

func NewDeviceTable(emitter Emitter, logger *slog.Logger) *DeviceTable {
	return &DeviceTable{
		devices: make(map[string]*Device),
		emitter: emitter,
		logger:  logger,
	}
}

func newTemporaryID() string {
	return "temp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Add stores d under a fresh temporary id and returns that id.
func (t *DeviceTable) Add(d Device) string {
	d.ID = newTemporaryID()
	d.Connected = false
	if d.KeybindPresets == nil {
		d.KeybindPresets = make(map[string][]models.Keybind)
	}

	t.mu.Lock()
	t.devices[d.ID] = &d
	t.mu.Unlock()
	return d.ID
}

// Pending returns the register_device frames of every device that is not
// connected, ordered by current id.
func (t *DeviceTable) Pending() []RegisterFrame {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []RegisterFrame
	for _, id := range slices.Sorted(maps.Keys(t.devices)) {
		d := t.devices[id]
		if d.Connected {
			continue
		}
		out = append(out, RegisterFrame{
			Type: models.KindRegisterDevice,
			RegisterDevice: models.RegisterDevice{
				TemporaryID:    d.ID,
				GroupID:        d.GroupID,
				DeviceName:     d.Name,
				AllowedEvents:  d.AllowedEvents,
				KeybindPresets: models.Encode(d.KeybindPresets),
			},
		})
	}
	return out
}

// Remap moves the device registered as temporaryID to the relay's id and
// marks it connected. Later key events address the new id.
func (t *DeviceTable) Remap(r models.DeviceRegistered) (Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[r.TemporaryID]
	if !ok {
		return Device{}, fmt.Errorf("%w: temporary id %q", ErrUnknownDevice, r.TemporaryID)
	}
	delete(t.devices, r.TemporaryID)

	d.ID = r.DeviceID
	d.GroupID = r.GroupID
	d.Slot = r.Slot
	d.Connected = true
	t.devices[d.ID] = d
	return *d, nil
}

func (t *DeviceTable) Lookup(id string) (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

func (t *DeviceTable) Rename(id, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	old := d.Name
	d.Name = name
	t.logger.Info("Device renamed", slog.String("from", old), slog.String("to", name))
	return nil
}

// Emit hands an event to the emitter. Events the device does not allow are
// dropped without error.
func (t *DeviceTable) Emit(id, event string, value int) error {
	d, ok := t.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if !d.Allows(event) {
		t.logger.Debug("Event not allowed", slog.String("deviceID", id), slog.String("event", event))
		return nil
	}
	return t.emitter.Emit(d, event, value)
}

// MarkAllDisconnected flags every device for registration on the next connection.
func (t *DeviceTable) MarkAllDisconnected() {
	t.mu.Lock()
	for _, d := range t.devices {
		d.Connected = false
	}
	t.mu.Unlock()
}

// Devices returns copies of all descriptors ordered by id.
func (t *DeviceTable) Devices() []Device {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Device, 0, len(t.devices))
	for _, id := range slices.Sorted(maps.Keys(t.devices)) {
		out = append(out, *t.devices[id])
	}
	return out
}
