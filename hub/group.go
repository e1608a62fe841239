package hub

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"keyrelay/models"
)

// Group is one session: the users and output devices that can see each other.
// Membership maps only hold live entities.
type Group struct {
	ID string

	mu      sync.RWMutex
	users   map[string]*models.User
	devices map[string]*models.OutputDevice
	logger  *slog.Logger
}

func newGroup(id string, logger *slog.Logger) *Group {
	return &Group{
		ID:      id,
		users:   make(map[string]*models.User),
		devices: make(map[string]*models.OutputDevice),
		logger:  logger.With(slog.String("groupID", id)),
	}
}

func (g *Group) Join(u *models.User) {
	g.mu.Lock()
	g.users[u.ID] = u
	size := len(g.users)
	g.mu.Unlock()
	g.logger.Info("User joined group", slog.String("userID", u.ID), slog.Int("users", size))
}

// Leave removes the user and drops its targets, which can only name devices
// of this group. It reports whether the user was a member.
func (g *Group) Leave(userID string) bool {
	g.mu.Lock()
	u, ok := g.users[userID]
	delete(g.users, userID)
	size := len(g.users)
	g.mu.Unlock()

	if !ok {
		return false
	}
	u.ClearTargets()
	g.logger.Info("User left group", slog.String("userID", userID), slog.Int("users", size))
	return true
}

func (g *Group) HasUser(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.users[userID]
	return ok
}

// AllocateSlot returns the smallest positive slot no live device holds.
func (g *Group) AllocateSlot() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.freeSlotLocked()
}

func (g *Group) freeSlotLocked() int {
	used := make(map[int]bool, len(g.devices))
	for _, d := range g.devices {
		used[d.Slot] = true
	}
	slot := 1
	for used[slot] {
		slot++
	}
	return slot
}

// RegisterDevice allocates a slot and adds a new device in one step, so two
// concurrent registrations never share a slot.
func (g *Group) RegisterDevice(id, name string, owner *models.OutputClient, presets json.RawMessage, allowed []string) *models.OutputDevice {
	g.mu.Lock()
	slot := g.freeSlotLocked()
	d := models.NewOutputDevice(id, g.ID, name, slot, owner, presets, allowed)
	g.devices[d.ID] = d
	g.mu.Unlock()

	if owner != nil {
		owner.Attach(d)
	}
	g.logger.Info("Device registered", slog.String("deviceID", d.ID), slog.Int("slot", slot))
	return d
}

func (g *Group) Device(id string) (*models.OutputDevice, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.devices[id]
	return d, ok
}

// SelectDevice sets or clears a device in the user's target set. Unknown
// device ids are ignored; the return value reports whether the id was known.
func (g *Group) SelectDevice(u *models.User, deviceID string, on bool) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.devices[deviceID]; !ok {
		return false
	}
	u.SetTarget(deviceID, on)
	return true
}

// TargetedDevice returns the device only when it is live and u targets it.
func (g *Group) TargetedDevice(u *models.User, deviceID string) (*models.OutputDevice, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	d, ok := g.devices[deviceID]
	if !ok || !u.Targets(deviceID) {
		return nil, false
	}
	return d, true
}

// RenameDevice returns the device and whether its name changed. A name that is
// blank after trimming leaves the previous name in place.
func (g *Group) RenameDevice(deviceID, name string) (*models.OutputDevice, bool) {
	d, ok := g.Device(deviceID)
	if !ok {
		return nil, false
	}
	return d, d.Rename(name)
}

// RemoveDevice deletes the device and removes it from every user's targets.
func (g *Group) RemoveDevice(deviceID string) bool {
	g.mu.Lock()
	d, ok := g.devices[deviceID]
	if ok {
		delete(g.devices, deviceID)
		for _, u := range g.users {
			u.SetTarget(deviceID, false)
		}
	}
	g.mu.Unlock()

	if ok {
		g.logger.Info("Device removed", slog.String("deviceID", deviceID), slog.Int("slot", d.Slot))
	}
	return ok
}

// Users returns the members ordered by id.
func (g *Group) Users() []*models.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.usersLocked()
}

// Devices returns the live devices ordered by slot.
func (g *Group) Devices() []*models.OutputDevice {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.devicesLocked()
}

func (g *Group) devicesLocked() []*models.OutputDevice {
	out := make([]*models.OutputDevice, 0, len(g.devices))
	for _, d := range g.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *models.OutputDevice) int { return a.Slot - b.Slot })
	return out
}

func (g *Group) usersLocked() []*models.User {
	out := make([]*models.User, 0, len(g.users))
	for _, u := range g.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *models.User) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// State builds the full snapshot of the group.
func (g *Group) State() models.GroupState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	users := g.usersLocked()
	state := models.GroupState{
		Type:    models.KindGroupState,
		GroupID: g.ID,
		Users:   make([]models.UserView, 0, len(users)),
		Devices: make([]models.DeviceView, 0, len(g.devices)),
	}
	for _, u := range users {
		state.Users = append(state.Users, u.View())
	}
	for _, d := range g.devicesLocked() {
		connected := make([]string, 0)
		for _, u := range users {
			if u.Targets(d.ID) {
				connected = append(connected, u.ID)
			}
		}
		state.Devices = append(state.Devices, d.View(connected))
	}
	return state
}

// Activity builds the periodic activity and latency snapshot.
func (g *Group) Activity() models.ActivityAndPing {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := models.ActivityAndPing{
		Type:    models.KindActivityAndPing,
		Users:   make(map[string]models.UserActivity, len(g.users)),
		Devices: make(map[string]models.DeviceActivity, len(g.devices)),
	}
	for id, u := range g.users {
		snap.Users[id] = models.UserActivity{
			LastActivityTime: models.UnixSeconds(u.LastActivity()),
			LastPing:         u.Latency.Average(),
		}
	}
	for id, d := range g.devices {
		snap.Devices[id] = models.DeviceActivity{LastPing: d.Latency.Average()}
	}
	return snap
}

// Broadcast sends frame to receivers, or to every user and device connection
// when none are given. A failing receiver never stops delivery to the rest.
func (g *Group) Broadcast(frame []byte, receivers ...models.Peer) {
	if len(receivers) == 0 {
		g.mu.RLock()
		for _, u := range g.users {
			receivers = append(receivers, u.Peer)
		}
		for _, d := range g.devices {
			receivers = append(receivers, d.Peer())
		}
		g.mu.RUnlock()
	}

	seen := make(map[models.Peer]bool, len(receivers))
	for _, p := range receivers {
		if p == nil || seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Send(frame); err != nil {
			g.logger.Debug("Dropped frame for receiver", slog.Any("error", err))
		}
	}
}

func (g *Group) BroadcastToUsers(frame []byte) {
	g.mu.RLock()
	receivers := make([]models.Peer, 0, len(g.users))
	for _, u := range g.users {
		receivers = append(receivers, u.Peer)
	}
	g.mu.RUnlock()

	if len(receivers) == 0 {
		return
	}
	g.Broadcast(frame, receivers...)
}

// BroadcastState sends the current snapshot to every user of the group.
func (g *Group) BroadcastState() {
	g.BroadcastToUsers(models.Encode(g.State()))
}
