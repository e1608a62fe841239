package models

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// User is one human operator connected on the user channel.
type User struct {
	ID      string
	Peer    Peer
	Latency LatencyWindow

	mu           sync.RWMutex
	name         string
	color        string
	lastActivity time.Time
	targets      map[string]struct{}
}

func NewUser(id string, peer Peer, now time.Time) *User {
	return &User{
		ID:           id,
		Peer:         peer,
		name:         id,
		color:        FallbackColor,
		lastActivity: now,
		targets:      make(map[string]struct{}),
	}
}

func (u *User) Name() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.name
}

func (u *User) Color() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.color
}

// UpdateProfile sets the display name and color. An empty name keeps the
// current one, an empty color keeps the current one, and an unusable color is
// replaced by FallbackColor.
func (u *User) UpdateProfile(name, color string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if name = strings.TrimSpace(name); name != "" {
		u.name = name
	}
	if strings.TrimSpace(color) != "" {
		u.color = SanitizeColor(color)
	}
}

func (u *User) Touch(t time.Time) {
	u.mu.Lock()
	u.lastActivity = t
	u.mu.Unlock()
}

func (u *User) LastActivity() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastActivity
}

// SetTarget adds or removes a device from the set this user drives.
func (u *User) SetTarget(deviceID string, on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if on {
		u.targets[deviceID] = struct{}{}
	} else {
		delete(u.targets, deviceID)
	}
}

func (u *User) ClearTargets() {
	u.mu.Lock()
	clear(u.targets)
	u.mu.Unlock()
}

func (u *User) Targets(deviceID string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.targets[deviceID]
	return ok
}

// TargetIDs returns the targeted device ids in ascending order.
func (u *User) TargetIDs() []string {
	u.mu.RLock()
	ids := make([]string, 0, len(u.targets))
	for id := range u.targets {
		ids = append(ids, id)
	}
	u.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (u *User) View() UserView {
	u.mu.RLock()
	view := UserView{
		ID:               u.ID,
		Name:             u.name,
		Color:            u.color,
		LastActivityTime: UnixSeconds(u.lastActivity),
	}
	u.mu.RUnlock()
	view.LastPing = u.Latency.Average()
	view.ConnectedDeviceIDs = u.TargetIDs()
	return view
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
