package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrelay/models"
)

func TestRegisterDeviceAssignsLowestFreeSlot(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")

	assert.Equal(t, 1, g.AllocateSlot())
	d1 := g.RegisterDevice("d1", "one", out, nil, nil)
	d2 := g.RegisterDevice("d2", "two", out, nil, nil)
	assert.Equal(t, 1, d1.Slot)
	assert.Equal(t, 2, d2.Slot)

	require.True(t, g.RemoveDevice("d1"))
	d3 := g.RegisterDevice("d3", "three", out, nil, nil)
	assert.Equal(t, 1, d3.Slot, "a freed slot is reused before a new maximum")
	assert.Equal(t, 2, d2.Slot, "live devices keep their slot")

	d4 := g.RegisterDevice("d4", "four", out, nil, nil)
	assert.Equal(t, 3, d4.Slot)
}

func TestConcurrentRegistrationsGetUniqueSlots(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RegisterDevice(NewDeviceID(), "", out, nil, nil)
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, d := range g.Devices() {
		assert.False(t, seen[d.Slot], "slot %d assigned twice", d.Slot)
		seen[d.Slot] = true
	}
	for slot := 1; slot <= n; slot++ {
		assert.True(t, seen[slot], "slot %d missing", slot)
	}
}

func TestRemoveDeviceClearsTargets(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	d := g.RegisterDevice("d1", "pad", out, nil, nil)
	other := g.RegisterDevice("d2", "pad", out, nil, nil)

	ana, _ := newTestUser("user_a")
	bob, _ := newTestUser("user_b")
	g.Join(ana)
	g.Join(bob)
	require.True(t, g.SelectDevice(ana, d.ID, true))
	require.True(t, g.SelectDevice(bob, d.ID, true))
	require.True(t, g.SelectDevice(bob, other.ID, true))

	g.RemoveDevice(d.ID)

	assert.Empty(t, ana.TargetIDs())
	assert.Equal(t, []string{"d2"}, bob.TargetIDs())

	state := g.State()
	require.Len(t, state.Devices, 1)
	assert.Equal(t, "d2", state.Devices[0].ID)
	for _, u := range state.Users {
		assert.NotContains(t, u.ConnectedDeviceIDs, "d1")
	}
}

func TestSelectDeviceIgnoresUnknownIDs(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	u, _ := newTestUser("user_a")
	g.Join(u)

	assert.False(t, g.SelectDevice(u, "nope", true))
	assert.Empty(t, u.TargetIDs())
}

func TestSelectDeviceToggles(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	d := g.RegisterDevice("d1", "pad", out, nil, nil)
	u, _ := newTestUser("user_a")
	g.Join(u)

	g.SelectDevice(u, d.ID, true)
	assert.True(t, u.Targets(d.ID))
	g.SelectDevice(u, d.ID, false)
	assert.False(t, u.Targets(d.ID))
}

func TestTargetedDeviceRequiresSelection(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	d := g.RegisterDevice("d1", "pad", out, nil, nil)
	u, _ := newTestUser("user_a")
	g.Join(u)

	_, ok := g.TargetedDevice(u, d.ID)
	assert.False(t, ok)

	g.SelectDevice(u, d.ID, true)
	got, ok := g.TargetedDevice(u, d.ID)
	require.True(t, ok)
	assert.Same(t, d, got)
}

func TestRenameDevice(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	g.RegisterDevice("d1", "pad", out, nil, nil)

	d, renamed := g.RenameDevice("d1", "  left pad  ")
	require.NotNil(t, d)
	assert.True(t, renamed)
	assert.Equal(t, "left pad", d.Name())

	d, renamed = g.RenameDevice("d1", "   ")
	require.NotNil(t, d)
	assert.False(t, renamed)
	assert.Equal(t, "left pad", d.Name())

	d, renamed = g.RenameDevice("nope", "x")
	assert.Nil(t, d)
	assert.False(t, renamed)
}

func TestLeaveDropsTargets(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	d := g.RegisterDevice("d1", "pad", out, nil, nil)
	u, _ := newTestUser("user_a")
	g.Join(u)
	g.SelectDevice(u, d.ID, true)

	assert.True(t, g.Leave(u.ID))
	assert.False(t, g.HasUser(u.ID))
	assert.Empty(t, u.TargetIDs())
	assert.False(t, g.Leave(u.ID))
}

func TestStateSnapshot(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	presets := json.RawMessage(`{"default":[["Space","BTN_A"]]}`)
	d1 := g.RegisterDevice("d1", "", out, presets, []string{"BTN_B", "BTN_A", "BTN_A"})
	d2 := g.RegisterDevice("d2", "second", out, nil, nil)
	g.RemoveDevice(d1.ID)
	d3 := g.RegisterDevice("d3", "third", out, nil, nil)

	ana, _ := newTestUser("user_a")
	ana.UpdateProfile("Ana", "#101010")
	g.Join(ana)
	g.SelectDevice(ana, d3.ID, true)
	g.SelectDevice(ana, d2.ID, true)
	ana.Latency.Add(8)

	state := g.State()
	assert.Equal(t, models.KindGroupState, state.Type)
	assert.Equal(t, "g1", state.GroupID)

	require.Len(t, state.Users, 1)
	u := state.Users[0]
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "#101010", u.Color)
	assert.Equal(t, []string{"d2", "d3"}, u.ConnectedDeviceIDs)
	require.NotNil(t, u.LastPing)
	assert.Equal(t, 8.0, *u.LastPing)

	require.Len(t, state.Devices, 2)
	assert.Equal(t, "d3", state.Devices[0].ID, "devices are ordered by slot")
	assert.Equal(t, 1, state.Devices[0].Slot)
	assert.Equal(t, "d2", state.Devices[1].ID)
	assert.Equal(t, []string{"user_a"}, state.Devices[0].ConnectedUserIDs)
	assert.Nil(t, state.Devices[0].LastPing)

	fresh := newTestHub().Group("g2").RegisterDevice("d9", "", out, presets, []string{"BTN_B", "BTN_A", "BTN_A"})
	view := fresh.View(nil)
	assert.Equal(t, "d9", view.Name, "empty names fall back to the id")
	assert.Equal(t, []string{"BTN_A", "BTN_B"}, view.AllowedEvents)
	assert.JSONEq(t, string(presets), string(view.KeybindPresets))
	assert.Equal(t, []string{}, view.ConnectedUserIDs)
	assert.JSONEq(t, `{}`, string(d2.View(nil).KeybindPresets), "missing presets become an empty object")
}

func TestPresetsArePassedThroughVerbatim(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	raw := `{"default":[[57,"BTN_A"],["a","b","c"]],"note":"anything"}`
	g.RegisterDevice("d1", "", out, json.RawMessage(raw), nil)
	g.RegisterDevice("d2", "", out, json.RawMessage("null"), nil)

	frame := models.Encode(g.State())
	var back struct {
		Devices []struct {
			KeybindPresets json.RawMessage `json:"keybind_presets"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(frame, &back))
	require.Len(t, back.Devices, 2)
	assert.JSONEq(t, raw, string(back.Devices[0].KeybindPresets))
	assert.JSONEq(t, `{}`, string(back.Devices[1].KeybindPresets))
}

func TestBroadcastSurvivesBrokenReceiver(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	a, recA := newTestUser("user_a")
	b, recB := newTestUser("user_b")
	c, recC := newTestUser("user_c")
	recB.fail = true
	g.Join(a)
	g.Join(b)
	g.Join(c)

	g.BroadcastState()

	assert.Equal(t, 1, recA.count())
	assert.Equal(t, 0, recB.count())
	assert.Equal(t, 1, recC.count())
}

func TestBroadcastDefaultsToUsersAndDevices(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, recOut := newTestOutput("client_1")
	g.RegisterDevice("d1", "", out, nil, nil)
	g.RegisterDevice("d2", "", out, nil, nil)
	u, recU := newTestUser("user_a")
	g.Join(u)

	g.Broadcast([]byte(`{"type":"hello"}`))
	assert.Equal(t, 1, recU.count())
	assert.Equal(t, 1, recOut.count(), "a client hosting two devices gets one copy")

	g.Broadcast([]byte(`{"type":"only_user"}`), u.Peer)
	assert.Equal(t, 2, recU.count())
	assert.Equal(t, 1, recOut.count())
}

func TestActivitySnapshot(t *testing.T) {
	t.Parallel()

	g := newTestHub().Group("g1")
	out, _ := newTestOutput("client_1")
	d := g.RegisterDevice("d1", "", out, nil, nil)
	u, _ := newTestUser("user_a")
	g.Join(u)
	d.Latency.Add(4)

	snap := g.Activity()
	assert.Equal(t, models.KindActivityAndPing, snap.Type)
	require.Contains(t, snap.Users, "user_a")
	assert.Nil(t, snap.Users["user_a"].LastPing, "no samples is reported as unknown")
	assert.Equal(t, 1700000000.0, snap.Users["user_a"].LastActivityTime)
	require.Contains(t, snap.Devices, "d1")
	require.NotNil(t, snap.Devices["d1"].LastPing)
	assert.Equal(t, 4.0, *snap.Devices["d1"].LastPing)
}
