package models

import "encoding/json"

// Kind is the value of the "type" field of a frame.
type Kind string

const (
	KindUpdateUserData   Kind = "update_user_data"
	KindJoinGroup        Kind = "join_group"
	KindLeaveGroup       Kind = "leave_group"
	KindSelectOutput     Kind = "select_output"
	KindKeypress         Kind = "keypress"
	KindRenameOutput     Kind = "rename_output"
	KindPong             Kind = "pong"
	KindRegisterDevice   Kind = "register_device"
	KindConfig           Kind = "config"
	KindGroupState       Kind = "group_state"
	KindActivityAndPing  Kind = "activity_and_ping"
	KindDeviceRegistered Kind = "device_registered"
	KindKeyEvent         Kind = "key_event"
	KindPing             Kind = "ping"

	// KindIgnored marks a frame whose type is missing or unknown.
	KindIgnored Kind = ""
)

// Message is an inbound frame decoded into its concrete variant.
type Message interface {
	Kind() Kind
}

// Inbound, user side.

type UpdateUserData struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type JoinGroup struct {
	GroupID string `json:"group_id"`
}

type LeaveGroup struct{}

type SelectOutput struct {
	ID    string `json:"id"`
	State bool   `json:"state"`
}

type Keypress struct {
	DeviceID string          `json:"device_id"`
	Code     json.RawMessage `json:"code"`
	State    int             `json:"state"`
}

type RenameOutput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Pong struct {
	ID string `json:"id"`
}

// Inbound, output side.

// KeybindPresets is carried as raw JSON: the relay hands it to users as
// received and never looks inside.
type RegisterDevice struct {
	TemporaryID    string          `json:"temporary_id"`
	GroupID        string          `json:"group_id"`
	DeviceName     string          `json:"device_name"`
	AllowedEvents  []string        `json:"allowed_events"`
	KeybindPresets json.RawMessage `json:"keybind_presets"`
}

// Ignored is any frame the relay does not act on.
type Ignored struct {
	Type string
}

func (UpdateUserData) Kind() Kind { return KindUpdateUserData }
func (JoinGroup) Kind() Kind      { return KindJoinGroup }
func (LeaveGroup) Kind() Kind     { return KindLeaveGroup }
func (SelectOutput) Kind() Kind   { return KindSelectOutput }
func (Keypress) Kind() Kind       { return KindKeypress }
func (RenameOutput) Kind() Kind   { return KindRenameOutput }
func (Pong) Kind() Kind           { return KindPong }
func (RegisterDevice) Kind() Kind { return KindRegisterDevice }
func (Ignored) Kind() Kind        { return KindIgnored }

// Outbound frames.

type Config struct {
	Type      Kind   `json:"type"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	UserColor string `json:"user_color,omitempty"`
}

type GroupState struct {
	Type    Kind         `json:"type"`
	GroupID string       `json:"group_id"`
	Users   []UserView   `json:"users"`
	Devices []DeviceView `json:"devices"`
}

type UserView struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Color              string   `json:"color"`
	LastActivityTime   float64  `json:"last_activity_time"`
	LastPing           *float64 `json:"last_ping"`
	ConnectedDeviceIDs []string `json:"connected_device_ids"`
}

type DeviceView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Slot             int             `json:"slot"`
	ConnectedUserIDs []string        `json:"connected_user_ids"`
	KeybindPresets   json.RawMessage `json:"keybind_presets"`
	AllowedEvents    []string        `json:"allowed_events"`
	LastPing         *float64        `json:"last_ping"`
}

type ActivityAndPing struct {
	Type    Kind                      `json:"type"`
	Users   map[string]UserActivity   `json:"users"`
	Devices map[string]DeviceActivity `json:"devices"`
}

// UserActivity is encoded as [last_activity_time, last_ping].
type UserActivity struct {
	LastActivityTime float64
	LastPing         *float64
}

func (a UserActivity) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{a.LastActivityTime, a.LastPing})
}

func (a *UserActivity) UnmarshalJSON(data []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if pair[0] != nil {
		a.LastActivityTime = *pair[0]
	}
	a.LastPing = pair[1]
	return nil
}

// DeviceActivity is encoded as [last_ping].
type DeviceActivity struct {
	LastPing *float64
}

func (a DeviceActivity) MarshalJSON() ([]byte, error) {
	return json.Marshal([1]*float64{a.LastPing})
}

func (a *DeviceActivity) UnmarshalJSON(data []byte) error {
	var single [1]*float64
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	a.LastPing = single[0]
	return nil
}

type DeviceRegistered struct {
	Type        Kind   `json:"type"`
	DeviceID    string `json:"device_id"`
	TemporaryID string `json:"temporary_id"`
	GroupID     string `json:"group_id"`
	Slot        int    `json:"slot"`
}

// KeyEvent relays a keypress. Code is forwarded exactly as the user sent it.
type KeyEvent struct {
	Type     Kind            `json:"type"`
	DeviceID string          `json:"device_id"`
	UserID   string          `json:"user_id"`
	Code     json.RawMessage `json:"code"`
	State    int             `json:"state"`
}

type RenameNotice struct {
	Type     Kind   `json:"type"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

type Ping struct {
	Type Kind   `json:"type"`
	ID   string `json:"id"`
}

// Keybind is an (input-code, semantic-event) pair as the output client
// configures it, encoded as a two element array.
type Keybind [2]string

func (k Keybind) Code() string  { return k[0] }
func (k Keybind) Event() string { return k[1] }
