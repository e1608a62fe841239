package outputclient

import "keyrelay/models"

// Profile describes a kind of virtual device: the events it can emit and the
// identity it presents to the host. Kinds are picked by key from Profiles.
type Profile struct {
	Key            string
	UInputName     string
	BusType        uint16
	Vendor         uint16
	Product        uint16
	Version        uint16
	AllowedEvents  []string
	DefaultPresets map[string][]models.Keybind
}

var EventSets = map[string][]string{
	"CONTROLLER_BUTTONS": {
		"BTN_DPAD_UP", "BTN_DPAD_DOWN", "BTN_DPAD_LEFT", "BTN_DPAD_RIGHT",
		"BTN_A", "BTN_B", "BTN_X", "BTN_Y",
		"BTN_TL", "BTN_TR", "BTN_TL2", "BTN_TR2",
		"BTN_START", "BTN_SELECT", "BTN_THUMBL", "BTN_THUMBR",
	},
	"DPAD_CONTROLLER_BUTTONS": {
		"BTN_DPAD_UP", "BTN_DPAD_DOWN", "BTN_DPAD_LEFT", "BTN_DPAD_RIGHT",
	},
}

var Profiles = map[string]Profile{
	"uinput": {
		Key:            "uinput",
		UInputName:     "UInput Device",
		AllowedEvents:  EventSets["DPAD_CONTROLLER_BUTTONS"],
		DefaultPresets: map[string][]models.Keybind{},
	},
	"xbox360": {
		Key:           "xbox360",
		UInputName:    "Microsoft X-Box 360 Controller",
		BusType:       3,
		Vendor:        0x045e,
		Product:       0x028e,
		Version:       1,
		AllowedEvents: EventSets["CONTROLLER_BUTTONS"],
		DefaultPresets: map[string][]models.Keybind{
			"default": {{"Space", "BTN_A"}},
		},
	},
}
