package outputclient

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"keyrelay/models"
)

// Settings is the output client's YAML settings file.
type Settings struct {
	Connection           ConnectionSettings        `yaml:"connection"`
	Devices              map[string]DeviceSettings `yaml:"devices"`
	KeybindPresetLibrary map[string][][]string     `yaml:"keybind_preset_library"`
}

type ConnectionSettings struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	IPVersion string `yaml:"ip_version"`
	Secure    bool   `yaml:"secure"`
	GroupID   string `yaml:"group_id"`
}

type DeviceSettings struct {
	DeviceType    string   `yaml:"device_type"`
	GroupID       string   `yaml:"group_id"`
	Presets       []string `yaml:"presets"`
	AllowedEvents []string `yaml:"allowed_events"`
}

func DefaultSettings() Settings {
	return Settings{
		Connection: ConnectionSettings{
			Host:      "localhost",
			Port:      8000,
			IPVersion: "auto",
		},
	}
}

// LoadSettings reads path over the defaults. A missing file is not an error:
// the defaults are returned and a warning is logged.
func LoadSettings(path string, logger *slog.Logger) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Settings file not found", slog.String("path", path))
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Library converts the preset library into keybind lists. Entries that are
// not a pair are skipped.
func (s Settings) Library() map[string][]models.Keybind {
	lib := make(map[string][]models.Keybind, len(s.KeybindPresetLibrary))
	for name, binds := range s.KeybindPresetLibrary {
		list := make([]models.Keybind, 0, len(binds))
		for _, pair := range binds {
			if len(pair) != 2 {
				continue
			}
			list = append(list, models.Keybind{pair[0], pair[1]})
		}
		lib[name] = list
	}
	return lib
}

// BuildDevices resolves every configured device against the profile table and
// the preset library, ordered by device name.
func (s Settings) BuildDevices() ([]Device, error) {
	lib := s.Library()

	out := make([]Device, 0, len(s.Devices))
	for _, name := range slices.Sorted(maps.Keys(s.Devices)) {
		ds := s.Devices[name]
		if ds.DeviceType == "" {
			return nil, fmt.Errorf("device %q: missing device_type", name)
		}
		profile, ok := Profiles[ds.DeviceType]
		if !ok {
			return nil, fmt.Errorf("device %q: unknown device type %q", name, ds.DeviceType)
		}

		presets := make(map[string][]models.Keybind)
		if len(ds.Presets) == 0 {
			maps.Copy(presets, profile.DefaultPresets)
		}
		for _, p := range ds.Presets {
			if binds, ok := lib[p]; ok {
				presets[p] = binds
			}
		}

		allowed := ds.AllowedEvents
		if len(allowed) == 0 {
			allowed = profile.AllowedEvents
		}

		groupID := ds.GroupID
		if groupID == "" {
			groupID = s.Connection.GroupID
		}

		out = append(out, Device{
			Name:           name,
			GroupID:        groupID,
			Profile:        profile,
			AllowedEvents:  slices.Clone(allowed),
			KeybindPresets: presets,
		})
	}
	return out, nil
}
