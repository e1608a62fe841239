package userclient

import "keyrelay/models"

// State is the client's picture of its group, rebuilt from group_state and
// refreshed by activity_and_ping.
type State struct {
	UserID  string
	GroupID string
	Users   []models.UserView
	Devices []models.DeviceView
}

func (s *State) ApplyConfig(m models.Config) {
	if m.UserID != "" {
		s.UserID = m.UserID
	}
}

func (s *State) ApplyGroupState(m models.GroupState) {
	s.GroupID = m.GroupID
	s.Users = m.Users
	s.Devices = m.Devices
}

// ApplyActivity updates activity and latency of known entities. Entities
// missing from the current snapshot are skipped.
func (s *State) ApplyActivity(m models.ActivityAndPing) {
	for i := range s.Users {
		if a, ok := m.Users[s.Users[i].ID]; ok {
			s.Users[i].LastActivityTime = a.LastActivityTime
			s.Users[i].LastPing = a.LastPing
		}
	}
	for i := range s.Devices {
		if a, ok := m.Devices[s.Devices[i].ID]; ok {
			s.Devices[i].LastPing = a.LastPing
		}
	}
}

// UserName returns the display name of a member, or the id when unknown.
func (s *State) UserName(id string) string {
	for _, u := range s.Users {
		if u.ID == id {
			return u.Name
		}
	}
	return id
}
