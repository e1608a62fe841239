package handlers

import (
	"log/slog"

	"keyrelay/hub"
	"keyrelay/models"
)

// userSession is the user side of the relay. It is Unbound while group is nil
// and Bound to exactly one group otherwise.
type userSession struct {
	h      *Handler
	user   *models.User
	group  *hub.Group
	logger *slog.Logger
}

var userRoutes = map[models.Kind]func(*userSession, models.Message){
	models.KindUpdateUserData: func(s *userSession, m models.Message) { s.updateUserData(m.(models.UpdateUserData)) },
	models.KindJoinGroup:      func(s *userSession, m models.Message) { s.joinGroup(m.(models.JoinGroup)) },
	models.KindLeaveGroup:     func(s *userSession, _ models.Message) { s.leaveGroup() },
	models.KindSelectOutput:   func(s *userSession, m models.Message) { s.selectOutput(m.(models.SelectOutput)) },
	models.KindKeypress:       func(s *userSession, m models.Message) { s.keypress(m.(models.Keypress)) },
	models.KindRenameOutput:   func(s *userSession, m models.Message) { s.renameOutput(m.(models.RenameOutput)) },
	models.KindPong:           func(s *userSession, m models.Message) { s.pong(m.(models.Pong)) },
}

func (h *Handler) newUserSession(u *models.User, logger *slog.Logger) *userSession {
	return &userSession{h: h, user: u, logger: logger}
}

// start registers the user and tells it its id.
func (s *userSession) start() {
	s.h.hub.AddUser(s.user)
	s.reply(models.Config{Type: models.KindConfig, UserID: s.user.ID})
	s.logger.Info("User connected")
}

// close leaves the current group, if any, with a final broadcast.
func (s *userSession) close() {
	s.leaveGroup()
	s.h.hub.RemoveUser(s.user.ID)
	s.logger.Info("User disconnected")
}

func (s *userSession) handle(msg models.Message) {
	route, ok := userRoutes[msg.Kind()]
	if !ok {
		return
	}
	route(s, msg)
}

func (s *userSession) reply(v any) {
	if err := s.user.Peer.Send(models.Encode(v)); err != nil {
		s.logger.Debug("Reply dropped", slog.Any("error", err))
	}
}

func (s *userSession) touch() {
	s.user.Touch(s.h.now())
}

func (s *userSession) updateUserData(m models.UpdateUserData) {
	s.user.UpdateProfile(m.Name, m.Color)
	s.touch()

	if s.group != nil {
		s.group.BroadcastState()
		return
	}
	s.reply(models.Config{
		Type:      models.KindConfig,
		UserID:    s.user.ID,
		UserName:  s.user.Name(),
		UserColor: s.user.Color(),
	})
}

// joinGroup moves the user into a group. Joining the group the user is
// already in keeps its selection and only refreshes the snapshot.
func (s *userSession) joinGroup(m models.JoinGroup) {
	if s.group != nil && m.GroupID != "" && m.GroupID == s.group.ID {
		s.touch()
		s.group.BroadcastState()
		return
	}
	if s.group != nil {
		s.leaveGroup()
	}

	g := s.h.hub.Group(m.GroupID)
	g.Join(s.user)
	s.group = g
	s.touch()
	g.BroadcastState()
}

func (s *userSession) leaveGroup() {
	if s.group == nil {
		return
	}
	g := s.group
	s.group = nil
	g.Leave(s.user.ID)
	g.BroadcastState()
}

func (s *userSession) selectOutput(m models.SelectOutput) {
	if s.group == nil {
		return
	}
	if m.ID != "" {
		s.group.SelectDevice(s.user, m.ID, m.State)
	}
	s.touch()
	s.group.BroadcastState()
}

// keypress forwards to the owning output connection only. No snapshot is sent.
func (s *userSession) keypress(m models.Keypress) {
	if s.group == nil || m.DeviceID == "" {
		return
	}
	d, ok := s.group.TargetedDevice(s.user, m.DeviceID)
	if !ok {
		return
	}

	peer := d.Peer()
	if peer == nil {
		return
	}
	err := peer.Send(models.Encode(models.KeyEvent{
		Type:     models.KindKeyEvent,
		DeviceID: d.ID,
		UserID:   s.user.ID,
		Code:     m.Code,
		State:    m.State,
	}))
	if err != nil {
		s.logger.Debug("Key event dropped", slog.String("deviceID", d.ID), slog.Any("error", err))
	}
	s.touch()
}

func (s *userSession) renameOutput(m models.RenameOutput) {
	if s.group == nil {
		return
	}

	if d, renamed := s.group.RenameDevice(m.ID, m.Name); renamed {
		notice := models.Encode(models.RenameNotice{
			Type:     models.KindRenameOutput,
			DeviceID: d.ID,
			Name:     d.Name(),
		})
		s.group.Broadcast(notice, d.Peer(), s.user.Peer)
		s.logger.Info("Device renamed", slog.String("deviceID", d.ID), slog.String("name", d.Name()))
	}
	s.touch()
	s.group.BroadcastState()
}

func (s *userSession) pong(m models.Pong) {
	if s.h.pongs == nil {
		return
	}
	s.h.pongs.HandlePong(s.user.ID, m.ID)
}
