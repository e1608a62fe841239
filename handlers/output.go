package handlers

import (
	"log/slog"

	"keyrelay/hub"
	"keyrelay/models"
)

// outputSession is the output side of the relay. One connection can register
// any number of devices over its lifetime.
type outputSession struct {
	h      *Handler
	client *models.OutputClient
	logger *slog.Logger
}

var outputRoutes = map[models.Kind]func(*outputSession, models.Message){
	models.KindRegisterDevice: func(s *outputSession, m models.Message) { s.registerDevice(m.(models.RegisterDevice)) },
	models.KindPong:           func(s *outputSession, m models.Message) { s.pong(m.(models.Pong)) },
}

func (h *Handler) newOutputSession(c *models.OutputClient, logger *slog.Logger) *outputSession {
	return &outputSession{h: h, client: c, logger: logger}
}

func (s *outputSession) start() {
	s.h.hub.AddOutputClient(s.client)
	s.logger.Info("Output client connected")
}

// close removes every hosted device and refreshes the affected groups.
func (s *outputSession) close() {
	s.h.hub.RemoveOutputClient(s.client)
	s.logger.Info("Output client disconnected")
}

func (s *outputSession) handle(msg models.Message) {
	route, ok := outputRoutes[msg.Kind()]
	if !ok {
		return
	}
	route(s, msg)
}

func (s *outputSession) registerDevice(m models.RegisterDevice) {
	g := s.h.hub.Group(m.GroupID)
	d := g.RegisterDevice(hub.NewDeviceID(), m.DeviceName, s.client, m.KeybindPresets, m.AllowedEvents)

	err := s.client.Peer.Send(models.Encode(models.DeviceRegistered{
		Type:        models.KindDeviceRegistered,
		DeviceID:    d.ID,
		TemporaryID: m.TemporaryID,
		GroupID:     g.ID,
		Slot:        d.Slot,
	}))
	if err != nil {
		s.logger.Debug("Registration reply dropped", slog.String("deviceID", d.ID), slog.Any("error", err))
	}
	g.BroadcastState()
	s.logger.Info("Device registered",
		slog.String("deviceID", d.ID),
		slog.String("groupID", g.ID),
		slog.Int("slot", d.Slot),
	)
}

func (s *outputSession) pong(m models.Pong) {
	if s.h.pongs == nil {
		return
	}
	s.h.pongs.HandlePong(s.client.ID, m.ID)
}
