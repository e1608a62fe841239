package outputclient

import "log/slog"

// Emitter turns a relayed event into a signal on the host. The native
// virtual-input driver lives behind this interface.
type Emitter interface {
	Emit(d Device, event string, value int) error
}

// LogEmitter only logs what it would emit.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Emit(d Device, event string, value int) error {
	e.Logger.Info("Emit",
		slog.String("deviceID", d.ID),
		slog.String("device", d.Name),
		slog.String("event", event),
		slog.Int("value", value),
	)
	return nil
}
