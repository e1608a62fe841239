package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"keyrelay/logging"
	"keyrelay/models"
)

// recorder is a Peer that keeps every frame it is sent.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (r *recorder) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) lastState(t *testing.T) models.GroupState {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if models.TypeOf(r.frames[i]) == models.KindGroupState {
			var s models.GroupState
			require.NoError(t, json.Unmarshal(r.frames[i], &s))
			return s
		}
	}
	t.Fatal("no group_state frame recorded")
	return models.GroupState{}
}

func newTestHub() *Hub {
	return NewHub(logging.Discard())
}

func newTestUser(id string) (*models.User, *recorder) {
	rec := &recorder{}
	return models.NewUser(id, rec, time.Unix(1700000000, 0)), rec
}

func newTestOutput(id string) (*models.OutputClient, *recorder) {
	rec := &recorder{}
	return models.NewOutputClient(id, rec), rec
}
