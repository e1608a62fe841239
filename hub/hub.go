package hub

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"keyrelay/models"
)

// Hub is the session registry: groups by id plus every connected user and
// output client. Groups are created on first reference and never evicted.
type Hub struct {
	mu     sync.Mutex
	groups map[string]*Group

	connMu  sync.RWMutex
	users   map[string]*models.User
	outputs map[string]*models.OutputClient

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		groups:  make(map[string]*Group),
		users:   make(map[string]*models.User),
		outputs: make(map[string]*models.OutputClient),
		logger:  logger.With(slog.String("component", "hub")),
	}
}

// Group returns the group with the given id, creating it if needed. An empty
// id gets a freshly generated one. Concurrent first references to the same id
// yield the same Group.
func (h *Hub) Group(id string) *Group {
	if id == "" {
		id = NewGroupID()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[id]
	if !ok {
		g = newGroup(id, h.logger)
		h.groups[id] = g
		h.logger.Debug("Group created", slog.String("groupID", id))
	}
	return g
}

// LookupGroup returns an existing group without creating one.
func (h *Hub) LookupGroup(id string) (*Group, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[id]
	return g, ok
}

// Groups returns every group ordered by id.
func (h *Hub) Groups() []*Group {
	h.mu.Lock()
	out := make([]*Group, 0, len(h.groups))
	for _, g := range h.groups {
		out = append(out, g)
	}
	h.mu.Unlock()
	slices.SortFunc(out, func(a, b *Group) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (h *Hub) AddUser(u *models.User) {
	h.connMu.Lock()
	h.users[u.ID] = u
	h.connMu.Unlock()
}

func (h *Hub) RemoveUser(id string) {
	h.connMu.Lock()
	delete(h.users, id)
	h.connMu.Unlock()
}

func (h *Hub) User(id string) (*models.User, bool) {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	u, ok := h.users[id]
	return u, ok
}

func (h *Hub) Users() []*models.User {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	out := make([]*models.User, 0, len(h.users))
	for _, u := range h.users {
		out = append(out, u)
	}
	return out
}

func (h *Hub) AddOutputClient(c *models.OutputClient) {
	h.connMu.Lock()
	h.outputs[c.ID] = c
	h.connMu.Unlock()
}

func (h *Hub) OutputClient(id string) (*models.OutputClient, bool) {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	c, ok := h.outputs[id]
	return c, ok
}

func (h *Hub) OutputClients() []*models.OutputClient {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	out := make([]*models.OutputClient, 0, len(h.outputs))
	for _, c := range h.outputs {
		out = append(out, c)
	}
	return out
}

// RemoveOutputClient unregisters the client and removes every device it hosts
// from its group. Each affected group gets one fresh snapshot.
func (h *Hub) RemoveOutputClient(c *models.OutputClient) {
	h.connMu.Lock()
	delete(h.outputs, c.ID)
	h.connMu.Unlock()

	var affected []*Group
	for _, d := range c.DetachAll() {
		g, ok := h.LookupGroup(d.GroupID)
		if !ok {
			continue
		}
		g.RemoveDevice(d.ID)
		if !slices.Contains(affected, g) {
			affected = append(affected, g)
		}
	}
	for _, g := range affected {
		g.BroadcastState()
	}
}

// NewGroupID returns a random 32 character hex group id.
func NewGroupID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewUserID() string   { return "user_" + shortID() }
func NewClientID() string { return "client_" + shortID() }
func NewDeviceID() string { return "output_" + shortID() }

func shortID() string {
	return NewGroupID()[:8]
}
