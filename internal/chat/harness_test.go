package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/store/memory"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/stretchr/testify/require"
)

type event struct {
	name    string
	payload any
}

// recorder is a presence.Conn that keeps every event it is sent.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Send(name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name, payload})
	return nil
}

// named returns the payloads of every event called name, ignoring presence broadcasts.
func (r *recorder) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) chatEvents() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.name != model.EventGetOnlineUsers {
			out = append(out, e)
		}
	}
	return out
}

var errStoreDown = errors.New("connection reset by peer")

// faultyStore passes through to the memory store until failWrites is set,
// then rejects the writes that precede a dispatch.
type faultyStore struct {
	*memory.Store
	mu         sync.Mutex
	failWrites bool
}

func (s *faultyStore) breakWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = true
}

func (s *faultyStore) broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWrites
}

func (s *faultyStore) CreateMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	if s.broken() {
		return nil, errStoreDown
	}
	return s.Store.CreateMessage(ctx, msg)
}

func (s *faultyStore) UpdateGroupInfo(ctx context.Context, groupID string, update model.GroupInfoUpdate) (*model.Group, error) {
	if s.broken() {
		return nil, errStoreDown
	}
	return s.Store.UpdateGroupInfo(ctx, groupID, update)
}

func (s *faultyStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	if s.broken() {
		return nil, errStoreDown
	}
	return s.Store.RemoveGroupMember(ctx, groupID, userID)
}

func (s *faultyStore) DeleteGroup(ctx context.Context, groupID string) error {
	if s.broken() {
		return errStoreDown
	}
	return s.Store.DeleteGroup(ctx, groupID)
}

type harness struct {
	ctx      context.Context
	store    *memory.Store
	faults   *faultyStore
	presence *presence.Registry
	direct   *DirectChannel
	groups   *GroupChannel
	profiles *Profiles
	conns    map[string]*recorder
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	faults := &faultyStore{Store: store}
	svc := NewService(faults, nil, 0)
	hs := &harness{
		ctx:      ctx,
		store:    store,
		faults:   faults,
		presence: svc.Presence,
		direct:   svc.Direct,
		groups:   svc.Groups,
		profiles: svc.Profiles,
		conns:    map[string]*recorder{},
	}
	for _, id := range users {
		_, err := store.CreateUser(ctx, model.User{ID: id, Username: id + "-name", Email: id + "@example.com"})
		require.NoError(t, err)
	}
	return hs
}

// online connects each user with a fresh recorder.
func (h *harness) online(ids ...string) {
	for _, id := range ids {
		c := &recorder{}
		h.conns[id] = c
		h.presence.Connect(id, c)
	}
}

func (h *harness) conn(id string) *recorder { return h.conns[id] }

func (h *harness) group(t *testing.T, creator string, members ...string) *model.Group {
	t.Helper()
	g, err := h.groups.Create(h.ctx, creator, CreateGroupRequest{Name: "team", MemberIDs: members})
	require.NoError(t, err)
	return g
}
