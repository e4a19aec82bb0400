// Package memory provides an in-process ChatStore. Data lives for the lifetime
// of the process; it backs the "memory" datastore kind and unit tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			return New(), nil
		},
	})
}

type groupRec struct {
	group   model.Group
	members []string
	admins  []string
}

type messageRec struct {
	msg model.Message
	seq int64
}

// Store is an in-process ChatStore guarded by a single RWMutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]model.User
	messages map[string]*messageRec
	groups   map[string]*groupRec
	seq      int64
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    map[string]model.User{},
		messages: map[string]*messageRec{},
		groups:   map[string]*groupRec{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// --- Users ---

func (s *Store) CreateUser(_ context.Context, user model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := s.users[user.ID]; ok {
		return nil, &registrystore.ConflictError{Message: "user already exists", Code: registrystore.ConflictDuplicateUser}
	}
	if user.Email != "" {
		for _, u := range s.users {
			if strings.EqualFold(u.Email, user.Email) {
				return nil, &registrystore.ConflictError{Message: "email already in use", Code: registrystore.ConflictDuplicateEmail}
			}
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return &u, nil
}

func (s *Store) GetUsers(_ context.Context, userIDs []string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.User, 0, len(userIDs))
	for _, id := range lo.Uniq(userIDs) {
		if u, ok := s.users[id]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}

func (s *Store) ListUsersExcept(_ context.Context, userID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.User, 0, len(s.users))
	for id, u := range s.users {
		if id != userID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.ProfilePicture != nil {
		u.ProfilePicture = *update.ProfilePicture
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	s.users[userID] = u
	return &u, nil
}

// --- Messages ---

func copyMessage(m model.Message) model.Message {
	m.SeenBy = slices.Clone(m.SeenBy)
	return m
}

func (s *Store) CreateMessage(_ context.Context, msg model.Message) (*model.Message, error) {
	if err := registrystore.ValidateMessage(msg); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	msg.ID = uuid.NewString()
	msg.Sender = msg.Sender.Unresolve()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.IsGroupMessage() {
		msg.Seen = false
		msg.SeenBy = lo.Uniq(msg.SeenBy)
	} else {
		msg.SeenBy = nil
	}
	s.seq++
	s.messages[msg.ID] = &messageRec{msg: copyMessage(msg), seq: s.seq}
	return &msg, nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.messages[messageID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	m := copyMessage(rec.msg)
	return &m, nil
}

func (s *Store) GetMessages(_ context.Context, messageIDs []string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Message, 0, len(messageIDs))
	for _, id := range lo.Uniq(messageIDs) {
		if rec, ok := s.messages[id]; ok {
			result = append(result, copyMessage(rec.msg))
		}
	}
	return result, nil
}

func (s *Store) UpdateMessageText(_ context.Context, messageID string, text string, editedAt time.Time) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.messages[messageID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	at := editedAt.UTC()
	rec.msg.Text = text
	rec.msg.Edited = true
	rec.msg.EditedAt = &at
	rec.msg.UpdatedAt = s.now()
	m := copyMessage(rec.msg)
	return &m, nil
}

func (s *Store) DeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	delete(s.messages, messageID)
	return nil
}

func (s *Store) DeleteGroupMessages(_ context.Context, groupID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.messages {
		if rec.msg.Group != nil && *rec.msg.Group == groupID {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

// collect returns the matching messages oldest first. Callers must hold s.mu.
func (s *Store) collect(match func(m *model.Message) bool) []model.Message {
	recs := make([]*messageRec, 0)
	for _, rec := range s.messages {
		if match(&rec.msg) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return lo.Map(recs, func(rec *messageRec, _ int) model.Message { return copyMessage(rec.msg) })
}

func isDirectBetween(m *model.Message, from, to string) bool {
	return m.Receiver != nil && m.Sender.ID() == from && *m.Receiver == to
}

func (s *Store) ListDirectMessages(_ context.Context, userA, userB string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m *model.Message) bool {
		return isDirectBetween(m, userA, userB) || isDirectBetween(m, userB, userA)
	}), nil
}

func (s *Store) ListGroupMessages(_ context.Context, groupID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m *model.Message) bool {
		return m.Group != nil && *m.Group == groupID
	}), nil
}

func (s *Store) MarkDirectSeen(_ context.Context, fromUserID, toUserID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.messages {
		if isDirectBetween(&rec.msg, fromUserID, toUserID) && !rec.msg.Seen {
			rec.msg.Seen = true
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkGroupSeen(_ context.Context, groupID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.messages {
		m := &rec.msg
		if m.Group == nil || *m.Group != groupID || m.Sender.ID() == userID || lo.Contains(m.SeenBy, userID) {
			continue
		}
		m.SeenBy = append(m.SeenBy, userID)
		n++
	}
	return n, nil
}

func (s *Store) CountUnseen(_ context.Context, fromUserID, toUserID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.messages {
		if isDirectBetween(&rec.msg, fromUserID, toUserID) && !rec.msg.Seen {
			n++
		}
	}
	return n, nil
}

// --- Groups ---

func (r *groupRec) snapshot() model.Group {
	g := r.group
	g.Members = model.UnresolvedRefs[model.User](r.members)
	g.Admins = slices.Clone(r.admins)
	if r.group.LastMessage != nil {
		ref := *r.group.LastMessage
		g.LastMessage = &ref
	}
	return g
}

func (s *Store) CreateGroup(_ context.Context, group model.Group) (*model.Group, error) {
	if err := registrystore.ValidateGroup(group); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	group.ID = uuid.NewString()
	group.Creator = group.Creator.Unresolve()
	group.LastMessage = nil
	group.CreatedAt = now
	group.UpdatedAt = now
	rec := &groupRec{
		group:   group,
		members: lo.Uniq(group.MemberIDs()),
		admins:  lo.Uniq(group.Admins),
	}
	rec.group.Members = nil
	rec.group.Admins = nil
	s.groups[group.ID] = rec
	g := rec.snapshot()
	return &g, nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.groups[groupID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "group", ID: groupID}
	}
	g := rec.snapshot()
	return &g, nil
}

func (s *Store) ListGroupsForUser(_ context.Context, userID string) ([]model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Group, 0)
	for _, rec := range s.groups {
		if lo.Contains(rec.members, userID) {
			result = append(result, rec.snapshot())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// mutateGroup applies fn to the group under the write lock and returns the result.
func (s *Store) mutateGroup(groupID string, fn func(rec *groupRec)) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[groupID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "group", ID: groupID}
	}
	fn(rec)
	rec.group.UpdatedAt = s.now()
	g := rec.snapshot()
	return &g, nil
}

func (s *Store) UpdateGroupInfo(_ context.Context, groupID string, update model.GroupInfoUpdate) (*model.Group, error) {
	return s.mutateGroup(groupID, func(rec *groupRec) {
		if update.Name != nil {
			rec.group.Name = *update.Name
		}
		if update.Description != nil {
			rec.group.Description = *update.Description
		}
		if update.Avatar != nil {
			rec.group.Avatar = *update.Avatar
		}
	})
}

func (s *Store) SetLastMessage(_ context.Context, groupID, messageID string) error {
	_, err := s.mutateGroup(groupID, func(rec *groupRec) {
		ref := model.Unresolved[model.Message](messageID)
		rec.group.LastMessage = &ref
	})
	return err
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) (*model.Group, error) {
	return s.mutateGroup(groupID, func(rec *groupRec) {
		if !lo.Contains(rec.members, userID) {
			rec.members = append(rec.members, userID)
		}
	})
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID string) (*model.Group, error) {
	return s.mutateGroup(groupID, func(rec *groupRec) {
		rec.members = lo.Without(rec.members, userID)
		rec.admins = lo.Without(rec.admins, userID)
	})
}

func (s *Store) DeleteGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return &registrystore.NotFoundError{Resource: "group", ID: groupID}
	}
	delete(s.groups, groupID)
	return nil
}

var _ registrystore.ChatStore = (*Store)(nil)
