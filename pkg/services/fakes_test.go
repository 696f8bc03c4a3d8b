package services

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/friendgraph/pkg/apperrors"
	"github.com/ekaya-inc/friendgraph/pkg/models"
	"github.com/ekaya-inc/friendgraph/pkg/repositories"
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memFriendRequestRepo is an in-memory FriendRequestRepository. A single
// mutex stands in for the pair and row locks of the PostgreSQL implementation.
type memFriendRequestRepo struct {
	mu       sync.Mutex
	requests []*models.FriendRequest
	users    *memUserRepo
	seq      int

	createErr error
	listErr   error

	createCalls int
}

func newMemFriendRequestRepo(users *memUserRepo) *memFriendRequestRepo {
	return &memFriendRequestRepo{users: users}
}

var _ repositories.FriendRequestRepository = (*memFriendRequestRepo)(nil)

func (r *memFriendRequestRepo) CreateIfAdmissible(_ context.Context, from, to uuid.UUID, check repositories.PairCheck) (*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}

	var state models.PairState
	for _, req := range r.requests {
		if !req.Status.IsLive() {
			continue
		}
		switch {
		case req.FromUserID == from && req.ToUserID == to:
			state.Forward = copyRequest(req)
		case req.FromUserID == to && req.ToUserID == from:
			state.Reverse = copyRequest(req)
		}
	}
	if err := check(state); err != nil {
		return nil, err
	}

	r.seq++
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Millisecond)
	req := &models.FriendRequest{
		ID:         uuid.New(),
		FromUserID: from,
		ToUserID:   to,
		Status:     models.RequestStatusSent,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	r.requests = append(r.requests, req)
	return copyRequest(req), nil
}

func (r *memFriendRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range r.requests {
		if req.ID == id {
			return copyRequest(req), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memFriendRequestRepo) HasLive(_ context.Context, from, to uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range r.requests {
		if req.FromUserID == from && req.ToUserID == to && req.Status.IsLive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFriendRequestRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.RequestStatus, check repositories.TransitionCheck) (*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range r.requests {
		if req.ID != id {
			continue
		}
		if err := check(copyRequest(req)); err != nil {
			return nil, err
		}
		req.Status = status
		req.UpdatedAt = req.UpdatedAt.Add(time.Second)
		return copyRequest(req), nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *memFriendRequestRepo) ListPendingFor(_ context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.FriendRequest
	for _, req := range r.requests {
		if req.ToUserID == userID && req.Status == models.RequestStatusSent {
			out = append(out, copyRequest(req))
		}
	}
	return out, nil
}

func (r *memFriendRequestRepo) ListPendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error) {
	pending, err := r.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PendingRequest, 0, len(pending))
	for _, req := range pending {
		sender, err := r.users.GetByID(ctx, req.FromUserID)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.PendingRequest{ID: req.ID, User: sender, CreatedAt: req.CreatedAt})
	}
	return out, nil
}

// ListAcceptedPeerIDs returns one id per accepted request, duplicates included.
func (r *memFriendRequestRepo) ListAcceptedPeerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listErr != nil {
		return nil, r.listErr
	}
	var ids []uuid.UUID
	for _, req := range r.requests {
		if req.Status != models.RequestStatusAccepted {
			continue
		}
		switch userID {
		case req.FromUserID:
			ids = append(ids, req.ToUserID)
		case req.ToUserID:
			ids = append(ids, req.FromUserID)
		}
	}
	return ids, nil
}

// seed stores a request with the given status, bypassing every rule.
func (r *memFriendRequestRepo) seed(from, to uuid.UUID, status models.RequestStatus) *models.FriendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Millisecond)
	req := &models.FriendRequest{
		ID:         uuid.New(),
		FromUserID: from,
		ToUserID:   to,
		Status:     status,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	r.requests = append(r.requests, req)
	return copyRequest(req)
}

func (r *memFriendRequestRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func copyRequest(req *models.FriendRequest) *models.FriendRequest {
	c := *req
	return &c
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	existsErr error
	getErr    error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

var _ repositories.UserRepository = (*memUserRepo)(nil)

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return apperrors.ErrConflict
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetByIDs returns users in map order; callers must not rely on ordering.
func (r *memUserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return nil, r.getErr
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.User
	for id, u := range r.users {
		if want[id] {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memUserRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.users[id]
	return ok, nil
}

func (r *memUserRepo) ListVisible(_ context.Context, excludeID uuid.UUID) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.User
	for id, u := range r.users {
		if id == excludeID || u.IsSuperuser {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.User) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// add stores a user directly and returns its id.
func (r *memUserRepo) add(name string, superuser bool) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.users[id] = &models.User{
		ID:          id,
		Email:       name + "@example.com",
		Name:        name,
		IsSuperuser: superuser,
	}
	return id
}

// failingStore is a TimestampStore whose operations fail on demand.
type failingStore struct {
	pruneErr  error
	appendErr error

	mu       sync.Mutex
	values   map[string][]time.Time
	appended int
}

func newFailingStore() *failingStore {
	return &failingStore{values: make(map[string][]time.Time)}
}

func (s *failingStore) Get(_ context.Context, key string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.values[key]), nil
}

func (s *failingStore) Prune(_ context.Context, key string, cutoff time.Time, _ time.Duration) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pruneErr != nil {
		return nil, s.pruneErr
	}
	kept := slices.DeleteFunc(slices.Clone(s.values[key]), func(v time.Time) bool { return !v.After(cutoff) })
	s.values[key] = kept
	return slices.Clone(kept), nil
}

func (s *failingStore) Append(_ context.Context, key string, value time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended++
	s.values[key] = append(s.values[key], value)
	return nil
}
