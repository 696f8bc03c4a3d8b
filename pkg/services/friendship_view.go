package services

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/models"
	"github.com/ekaya-inc/friendgraph/pkg/repositories"
)

// FriendshipView answers read-only questions about a user's relationships.
type FriendshipView interface {
	// FriendsOf returns the users joined to userID by an accepted request in
	// either direction, without administrators or userID itself, by name.
	FriendsOf(ctx context.Context, userID uuid.UUID) ([]*models.User, error)
	// PendingFor returns requests sent to userID that are still awaiting a
	// decision, oldest first.
	PendingFor(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)
	// PendingWithSenders is PendingFor with each sender's profile attached.
	PendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error)
}

type friendshipView struct {
	requests repositories.FriendRequestRepository
	users    repositories.UserRepository
	scopeFn  ScopeContextFunc
	logger   *zap.Logger
}

func NewFriendshipView(
	requests repositories.FriendRequestRepository,
	users repositories.UserRepository,
	scopeFn ScopeContextFunc,
	logger *zap.Logger,
) FriendshipView {
	return &friendshipView{
		requests: requests,
		users:    users,
		scopeFn:  scopeFn,
		logger:   logger.Named("friendship-view"),
	}
}

var _ FriendshipView = (*friendshipView)(nil)

func (v *friendshipView) FriendsOf(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	var friends []*models.User
	err := withScope(ctx, v.scopeFn, func(ctx context.Context) error {
		peerIDs, err := v.requests.ListAcceptedPeerIDs(ctx, userID)
		if err != nil {
			return err
		}

		seen := make(map[uuid.UUID]struct{}, len(peerIDs))
		ids := make([]uuid.UUID, 0, len(peerIDs))
		for _, id := range peerIDs {
			if id == userID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil
		}

		users, err := v.users.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.IsSuperuser || u.ID == userID {
				continue
			}
			friends = append(friends, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(friends, func(a, b *models.User) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	v.logger.Debug("Listed friends",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(friends)))
	return friends, nil
}

func (v *friendshipView) PendingFor(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	var pending []*models.FriendRequest
	err := withScope(ctx, v.scopeFn, func(ctx context.Context) error {
		var err error
		pending, err = v.requests.ListPendingFor(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (v *friendshipView) PendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error) {
	var pending []*models.PendingRequest
	err := withScope(ctx, v.scopeFn, func(ctx context.Context) error {
		var err error
		pending, err = v.requests.ListPendingWithSenders(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}
