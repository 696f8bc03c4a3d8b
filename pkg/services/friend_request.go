package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/apperrors"
	"github.com/ekaya-inc/friendgraph/pkg/audit"
	"github.com/ekaya-inc/friendgraph/pkg/models"
)

// FriendRequestService is the outward API of the friend request core.
type FriendRequestService interface {
	// CreateRequest sends a friend request from one user to another at the current time.
	CreateRequest(ctx context.Context, fromUserID, toUserID uuid.UUID) (*models.FriendRequest, error)
	// CreateRequestAt is CreateRequest with an explicit admission time.
	CreateRequestAt(ctx context.Context, fromUserID, toUserID uuid.UUID, now time.Time) (*models.FriendRequest, error)
	// UpdateRequestStatus lets the recipient accept or reject a pending request.
	UpdateRequestStatus(ctx context.Context, requestID uuid.UUID, status string, actorID uuid.UUID) (*models.FriendRequest, error)
	ListFriends(ctx context.Context, userID uuid.UUID) ([]*models.User, error)
	ListPending(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)
	ListPendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error)
}

type friendRequestService struct {
	graph   RelationshipGraph
	limiter RateLimitWindow
	view    FriendshipView
	users   UserService
	clock   Clock
	scopeFn ScopeContextFunc
	auditor *audit.SecurityAuditor
	logger  *zap.Logger

	// senderLocks serializes admit, create and record for one sender within this process.
	senderLocks *keyedMutex
}

// NewFriendRequestService wires the admission pipeline. A nil clock uses the system clock.
func NewFriendRequestService(
	graph RelationshipGraph,
	limiter RateLimitWindow,
	view FriendshipView,
	users UserService,
	clock Clock,
	scopeFn ScopeContextFunc,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) FriendRequestService {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &friendRequestService{
		graph:       graph,
		limiter:     limiter,
		view:        view,
		users:       users,
		clock:       clock,
		scopeFn:     scopeFn,
		auditor:     auditor,
		logger:      logger.Named("friend-requests"),
		senderLocks: newKeyedMutex(),
	}
}

var _ FriendRequestService = (*friendRequestService)(nil)

func (s *friendRequestService) CreateRequest(ctx context.Context, fromUserID, toUserID uuid.UUID) (*models.FriendRequest, error) {
	return s.CreateRequestAt(ctx, fromUserID, toUserID, s.clock.Now())
}

func (s *friendRequestService) CreateRequestAt(ctx context.Context, fromUserID, toUserID uuid.UUID, now time.Time) (*models.FriendRequest, error) {
	if fromUserID == toUserID {
		return nil, apperrors.ErrSelfRequest
	}

	var edge *models.FriendRequest
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		exists, err := s.users.Exists(ctx, toUserID)
		if err != nil {
			return fmt.Errorf("failed to look up recipient: %w", err)
		}
		if !exists {
			return fmt.Errorf("recipient %s: %w", toUserID, apperrors.ErrNotFound)
		}

		unlock := s.senderLocks.Lock(fromUserID.String())
		defer unlock()

		admitted, err := s.limiter.Admit(ctx, fromUserID, now)
		if err != nil {
			return err
		}
		if !admitted {
			s.auditor.LogRateLimitExceeded(ctx, fromUserID, audit.RateLimitDetails{
				ToUserID:      toUserID,
				Limit:         s.limiter.Limit(),
				WindowSeconds: s.limiter.Window().Seconds(),
			})
			return fmt.Errorf("%w: at most %d requests per %s", apperrors.ErrRateLimitExceeded, s.limiter.Limit(), s.limiter.Window())
		}

		edge, err = s.graph.CreateEdge(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}

		// The request exists now; a lost quota entry only loosens the limit.
		if err := s.limiter.Record(ctx, fromUserID, now); err != nil {
			s.logger.Error("Failed to record friend request against rate limit",
				zap.String("from_user_id", fromUserID.String()),
				zap.String("request_id", edge.ID.String()),
				zap.Error(err))
		}
		return nil
	})
	if err != nil {
		s.logDenial("Friend request refused", err,
			zap.String("from_user_id", fromUserID.String()),
			zap.String("to_user_id", toUserID.String()))
		return nil, err
	}

	s.logger.Info("Friend request sent",
		zap.String("request_id", edge.ID.String()),
		zap.String("from_user_id", fromUserID.String()),
		zap.String("to_user_id", toUserID.String()))
	return edge, nil
}

func (s *friendRequestService) UpdateRequestStatus(ctx context.Context, requestID uuid.UUID, status string, actorID uuid.UUID) (*models.FriendRequest, error) {
	var edge *models.FriendRequest
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		var err error
		edge, err = s.graph.SetStatus(ctx, requestID, status, actorID)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrPermissionDenied) {
			s.auditor.LogPermissionDenied(ctx, actorID, requestID, audit.PermissionDeniedDetails{
				RequestedStatus: status,
			})
		}
		s.logDenial("Friend request update refused", err,
			zap.String("request_id", requestID.String()),
			zap.String("actor_id", actorID.String()),
			zap.String("status", status))
		return nil, err
	}

	s.logger.Info("Friend request updated",
		zap.String("request_id", requestID.String()),
		zap.String("status", string(edge.Status)))
	return edge, nil
}

func (s *friendRequestService) ListFriends(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	return s.view.FriendsOf(ctx, userID)
}

func (s *friendRequestService) ListPending(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return s.view.PendingFor(ctx, userID)
}

func (s *friendRequestService) ListPendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error) {
	return s.view.PendingWithSenders(ctx, userID)
}

// logDenial logs rule violations at Info and everything else at Error.
func (s *friendRequestService) logDenial(msg string, err error, fields ...zap.Field) {
	kind := apperrors.KindOf(err)
	fields = append(fields, zap.String("kind", string(kind)), zap.Error(err))
	if kind == apperrors.KindInfrastructure {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}
