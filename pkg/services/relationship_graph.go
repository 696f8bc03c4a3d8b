package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/apperrors"
	"github.com/ekaya-inc/friendgraph/pkg/models"
	"github.com/ekaya-inc/friendgraph/pkg/repositories"
)

// RelationshipGraph owns the friend request state machine. Every decision is
// made against state re-read inside the store's transaction.
type RelationshipGraph interface {
	HasLiveEdge(ctx context.Context, from, to uuid.UUID) (bool, error)
	CreateEdge(ctx context.Context, from, to uuid.UUID) (*models.FriendRequest, error)
	GetEdge(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	// SetStatus moves a sent request to accepted or rejected on behalf of actor.
	SetStatus(ctx context.Context, id uuid.UUID, status string, actor uuid.UUID) (*models.FriendRequest, error)
}

type relationshipGraph struct {
	repo   repositories.FriendRequestRepository
	logger *zap.Logger
}

func NewRelationshipGraph(repo repositories.FriendRequestRepository, logger *zap.Logger) RelationshipGraph {
	return &relationshipGraph{
		repo:   repo,
		logger: logger.Named("relationship-graph"),
	}
}

var _ RelationshipGraph = (*relationshipGraph)(nil)

func (g *relationshipGraph) HasLiveEdge(ctx context.Context, from, to uuid.UUID) (bool, error) {
	return g.repo.HasLive(ctx, from, to)
}

func (g *relationshipGraph) CreateEdge(ctx context.Context, from, to uuid.UUID) (*models.FriendRequest, error) {
	if from == to {
		return nil, apperrors.ErrSelfRequest
	}

	edge, err := g.repo.CreateIfAdmissible(ctx, from, to, func(state models.PairState) error {
		return validateNewEdge(from, to, state)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Friend request created",
		zap.String("request_id", edge.ID.String()),
		zap.String("from_user_id", from.String()),
		zap.String("to_user_id", to.String()))
	return edge, nil
}

func (g *relationshipGraph) GetEdge(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	return g.repo.GetByID(ctx, id)
}

func (g *relationshipGraph) SetStatus(ctx context.Context, id uuid.UUID, status string, actor uuid.UUID) (*models.FriendRequest, error) {
	edge, err := g.repo.UpdateStatus(ctx, id, models.RequestStatus(status), func(current *models.FriendRequest) error {
		return validateTransition(current, status, actor)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Friend request status changed",
		zap.String("request_id", id.String()),
		zap.String("status", string(edge.Status)))
	return edge, nil
}

// validateNewEdge applies the creation rules, in order, to a snapshot of the
// live requests between from and to.
func validateNewEdge(from, to uuid.UUID, state models.PairState) error {
	if from == to {
		return apperrors.ErrSelfRequest
	}
	if state.Forward != nil && state.Forward.Status.IsLive() {
		return apperrors.ErrDuplicateRequest
	}
	if state.Reverse != nil && state.Reverse.Status.IsLive() {
		return apperrors.ErrReciprocalConflict
	}
	return nil
}

// validateTransition checks that actor may move current to status.
// The requested status is checked first, then the actor, then the current status.
func validateTransition(current *models.FriendRequest, status string, actor uuid.UUID) error {
	if status == "" {
		return fmt.Errorf("status field is required: %w", apperrors.ErrInvalidStatus)
	}
	parsed, ok := models.ParseRequestStatus(status)
	if !ok || parsed == models.RequestStatusSent {
		return apperrors.ErrInvalidStatus
	}
	if current.ToUserID != actor {
		return apperrors.ErrPermissionDenied
	}
	if current.Status.IsTerminal() {
		return apperrors.ErrInvalidTransition
	}
	return nil
}
