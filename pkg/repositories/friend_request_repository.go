package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/friendgraph/pkg/apperrors"
	"github.com/ekaya-inc/friendgraph/pkg/database"
	"github.com/ekaya-inc/friendgraph/pkg/models"
)

// PairCheck inspects the live requests between two users before a new one is inserted.
type PairCheck func(state models.PairState) error

// TransitionCheck inspects a locked request before its status is changed.
type TransitionCheck func(current *models.FriendRequest) error

// FriendRequestRepository defines the interface for friend request persistence.
type FriendRequestRepository interface {
	// CreateIfAdmissible serializes creation for the unordered pair {from, to},
	// runs check against the current live requests and inserts a new "sent"
	// request only if check returns nil.
	CreateIfAdmissible(ctx context.Context, from, to uuid.UUID, check PairCheck) (*models.FriendRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	HasLive(ctx context.Context, from, to uuid.UUID) (bool, error)
	// UpdateStatus locks the request row, runs check against it and stores
	// status only if check returns nil.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, check TransitionCheck) (*models.FriendRequest, error)
	ListPendingFor(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)
	ListPendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error)
	ListAcceptedPeerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type friendRequestRepository struct{}

// NewFriendRequestRepository creates a new friend request repository.
func NewFriendRequestRepository() FriendRequestRepository {
	return &friendRequestRepository{}
}

var _ FriendRequestRepository = (*friendRequestRepository)(nil)

const friendRequestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

// pairLockKey is the same for (a, b) and (b, a).
func pairLockKey(a, b uuid.UUID) string {
	if a.String() > b.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

func (r *friendRequestRepository) CreateIfAdmissible(ctx context.Context, from, to uuid.UUID, check PairCheck) (req *models.FriendRequest, err error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Held until commit or rollback.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, pairLockKey(from, to)); err != nil {
		return nil, fmt.Errorf("failed to lock request pair: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+friendRequestColumns+`
		FROM friend_requests
		WHERE ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
		  AND status <> 'rejected'`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read request pair: %w", err)
	}
	live, err := collectFriendRequests(rows)
	if err != nil {
		return nil, err
	}

	var state models.PairState
	for _, edge := range live {
		if edge.FromUserID == from {
			state.Forward = edge
		} else {
			state.Reverse = edge
		}
	}

	if err = check(state); err != nil {
		return nil, err
	}

	req = &models.FriendRequest{
		ID:         uuid.New(),
		FromUserID: from,
		ToUserID:   to,
		Status:     models.RequestStatusSent,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO friend_requests (id, from_user_id, to_user_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		req.ID, req.FromUserID, req.ToUserID, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			err = apperrors.ErrDuplicateRequest
			return nil, err
		}
		if database.IsForeignKeyViolation(err) {
			err = fmt.Errorf("user: %w", apperrors.ErrNotFound)
			return nil, err
		}
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return req, nil
}

func (r *friendRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+friendRequestColumns+` FROM friend_requests WHERE id = $1`, id)
	req, err := scanFriendRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get friend request: %w", err)
	}
	return req, nil
}

func (r *friendRequestRepository) HasLive(ctx context.Context, from, to uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE from_user_id = $1 AND to_user_id = $2 AND status <> 'rejected'
		)`, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check live request: %w", err)
	}
	return exists, nil
}

func (r *friendRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, check TransitionCheck) (req *models.FriendRequest, err error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+friendRequestColumns+` FROM friend_requests WHERE id = $1 FOR UPDATE`, id)
	req, err = scanFriendRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = apperrors.ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock friend request: %w", err)
	}

	if err = check(req); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE friend_requests
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`, id, status).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update friend request: %w", err)
	}
	req.Status = status

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return req, nil
}

func (r *friendRequestRepository) ListPendingFor(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+friendRequestColumns+`
		FROM friend_requests
		WHERE to_user_id = $1 AND status = 'sent'
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return collectFriendRequests(rows)
}

func (r *friendRequestRepository) ListPendingWithSenders(ctx context.Context, userID uuid.UUID) ([]*models.PendingRequest, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT fr.id, fr.created_at,
		       u.id, u.email, u.name, u.is_superuser, u.created_at, u.updated_at
		FROM friend_requests fr
		JOIN users u ON u.id = fr.from_user_id
		WHERE fr.to_user_id = $1 AND fr.status = 'sent'
		ORDER BY fr.created_at, fr.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []*models.PendingRequest
	for rows.Next() {
		var p models.PendingRequest
		var u models.User
		if err := rows.Scan(&p.ID, &p.CreatedAt,
			&u.ID, &u.Email, &u.Name, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		p.User = &u
		pending = append(pending, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending requests: %w", err)
	}
	return pending, nil
}

func (r *friendRequestRepository) ListAcceptedPeerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT to_user_id FROM friend_requests WHERE from_user_id = $1 AND status = 'accepted'
		UNION
		SELECT from_user_id FROM friend_requests WHERE to_user_id = $1 AND status = 'accepted'`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friends: %w", err)
	}
	return ids, nil
}

func scanFriendRequest(row pgx.Row) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := row.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// collectFriendRequests scans and closes rows.
func collectFriendRequests(rows pgx.Rows) ([]*models.FriendRequest, error) {
	defer rows.Close()

	var out []*models.FriendRequest
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend requests: %w", err)
	}
	return out, nil
}
