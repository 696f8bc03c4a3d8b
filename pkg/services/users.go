package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/models"
	"github.com/ekaya-inc/friendgraph/pkg/repositories"
)

// maxNameLength matches users.name VARCHAR(20).
const maxNameLength = 20

// UserService is the user directory consulted by the friend request core.
type UserService interface {
	Create(ctx context.Context, email, name string, superuser bool) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// IsPrivileged reports whether id is an administrative account.
	// Unknown users are not privileged.
	IsPrivileged(ctx context.Context, id uuid.UUID) (bool, error)
	// ListUsers returns everyone currentUserID may send a request to:
	// all accounts except administrators and the caller, by name.
	ListUsers(ctx context.Context, currentUserID uuid.UUID) ([]*models.User, error)
}

// userService implements UserService.
type userService struct {
	userRepo repositories.UserRepository
	scopeFn  ScopeContextFunc
	logger   *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(userRepo repositories.UserRepository, scopeFn ScopeContextFunc, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		scopeFn:  scopeFn,
		logger:   logger.Named("users"),
	}
}

var _ UserService = (*userService)(nil)

func (s *userService) Create(ctx context.Context, email, name string, superuser bool) (*models.User, error) {
	email = models.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("name must be at most %d characters", maxNameLength)
	}

	user := &models.User{
		ID:          uuid.New(),
		Email:       email,
		Name:        name,
		IsSuperuser: superuser,
	}
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user *models.User
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, id)
		return err
	})
	return user, err
}

func (s *userService) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	var users []*models.User
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		var err error
		users, err = s.userRepo.GetByIDs(ctx, ids)
		return err
	})
	return users, err
}

func (s *userService) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		var err error
		exists, err = s.userRepo.Exists(ctx, id)
		return err
	})
	return exists, err
}

func (s *userService) IsPrivileged(ctx context.Context, id uuid.UUID) (bool, error) {
	users, err := s.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	return len(users) == 1 && users[0].IsSuperuser, nil
}

func (s *userService) ListUsers(ctx context.Context, currentUserID uuid.UUID) ([]*models.User, error) {
	var users []*models.User
	err := withScope(ctx, s.scopeFn, func(ctx context.Context) error {
		var err error
		users, err = s.userRepo.ListVisible(ctx, currentUserID)
		return err
	})
	return users, err
}
