package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
)

const maxUsernameLength = 64

// UserService manages the identities that transactions refer to. Removing a
// user leaves their participant rows in place; writes on their behalf then fail
// with StaleIdentity.
type UserService struct {
	users  domain.UserRepository
	logger *slog.Logger
}

func NewUserService(users domain.UserRepository, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:  users,
		logger: logger,
	}
}

func (s *UserService) Register(ctx context.Context, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	s.logger.Info("Registering user", "username", username)

	if username == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "username is required")
	}
	if len(username) > maxUsernameLength {
		return nil, errors.NewAppError(errors.InvalidInput, "username is too long")
	}
	if strings.ContainsAny(username, " \t\n") {
		return nil, errors.NewAppError(errors.InvalidInput, "username may not contain whitespace")
	}

	user := &domain.User{Username: username}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetUser(ctx, id)
}

func (s *UserService) Remove(ctx context.Context, id uuid.UUID) error {
	s.logger.Info("Removing user", "user_id", id)
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User removed", "user_id", id)
	return nil
}
