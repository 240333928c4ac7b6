package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
)

type userRepository struct {
	store *Store
}

func (r *userRepository) CreateUser(ctx context.Context, user *domain.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return errors.NewAppError(errors.InvalidInput, "username is required")
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	query := `
		INSERT INTO users (id, username, created_at)
		VALUES (?, ?, ?)
	`

	_, err := r.store.executor.ExecContext(ctx, r.store.q(query), user.ID, user.Username, now.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			r.store.logger.Warn("Duplicate username", "username", user.Username)
			return errors.ErrDuplicateUser
		}
		r.store.logger.Error("Failed to create user", "username", user.Username, "error", err)
		return classify(err, "failed to create user")
	}

	user.CreatedAt = now
	r.store.logger.Info("User created successfully", "user_id", user.ID, "username", user.Username)
	return nil
}

func (r *userRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, username, created_at FROM users WHERE id = ?`
	return r.scanUser(ctx, query, id)
}

func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, created_at FROM users WHERE username = ?`
	return r.scanUser(ctx, query, strings.TrimSpace(username))
}

func (r *userRepository) scanUser(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	var createdAt int64

	err := r.store.executor.QueryRowContext(ctx, r.store.q(query), arg).Scan(
		&user.ID,
		&user.Username,
		&createdAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		r.store.logger.Error("Failed to get user", "arg", arg, "error", err)
		return nil, classify(err, "failed to get user")
	}

	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func (r *userRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := r.store.executor.ExecContext(ctx, r.store.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		r.store.logger.Error("Failed to delete user", "user_id", id, "error", err)
		return classify(err, "failed to delete user")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.ErrUserNotFound
	}

	r.store.logger.Info("User deleted", "user_id", id)
	return nil
}
