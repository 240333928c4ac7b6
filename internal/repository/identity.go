package repository

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
)

type identityResolver struct {
	users domain.UserRepository
}

// NewIdentityResolver adapts a UserRepository to the IdentityResolver contract.
func NewIdentityResolver(users domain.UserRepository) domain.IdentityResolver {
	return &identityResolver{users: users}
}

func (r *identityResolver) ResolveUsername(ctx context.Context, username string) (uuid.UUID, error) {
	user, err := r.users.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return uuid.Nil, errors.NewAppErrorf(errors.NotFound, "user %q not found", username)
		}
		return uuid.Nil, err
	}
	return user.ID, nil
}

func (r *identityResolver) IdentityExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := r.users.GetUser(ctx, userID)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, errors.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}

func (r *identityResolver) LookupUsername(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err == nil {
		return user.Username, true, nil
	}
	if stderrors.Is(err, errors.ErrUserNotFound) {
		return "", false, nil
	}
	return "", false, err
}
