package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"focusflow/internal/cache"
	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
	"focusflow/internal/repository"
)

const (
	userCacheTTL     = 5 * time.Minute
	userListCacheKey = "users:all"
)

// UserService exposes the user directory shown to administrators. Only
// identity records are returned or cached, never password hashes.
type UserService interface {
	GetUser(ctx context.Context, id uint) (*model.AuthenticatedUser, error)
	ListUsers(ctx context.Context) ([]model.AuthenticatedUser, error)
	// InvalidateDirectory drops cached directory entries after the store
	// changes.
	InvalidateDirectory(ctx context.Context) error
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

func (s *userService) GetUser(ctx context.Context, id uint) (*model.AuthenticatedUser, error) {
	var cached model.AuthenticatedUser
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) && cached.Validate() == nil {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	record := user.Record()
	s.cache.SetJSON(ctx, s.cacheKey(id), record, userCacheTTL)
	return record, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]model.AuthenticatedUser, error) {
	var cached []model.AuthenticatedUser
	if s.cache.GetJSON(ctx, userListCacheKey, &cached) {
		return cached, nil
	}

	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	records := make([]model.AuthenticatedUser, 0, len(users))
	for i := range users {
		records = append(records, *users[i].Record())
	}
	s.cache.SetJSON(ctx, userListCacheKey, records, userCacheTTL)
	return records, nil
}

func (s *userService) InvalidateDirectory(ctx context.Context) error {
	users, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	keys := make([]string, 0, len(users)+1)
	keys = append(keys, userListCacheKey)
	for i := range users {
		keys = append(keys, s.cacheKey(users[i].ID))
	}
	return s.cache.Delete(ctx, keys...)
}
