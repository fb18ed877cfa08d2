package repository

import (
	"context"
	"sync"
	"time"

	"focusflow/internal/model"
)

type memoryUserRepository struct {
	mu    sync.RWMutex
	users []model.User
	byKey map[string]int
}

// NewMemoryUserRepository returns a process-local credential store. It keeps
// the same one-record-per-normalized-username rule as the database.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{byKey: make(map[string]int)}
}

func (r *memoryUserRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[model.NormalizeUsername(username)]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.users[i]
	return &user, nil
}

func (r *memoryUserRepository) FindByID(_ context.Context, id uint) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.users) {
		return nil, ErrNotFound
	}
	user := r.users[id-1]
	return &user, nil
}

func (r *memoryUserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.User(nil), r.users...), nil
}

func (r *memoryUserRepository) CreateIfAbsent(_ context.Context, user *model.User) (bool, error) {
	if err := user.BeforeSave(nil); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[user.UsernameKey]; exists {
		return false, nil
	}

	now := time.Now()
	user.ID = uint(len(r.users) + 1)
	user.CreatedAt, user.UpdatedAt = now, now
	r.users = append(r.users, *user)
	r.byKey[user.UsernameKey] = len(r.users) - 1
	return true, nil
}
