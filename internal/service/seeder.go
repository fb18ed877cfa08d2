package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"focusflow/internal/model"
	"focusflow/internal/repository"
)

const bcryptCost = 10

// SeedAccount is a default account created on first run.
type SeedAccount struct {
	Username string
	Password string
	Role     model.Role
}

// DefaultAccounts are the demo accounts seeded into an empty store.
var DefaultAccounts = []SeedAccount{
	{Username: "user", Password: "user123", Role: model.RoleUser},
	{Username: "admin", Password: "admin123", Role: model.RoleAdmin},
}

// Seeder creates the default accounts once per process. Repeated runs, in this
// process or another, never duplicate a user: conflicts on the unique
// username are ignored by the store.
type Seeder struct {
	repo     repository.UserRepository
	accounts []SeedAccount
	log      *zap.Logger

	once    sync.Once
	created int
	err     error
}

// NewSeeder builds a seeder for accounts (DefaultAccounts when nil).
func NewSeeder(repo repository.UserRepository, accounts []SeedAccount, log *zap.Logger) *Seeder {
	if accounts == nil {
		accounts = DefaultAccounts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{repo: repo, accounts: accounts, log: log}
}

// Seed inserts missing accounts and returns how many were created. Only the
// first call does work; later calls return the first result.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	s.once.Do(func() {
		s.created, s.err = s.seed(ctx)
	})
	return s.created, s.err
}

func (s *Seeder) seed(ctx context.Context) (int, error) {
	created := 0
	for _, account := range s.accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcryptCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", account.Username, err)
		}

		ok, err := s.repo.CreateIfAbsent(ctx, &model.User{
			Username:     account.Username,
			PasswordHash: string(hash),
			Role:         account.Role,
		})
		if err != nil {
			return created, fmt.Errorf("seed user %s: %w", account.Username, err)
		}
		if ok {
			created++
			s.log.Info("seeded user", zap.String("username", account.Username), zap.String("role", string(account.Role)))
		}
	}
	return created, nil
}
