package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
	"focusflow/internal/repository"
)

// TokenIssuer signs tokens for authenticated users.
type TokenIssuer interface {
	Issue(user *model.AuthenticatedUser) (string, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string                   `json:"token"`
	User  *model.AuthenticatedUser `json:"user"`
}

// AuthService handles authentication operations.
type AuthService interface {
	// Authenticate returns the user matching username and password, or nil
	// when they do not match. Unknown users and wrong passwords are
	// indistinguishable; only store failures produce an error.
	Authenticate(ctx context.Context, username, password string) (*model.AuthenticatedUser, error)
	// Login authenticates and issues a token. Returns ErrInvalidCredentials
	// when Authenticate finds no match.
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
	log      *zap.Logger
	compare  func(hash, password []byte) error
}

var (
	unknownUserHashOnce sync.Once
	unknownUserHash     []byte
)

// unknownUserPasswordHash is compared against when the username does not
// exist, so both rejection paths cost one bcrypt comparison.
func unknownUserPasswordHash() []byte {
	unknownUserHashOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("focusflow-unknown-user"), bcryptCost)
		if err != nil {
			panic(fmt.Sprintf("generate unknown user hash: %v", err))
		}
		unknownUserHash = hash
	})
	return unknownUserHash
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, tokens TokenIssuer, log *zap.Logger) AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		log:      log,
		compare:  bcrypt.CompareHashAndPassword,
	}
}

func (s *authService) Authenticate(ctx context.Context, username, password string) (*model.AuthenticatedUser, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.compare(unknownUserPasswordHash(), []byte(password))
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	record := user.Record()
	if err := record.Validate(); err != nil {
		s.log.Error("stored user record is invalid", zap.Uint("id", user.ID), zap.Error(err))
		return nil, nil
	}
	return record, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.log.Info("login rejected", zap.String("username", strings.TrimSpace(username)))
		return nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info("login succeeded", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return &LoginResult{Token: token, User: user}, nil
}
