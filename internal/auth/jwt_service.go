package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"focusflow/internal/model"
)

// DefaultTokenExpiry is the lifetime of issued tokens when none is configured.
const DefaultTokenExpiry = time.Hour

var (
	errUnexpectedSigningMethod = errors.New("unexpected signing method")
	errTokenExpired            = errors.New("token expired")
	errTokenNotYetValid        = errors.New("token used before issued")
)

// Claims represents JWT claims.
type Claims struct {
	ID       uint       `json:"id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// User returns the identity fields of the claims.
func (c *Claims) User() *model.AuthenticatedUser {
	return &model.AuthenticatedUser{
		ID:       c.ID,
		Username: c.Username,
		Role:     c.Role,
	}
}

// TokenService issues and verifies signed, time-limited session tokens.
// Verify is pure and safe for concurrent use.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// WithLogger attaches a logger for verification diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(s *TokenService) { s.log = log }
}

// NewTokenService creates a token service signing with secret. A non-positive
// expiry selects DefaultTokenExpiry.
func NewTokenService(secret string, expiry time.Duration, opts ...Option) *TokenService {
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	s := &TokenService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expiry returns the configured token lifetime.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Issue signs a token carrying the user's identity fields.
func (s *TokenService) Issue(user *model.AuthenticatedUser) (string, error) {
	if err := user.Validate(); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	now := s.now()
	claims := &Claims{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the identity carried by token, or nil when the signature does
// not match, the payload cannot be decoded or the token has expired. Expiry is
// exclusive: a token checked exactly at its expiry is rejected.
func (s *TokenService) Verify(tokenString string) *model.AuthenticatedUser {
	claims, err := s.parse(tokenString)
	if err != nil {
		s.log.Debug("token verification failed", zap.Error(err))
		return nil
	}
	return claims.User()
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errTokenExpired
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, errTokenNotYetValid
	}
	if err := claims.User().Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

// PeekClaims decodes token claims without checking the signature. Clients use
// it to read the session and drop expired tokens; it must never grant access.
func PeekClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}
