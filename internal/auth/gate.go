package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
)

// RejectionKind classifies a failed authorization.
type RejectionKind int

const (
	// Unauthorized means no usable token was presented.
	Unauthorized RejectionKind = iota + 1
	// Forbidden means the token is valid but the role is not allowed.
	Forbidden
)

func (k RejectionKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Rejection explains why a request was not authorized.
type Rejection struct {
	Kind   RejectionKind
	Reason error
}

// Decision is the per-request outcome of Authorize: exactly one of User or
// Rejection is set.
type Decision struct {
	User      *model.AuthenticatedUser
	Rejection *Rejection
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Rejection == nil && d.User != nil
}

func reject(kind RejectionKind, reason error) Decision {
	return Decision{Rejection: &Rejection{Kind: kind, Reason: reason}}
}

// Verifier recovers the identity carried by a token.
type Verifier interface {
	Verify(token string) *model.AuthenticatedUser
}

// Gate authorizes requests carrying bearer tokens.
type Gate struct {
	tokens Verifier
	log    *zap.Logger
}

// NewGate creates a gate verifying tokens with tokens.
func NewGate(tokens Verifier, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{tokens: tokens, log: log}
}

// DefaultRoles is the allow-list used when Authorize is given none.
var DefaultRoles = []model.Role{model.RoleUser}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Authorize verifies the request's bearer token and checks the user's role
// against allowed (DefaultRoles when empty).
func (g *Gate) Authorize(r *http.Request, allowed ...model.Role) Decision {
	token, ok := ExtractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		return reject(Unauthorized, apperrors.ErrUnauthorized)
	}

	user := g.tokens.Verify(token)
	if user == nil {
		return reject(Unauthorized, apperrors.ErrInvalidToken)
	}

	if len(allowed) == 0 {
		allowed = DefaultRoles
	}
	if !model.NewRoleSet(allowed...).Contains(user.Role) {
		g.log.Debug("role not allowed",
			zap.String("username", user.Username),
			zap.String("role", string(user.Role)),
		)
		return reject(Forbidden, apperrors.ErrForbidden)
	}

	return Decision{User: user}
}
