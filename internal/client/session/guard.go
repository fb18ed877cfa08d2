package session

import "focusflow/internal/model"

// GuardDecision tells a protected view what to do.
type GuardDecision int

const (
	// GuardPending means hydration has not finished; render nothing yet.
	GuardPending GuardDecision = iota
	GuardAllow
	GuardRedirectLogin
	GuardRedirectHome
)

func (d GuardDecision) String() string {
	switch d {
	case GuardAllow:
		return "allow"
	case GuardRedirectLogin:
		return "redirect-login"
	case GuardRedirectHome:
		return "redirect-home"
	default:
		return "pending"
	}
}

// Guard decides access to a view restricted to roles (user when none are
// given). Signed-out clients go to login; signed-in clients lacking the role
// are sent away rather than shown an error.
func (m *Manager) Guard(roles ...model.Role) GuardDecision {
	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case !m.hydrated:
		return GuardPending
	case m.state.Status != Authenticated:
		return GuardRedirectLogin
	case !model.NewRoleSet(roles...).Contains(m.state.User.Role):
		return GuardRedirectHome
	default:
		return GuardAllow
	}
}
