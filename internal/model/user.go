package model

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is the stored form of an account.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:255;not null"`
	UsernameKey  string    `json:"-" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role         Role      `json:"role" gorm:"size:32;not null;default:'user'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeUsername returns the lookup key for a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// BeforeSave keeps UsernameKey in sync and rejects unknown roles.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Username = strings.TrimSpace(u.Username)
	u.UsernameKey = NormalizeUsername(u.Username)
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// Record returns the public identity of the stored user.
func (u *User) Record() *AuthenticatedUser {
	return &AuthenticatedUser{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
	}
}

var (
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidUserRecord is returned when an identity record fails structural validation.
	ErrInvalidUserRecord = errors.New("invalid user record")
)

// AuthenticatedUser is the identity carried by tokens and client snapshots.
type AuthenticatedUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Validate checks the record has a positive id, a username and a known role.
func (u *AuthenticatedUser) Validate() error {
	if u == nil || u.ID == 0 || strings.TrimSpace(u.Username) == "" || !u.Role.Valid() {
		return ErrInvalidUserRecord
	}
	return nil
}
