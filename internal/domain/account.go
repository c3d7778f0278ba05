package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// InviteeAccount is created lazily when an invitee accepts a challenge.
type InviteeAccount struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuthMode string

const (
	AuthRegister AuthMode = "register"
	AuthLogin    AuthMode = "login"
)

// AuthRequest is the identity part of an accept payload.
type AuthRequest struct {
	Mode     AuthMode `json:"auth_mode"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
}

const MinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (r *AuthRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Mode == "" {
		r.Mode = AuthRegister
	}
}

func (r *AuthRequest) Validate() error {
	switch r.Mode {
	case AuthRegister:
		if r.Name == "" {
			return fmt.Errorf("%w: name is required", ErrValidation)
		}
		if err := validateEmail(r.Email); err != nil {
			return err
		}
		if r.Password == "" {
			return fmt.Errorf("%w: password is required", ErrValidation)
		}
		if len(r.Password) < MinPasswordLength {
			return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
		}
	case AuthLogin:
		if err := validateEmail(r.Email); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: auth_mode must be register or login", ErrValidation)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether s looks like an email address.
func IsValidEmail(s string) bool {
	return emailRegex.MatchString(NormalizeEmail(s))
}

// NormalizePhone keeps digits and a leading '+'.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if (i == 0 && r == '+') || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone expects at least seven digits after normalization.
func IsValidPhone(phone string) bool {
	return len(strings.TrimPrefix(NormalizePhone(phone), "+")) >= 7
}
