package domain

import "time"

// Roles soportados para cuentas.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Mobile       string     `json:"mobile,omitempty"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"-"`
	AuthProvider string     `json:"auth_provider,omitempty"`
	AuthSubject  string     `json:"-"`
	Role         string     `json:"role"`
	Verified     bool       `json:"verified"`
	Active       bool       `json:"active"`
	OTPCode      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasChallenge indica si la cuenta tiene un desafío OTP pendiente.
func (u User) HasChallenge() bool {
	return u.OTPCode != "" && u.OTPExpiresAt != nil
}
