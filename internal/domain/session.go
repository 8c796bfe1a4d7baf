package domain

import "time"

// Session is the credential pair handed out at login.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// Expired reports whether the access token is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsZero reports whether the session carries no credential.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// Account is a registered user.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
