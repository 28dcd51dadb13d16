package auth

import "time"

// Identity is a login account of the identity directory. Its ID is the
// principal id carried by sessions and stored on profiles as auth_user_id.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// MinPasswordLength mirrors the directory's password policy.
const MinPasswordLength = 6
