// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account. Users sign in either with email/password
// (PasswordHash set) or through Google (GoogleID set); both paths produce the
// same internal xid-based ID, which is also the profile key.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	GoogleID     string    `json:"-"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
