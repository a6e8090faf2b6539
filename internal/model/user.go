// Package model defines domain entities for the application.
package model

import "time"

// User is an account identity. Users are created on their first OTP
// verification and only their name and wallet address change afterwards.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Subscription is the billing record that gates pro base models.
type Subscription struct {
	UserID    string    `json:"userId"`
	Tier      string    `json:"tier"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsActive reports whether the subscription is valid at the given time.
func (s *Subscription) IsActive(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}
