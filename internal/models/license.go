package models

import "time"

const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// License is the single persisted entity: one record per anonymous user,
// holding the entitlement state last reported by Stripe and the key the
// client presents as proof of purchase.
type License struct {
	UserID         string     `json:"user_id"`
	Key            string     `json:"license_key"`
	CustomerID     string     `json:"customer_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
