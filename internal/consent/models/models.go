package models

import (
	"time"

	id "fintrail/pkg/domain"
)

// Consent is a user's current decision for one processing purpose. There is
// at most one row per user and purpose; withdrawing keeps the row.
type Consent struct {
	ID          id.ConsentID      `json:"id"`
	UserID      id.UserID         `json:"user_id"`
	Purpose     id.ConsentPurpose `json:"consent_type"`
	Granted     bool              `json:"granted"`
	GrantedAt   *time.Time        `json:"granted_at,omitempty"`
	WithdrawnAt *time.Time        `json:"withdrawn_at,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
}

// Grant marks the consent as given at now.
func (c *Consent) Grant(now time.Time, ip string) {
	c.Granted = true
	c.GrantedAt = &now
	c.WithdrawnAt = nil
	c.IPAddress = ip
}

// Withdraw marks the consent as withdrawn at now.
func (c *Consent) Withdraw(now time.Time) {
	c.Granted = false
	c.WithdrawnAt = &now
}
