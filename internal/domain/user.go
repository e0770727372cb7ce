package domain

import "time"

// User represents an account owned by the external user store. This service
// reads it and writes exactly one field: the linked assistant account reference.
type User struct {
	ID               int64
	Email            string
	Name             string
	AssistantLinkRef string
	LinkedAt         time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Entitlement status values.
const (
	EntitlementActive   = "active"
	EntitlementInactive = "inactive"
)

// Entitlement records whether a user may hold an active device token.
// Mutated only through the billing webhook.
type Entitlement struct {
	UserID    int64
	Key       string
	Status    string
	UpdatedAt time.Time
}

// Active reports whether the entitlement permits token issuance.
func (e Entitlement) Active() bool {
	return e.Status == EntitlementActive
}
