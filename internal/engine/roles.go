package engine

import "github.com/google/uuid"

// Roles identifies the privileged callers. The administrator may
// reassign the price authority; only the price authority may resolve
// trades.
type Roles struct {
	Administrator  uuid.UUID
	PriceAuthority uuid.UUID
}

// IsAdministrator reports whether caller holds the administrator role.
func (r Roles) IsAdministrator(caller uuid.UUID) bool {
	return caller == r.Administrator
}

// IsPriceAuthority reports whether caller holds the price authority role.
func (r Roles) IsPriceAuthority(caller uuid.UUID) bool {
	return caller == r.PriceAuthority
}
