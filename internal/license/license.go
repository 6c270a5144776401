package license

import (
	"time"
)

// Action names recorded in the append-only usage log. The log is write-only
// from the engine's perspective; it exists as an audit trail for operators.
const (
	ActionCreate     = "CREATE"
	ActionAssign     = "ASSIGN"
	ActionActivate   = "ACTIVATE"
	ActionDeactivate = "DEACTIVATE"
	ActionDelete     = "DELETE"
	ActionRenew      = "RENEW"
)

// SecondsPerDay converts whole-day durations into expiration arithmetic.
// Expirations have no sub-day granularity.
const SecondsPerDay = 86400

// License is the persisted record for one issued key.
//
// ID, Key and IssuedAt are immutable once the record is created. A nil
// ExpiresAt means the license never expires. A nil OwnerID means the license
// is unassigned and may still be redeemed.
type License struct {
	ID        int64    `json:"id"`
	Key       string   `json:"key"`
	Product   string   `json:"product"`
	OwnerID   *string  `json:"owner_id,omitempty"`
	OwnerName *string  `json:"owner_name,omitempty"`
	Email     *string  `json:"email,omitempty"`
	IssuedAt  int64    `json:"issued_at"`
	ExpiresAt *int64   `json:"expires_at,omitempty"`
	IsActive  bool     `json:"is_active"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata is the structured bag attached to every license. The engine only
// touches RenewalHistory; the remaining fields are caller-owned tags.
type Metadata struct {
	CreatedBy      string            `json:"created_by,omitempty"`
	BatchID        string            `json:"batch_id,omitempty"`
	RenewalHistory []RenewalEvent    `json:"renewal_history,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// RenewalEvent records one renewal in the append-only history. Nil
// expiration pointers encode lifetime on either side of the renewal.
type RenewalEvent struct {
	RenewedBy          string `json:"renewed_by"`
	RenewedAt          int64  `json:"renewed_at"`
	PreviousExpiration *int64 `json:"previous_expiration"`
	NewExpiration      *int64 `json:"new_expiration"`
	Duration           string `json:"duration"`
}

// Status is the validation snapshot exposed at the API boundary. All
// presentation concerns (product display names, date formatting) belong to
// the caller.
type Status struct {
	Key       string  `json:"key"`
	Product   string  `json:"product"`
	IsValid   bool    `json:"is_valid"`
	IsActive  bool    `json:"is_active"`
	IsExpired bool    `json:"is_expired"`
	OwnerID   *string `json:"owner_id"`
	OwnerName *string `json:"owner_name"`
	Email     *string `json:"email"`
	IssuedAt  int64   `json:"issued_at"`
	ExpiresAt *int64  `json:"expires_at"`
}

// Assigned reports whether the license has been redeemed or assigned.
func (l *License) Assigned() bool {
	return l.OwnerID != nil
}

// Expired reports whether the expiration, if any, has passed at the given
// time. Lifetime licenses never expire.
func (l *License) Expired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.Unix() > *l.ExpiresAt
}

// Valid reports whether the license is active and not expired. The result
// is recomputed from the record on every call, never cached.
func (l *License) Valid(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}

// StatusAt builds the outward-facing validation snapshot for the given time.
func (l *License) StatusAt(now time.Time) Status {
	expired := l.Expired(now)
	return Status{
		Key:       l.Key,
		Product:   l.Product,
		IsValid:   l.IsActive && !expired,
		IsActive:  l.IsActive,
		IsExpired: expired,
		OwnerID:   l.OwnerID,
		OwnerName: l.OwnerName,
		Email:     l.Email,
		IssuedAt:  l.IssuedAt,
		ExpiresAt: l.ExpiresAt,
	}
}
