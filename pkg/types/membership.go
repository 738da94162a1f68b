package types

import "time"

type MembershipStatus string

const (
	MembershipStatusPending   MembershipStatus = "pending"
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusExpired   MembershipStatus = "expired"
	MembershipStatusCancelled MembershipStatus = "cancelled"
)

type MembershipType string

const (
	MembershipTypeAnnual   MembershipType = "annual"
	MembershipTypeLifetime MembershipType = "lifetime"
)

// lifetimeYears caps "indefinite" memberships at a window far beyond any
// realistic member lifetime.
const lifetimeYears = 100

// MembershipWindow computes the validity window granted by an activation
// starting at from. Annual memberships run one year; every other type is
// effectively indefinite.
func MembershipWindow(t MembershipType, from time.Time) (start, end time.Time) {
	start = from
	if t == MembershipTypeAnnual {
		return start, start.AddDate(1, 0, 0)
	}
	return start, start.AddDate(lifetimeYears, 0, 0)
}

type MembershipSummary struct {
	UserID    string           `json:"user_id"`
	Email     string           `json:"email"`
	Name      string           `json:"name,omitempty"`
	Status    MembershipStatus `json:"membership_status"`
	Type      MembershipType   `json:"membership_type"`
	Amount    int64            `json:"membership_amount"`
	PaymentID string           `json:"payment_id,omitempty"`
	StartDate *time.Time       `json:"membership_start_date,omitempty"`
	EndDate   *time.Time       `json:"membership_end_date,omitempty"`
}
