package models

import (
	"time"

	"github.com/brightmoor/memberpay/pkg/types"
	"gorm.io/datatypes"
)

// PaymentAttemptMeta carries opaque order context: the receipt reference and
// guest-checkout contact fields captured before any user row exists.
type PaymentAttemptMeta struct {
	ReceiptID string `json:"receipt_id,omitempty"`
	Email     string `json:"email,omitempty"`
	ContactNo string `json:"contact_no,omitempty"`
	Name      string `json:"name,omitempty"`
}

// PaymentAttempt is the durable ledger row for one payment intent. Rows are
// never deleted; they double as the audit trail and as the reconciler's
// source of truth for "already processed".
type PaymentAttempt struct {
	ID      string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID string `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex" json:"order_id"`
	// PaymentID stays nil until the gateway captures a payment for the order.
	PaymentID      *string             `gorm:"column:payment_id;type:varchar(64);index" json:"payment_id"`
	Amount         int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency       string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status         types.PaymentStatus `gorm:"column:status;type:varchar(16);not null;index:idx_status_updated,priority:1" json:"status"`
	MembershipType types.MembershipType `gorm:"column:membership_type;type:varchar(32);not null" json:"membership_type"`

	Metadata  datatypes.JSONType[*PaymentAttemptMeta] `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time                               `json:"created_at"`
	UpdatedAt time.Time                               `gorm:"index:idx_status_updated,priority:2" json:"updated_at"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempt"
}

func (a *PaymentAttempt) Meta() *PaymentAttemptMeta {
	if a == nil {
		return nil
	}
	return a.Metadata.Data()
}

// FallbackEmail returns the contact email captured at order time, used to
// resolve the member when a claim carries no user id.
func (a *PaymentAttempt) FallbackEmail() string {
	if m := a.Meta(); m != nil {
		return m.Email
	}
	return ""
}
