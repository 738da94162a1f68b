package models

import (
	"time"

	"github.com/brightmoor/memberpay/pkg/types"
)

// User mirrors the membership fields of the shared users table. Account
// lifecycle (registration, sessions) is owned elsewhere; this service only
// reads identity columns and flips the membership block via a conditional
// update.
type User struct {
	ID    string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Email string `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Name  string `gorm:"column:name;type:varchar(255)" json:"name"`

	MembershipStatus    types.MembershipStatus `gorm:"column:membership_status;type:varchar(16);not null;default:'pending'" json:"membership_status"`
	MembershipType      types.MembershipType   `gorm:"column:membership_type;type:varchar(32)" json:"membership_type"`
	MembershipAmount    int64                  `gorm:"column:membership_amount;type:bigint" json:"membership_amount"`
	PaymentID           *string                `gorm:"column:payment_id;type:varchar(64);index" json:"payment_id"`
	MembershipStartDate *time.Time             `gorm:"column:membership_start_date" json:"membership_start_date"`
	MembershipEndDate   *time.Time             `gorm:"column:membership_end_date" json:"membership_end_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) MembershipActive() bool {
	return u != nil &&
		u.MembershipStatus == types.MembershipStatusActive &&
		u.MembershipEndDate != nil &&
		u.MembershipEndDate.After(time.Now())
}

func (u *User) Summary() *types.MembershipSummary {
	if u == nil {
		return nil
	}
	s := &types.MembershipSummary{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Status:    u.MembershipStatus,
		Type:      u.MembershipType,
		Amount:    u.MembershipAmount,
		StartDate: u.MembershipStartDate,
		EndDate:   u.MembershipEndDate,
	}
	if u.PaymentID != nil {
		s.PaymentID = *u.PaymentID
	}
	return s
}
