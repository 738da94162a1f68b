package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/types"
)

// Store reads the shared users table and owns exactly one write: the
// conditional membership activation.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user with email %s", apperr.ErrNotFound, email)
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindByPaymentID(ctx context.Context, paymentID string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user with payment %s", apperr.ErrNotFound, paymentID)
		}
		return nil, err
	}
	return &u, nil
}

// Grant holds the membership fields written by a successful activation.
type Grant struct {
	Type      types.MembershipType
	Amount    int64
	PaymentID string
	StartDate time.Time
	EndDate   time.Time
}

// Activate flips the user into active membership in a single conditional
// UPDATE keyed on the current status. Exactly one of N concurrent callers
// observes activated=true; the rest match zero rows and must skip every
// activation side effect. This is the statement-level check-and-set the
// whole idempotence story rests on; never split it into a read and a write.
func (s *Store) Activate(ctx context.Context, userID string, g Grant) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND membership_status <> ?", userID, types.MembershipStatusActive).
		Updates(map[string]any{
			"membership_status":     types.MembershipStatusActive,
			"membership_type":       g.Type,
			"membership_amount":     g.Amount,
			"payment_id":            g.PaymentID,
			"membership_start_date": g.StartDate,
			"membership_end_date":   g.EndDate,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to activate membership for %s: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
