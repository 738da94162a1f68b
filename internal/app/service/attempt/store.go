package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/tool"
	"github.com/brightmoor/memberpay/pkg/types"
)

// Store is the durable payment attempt ledger. All status writes go through
// single guarded UPDATE statements so that concurrent callers (verify,
// webhook, reconciler) cannot interleave a read-check-write race, and
// out-of-order deliveries cannot regress a captured attempt.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

// Create persists a fresh attempt at order issuance. A duplicate orderId is
// an error: the column carries a unique index and order ids come from the
// gateway, so a conflict means a retried create, not a new intent.
func (s *Store) Create(ctx context.Context, a *models.PaymentAttempt) error {
	if a.ID == "" {
		a.ID = tool.GenerateUUIDV7()
	}
	if a.Status == "" {
		a.Status = types.PaymentStatusCreated
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

func (s *Store) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, paymentID)
		}
		return nil, err
	}
	return &a, nil
}

// MarkStatus applies a monotonic status transition as one guarded UPDATE.
// Writes that do not outrank the stored status (or, for refunded, do not
// come from captured) match zero rows and are silently ignored.
func (s *Store) MarkStatus(ctx context.Context, orderID string, status types.PaymentStatus, paymentID *string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid payment status: %s", status)
	}
	prev := types.PredecessorsOf(status)
	if len(prev) == 0 {
		return nil
	}
	updates := map[string]any{"status": status}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	res := s.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("order_id = ? AND status IN ?", orderID, prev).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to mark attempt %s %s: %w", orderID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Debugw("attempt status write ignored", "order_id", orderID, "status", status)
	}
	return nil
}

// EnsureCaptured is the activator's step-2 primitive: find-or-create the
// attempt by orderId, then conditionally set status=captured and the payment
// id. A webhook can land before any order record exists, so the insert is
// an on-conflict-do-nothing with status already captured. Re-applying with
// the same paymentId is a no-op.
func (s *Store) EnsureCaptured(ctx context.Context, orderID, paymentID string, amount int64, currency string, membershipType types.MembershipType, meta *models.PaymentAttemptMeta) (*models.PaymentAttempt, error) {
	if meta == nil {
		meta = &models.PaymentAttemptMeta{}
	}
	row := &models.PaymentAttempt{
		ID:             tool.GenerateUUIDV7(),
		OrderID:        orderID,
		PaymentID:      &paymentID,
		Amount:         amount,
		Currency:       currency,
		Status:         types.PaymentStatusCaptured,
		MembershipType: membershipType,
		Metadata:       datatypes.NewJSONType(meta),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure attempt row: %w", err)
	}

	if err := s.MarkStatus(ctx, orderID, types.PaymentStatusCaptured, &paymentID); err != nil {
		return nil, err
	}
	return s.GetByOrderID(ctx, orderID)
}

// ListStale returns up to limit attempts without a terminal status whose last
// write predates cutoff. These are the candidates whose webhook may have been
// lost; the reconciler re-checks them against the gateway.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.PaymentAttempt, error) {
	var rows []*models.PaymentAttempt
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []types.PaymentStatus{types.PaymentStatusCreated, types.PaymentStatusPending}, cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale attempts: %w", err)
	}
	return rows, nil
}

// Scan implements paginated admin listing with filters over the ledger.
func (s *Store) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.PaymentAttempt{})
	if len(req.Filters) > 0 {
		exprs := make([]clause.Expression, 0, len(req.Filters))
		for _, f := range req.Filters {
			exprs = append(exprs, f)
		}
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{clause.And(exprs...)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}

	var rows []*models.PaymentAttempt
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return &ScanResponse{Items: rows, Total: total}, nil
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.PaymentAttempt `json:"items"`
	Total int64                    `json:"total"`
}
