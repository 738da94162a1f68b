package order

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/logctx"
	"github.com/brightmoor/memberpay/pkg/tool"
	"github.com/brightmoor/memberpay/pkg/types"
)

type CreateRequest struct {
	Amount         int64                `json:"amount"`
	MembershipType types.MembershipType `json:"membership_type"`
	// Guest checkout contact fields; a user row may not exist yet.
	Email     string `json:"email,omitempty"`
	ContactNo string `json:"contact_no,omitempty"`
	Name      string `json:"name,omitempty"`
}

type CreateResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// Gateway is the slice of the payment client the issuer needs.
type Gateway interface {
	Configured() bool
	KeyID() string
	Currency() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*razorpay.Order, error)
}

// Ledger records the freshly issued attempt.
type Ledger interface {
	Create(ctx context.Context, a *models.PaymentAttempt) error
}

// Issuer opens payment intents with the gateway and seeds the attempt ledger.
type Issuer interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
}

type Service struct {
	gateway Gateway
	ledger  Ledger
	log     *zap.SugaredLogger
}

func NewService(gateway Gateway, ledger Ledger, log *zap.SugaredLogger) Issuer {
	return &Service{gateway: gateway, ledger: ledger, log: log}
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if req == nil || req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	}
	if strings.TrimSpace(string(req.MembershipType)) == "" {
		return nil, fmt.Errorf("%w: membership type is required", apperr.ErrValidation)
	}
	if !s.gateway.Configured() {
		return nil, apperr.ErrUnavailable
	}

	receipt := tool.GenerateReceiptID()
	notes := map[string]string{"membership_type": string(req.MembershipType)}
	if req.Email != "" {
		notes["email"] = req.Email
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, req.Amount, s.gateway.Currency(), receipt, notes)
	if err != nil {
		// gateway-side failure surfaces as-is; no attempt row exists yet
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	a := &models.PaymentAttempt{
		OrderID:        gwOrder.ID,
		Amount:         gwOrder.Amount,
		Currency:       gwOrder.Currency,
		Status:         types.PaymentStatusCreated,
		MembershipType: req.MembershipType,
		Metadata: datatypes.NewJSONType(&models.PaymentAttemptMeta{
			ReceiptID: receipt,
			Email:     req.Email,
			ContactNo: req.ContactNo,
			Name:      req.Name,
		}),
	}
	if err := s.ledger.Create(ctx, a); err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("payment order issued",
		"order_id", gwOrder.ID, "amount", gwOrder.Amount, "membership_type", req.MembershipType)

	return &CreateResponse{
		OrderID:  gwOrder.ID,
		Amount:   gwOrder.Amount,
		Currency: gwOrder.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}
