package activation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/member"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/logctx"
	"github.com/brightmoor/memberpay/pkg/types"
)

// Claim is a payment capture that has already passed signature verification.
// Three independent callers produce claims (the client verify endpoint, the
// gateway webhook, and the reconciliation sweep) and any of them may deliver
// the same claim more than once.
type Claim struct {
	OrderID        string
	PaymentID      string
	UserID         string
	Email          string
	MembershipType types.MembershipType
	Amount         int64
	Currency       string
	ContactNo      string
	Name           string
}

type Result struct {
	// Activated is true only for the single call that won the membership
	// check-and-set. Duplicate and late arrivals converge with false.
	Activated bool
	User      *models.User
	Attempt   *models.PaymentAttempt
}

// AttemptLedger is the slice of the attempt store the activator needs.
type AttemptLedger interface {
	EnsureCaptured(ctx context.Context, orderID, paymentID string, amount int64, currency string, membershipType types.MembershipType, meta *models.PaymentAttemptMeta) (*models.PaymentAttempt, error)
}

// MemberDirectory resolves users and applies the conditional activation.
type MemberDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Activate(ctx context.Context, userID string, g member.Grant) (bool, error)
}

// Notifier delivers the activation mail. Failures are logged only.
type Notifier interface {
	SendActivationMail(to string, summary *types.MembershipSummary) error
}

// Activator converges verified payment claims into exactly one membership
// activation per successful payment.
type Activator interface {
	Activate(ctx context.Context, claim *Claim) (*Result, error)
}

type Service struct {
	ledger   AttemptLedger
	members  MemberDirectory
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewService(ledger AttemptLedger, members MemberDirectory, notifier Notifier, log *zap.SugaredLogger) Activator {
	return &Service{ledger: ledger, members: members, notifier: notifier, log: log}
}

// Activate drives a verified claim through the ledger and the user row.
// Correctness does not depend on arrival order or caller identity: the
// attempt capture and the membership flip are both single conditional writes
// at the data layer, so N calls, sequential or concurrent, net to one
// effect.
func (s *Service) Activate(ctx context.Context, claim *Claim) (*Result, error) {
	if claim == nil || claim.OrderID == "" || claim.PaymentID == "" {
		return nil, fmt.Errorf("%w: order id and payment id are required", apperr.ErrValidation)
	}
	log := logctx.FromCtx(ctx, s.log)

	// The webhook can outrun order issuance, so the ledger write is a
	// find-or-create. Already-captured attempts make this a no-op.
	attempt, err := s.ledger.EnsureCaptured(ctx, claim.OrderID, claim.PaymentID,
		claim.Amount, claim.Currency, claim.MembershipType, &models.PaymentAttemptMeta{
			Email:     claim.Email,
			ContactNo: claim.ContactNo,
			Name:      claim.Name,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to capture attempt: %w", err)
	}

	user, err := s.resolveUser(ctx, claim, attempt)
	if err != nil {
		return nil, err
	}

	membershipType := claim.MembershipType
	if membershipType == "" {
		membershipType = attempt.MembershipType
	}
	amount := claim.Amount
	if amount == 0 {
		amount = attempt.Amount
	}

	start, end := types.MembershipWindow(membershipType, time.Now())
	activated, err := s.members.Activate(ctx, user.ID, member.Grant{
		Type:      membershipType,
		Amount:    amount,
		PaymentID: claim.PaymentID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, err
	}

	// Re-read so duplicate callers also see the converged membership state.
	if fresh, ferr := s.members.FindByID(ctx, user.ID); ferr == nil {
		user = fresh
	}

	if activated {
		log.Infow("membership activated",
			"order_id", claim.OrderID, "payment_id", claim.PaymentID,
			"user_id", user.ID, "membership_type", membershipType)
		s.dispatchNotification(ctx, user)
	} else {
		log.Infow("membership already active, skipped",
			"order_id", claim.OrderID, "payment_id", claim.PaymentID, "user_id", user.ID)
	}

	return &Result{Activated: activated, User: user, Attempt: attempt}, nil
}

// resolveUser correlates the claim to a user: explicit user id first, then
// the claim email, then the contact email captured at order time.
func (s *Service) resolveUser(ctx context.Context, claim *Claim, attempt *models.PaymentAttempt) (*models.User, error) {
	if claim.UserID != "" {
		return s.members.FindByID(ctx, claim.UserID)
	}
	email := claim.Email
	if email == "" {
		email = attempt.FallbackEmail()
	}
	if email == "" {
		return nil, fmt.Errorf("%w: claim for order %s carries no user correlation", apperr.ErrNotFound, claim.OrderID)
	}
	return s.members.FindByEmail(ctx, email)
}

// dispatchNotification fires the confirmation mail on a detached goroutine.
// The response path never waits on it and its errors stop here.
func (s *Service) dispatchNotification(ctx context.Context, user *models.User) {
	summary := user.Summary()
	email := user.Email
	go func() {
		if err := s.notifier.SendActivationMail(email, summary); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("activation mail failed", "user_id", summary.UserID, "err", err)
		}
	}()
}
