package activation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/brightmoor/memberpay/internal/app/service/member"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/types"
)

type stubLedger struct {
	mu   sync.Mutex
	rows map[string]*models.PaymentAttempt
}

func newStubLedger() *stubLedger {
	return &stubLedger{rows: map[string]*models.PaymentAttempt{}}
}

func (l *stubLedger) EnsureCaptured(_ context.Context, orderID, paymentID string, amount int64, currency string, mt types.MembershipType, meta *models.PaymentAttemptMeta) (*models.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[orderID]
	if !ok {
		row = &models.PaymentAttempt{
			OrderID:        orderID,
			Amount:         amount,
			Currency:       currency,
			MembershipType: mt,
			Metadata:       datatypes.NewJSONType(meta),
		}
		l.rows[orderID] = row
	}
	if row.Status != types.PaymentStatusCaptured {
		row.Status = types.PaymentStatusCaptured
		row.PaymentID = &paymentID
	}
	cp := *row
	return &cp, nil
}

type stubDirectory struct {
	mu          sync.Mutex
	users       map[string]*models.User
	activations int32
}

func newStubDirectory(users ...*models.User) *stubDirectory {
	d := &stubDirectory{users: map[string]*models.User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *stubDirectory) FindByID(_ context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (d *stubDirectory) Activate(_ context.Context, userID string, g member.Grant) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if u.MembershipStatus == types.MembershipStatusActive {
		return false, nil
	}
	u.MembershipStatus = types.MembershipStatusActive
	u.MembershipType = g.Type
	u.MembershipAmount = g.Amount
	u.PaymentID = &g.PaymentID
	u.MembershipStartDate = &g.StartDate
	u.MembershipEndDate = &g.EndDate
	atomic.AddInt32(&d.activations, 1)
	return true, nil
}

type stubNotifier struct{ sent int32 }

func (n *stubNotifier) SendActivationMail(string, *types.MembershipSummary) error {
	atomic.AddInt32(&n.sent, 1)
	return nil
}

func pendingUser() *models.User {
	return &models.User{
		ID:               "user-1",
		Email:            "member@example.com",
		Name:             "Asha",
		MembershipStatus: types.MembershipStatusPending,
	}
}

func annualClaim() *Claim {
	return &Claim{
		OrderID:        "order_1",
		PaymentID:      "pay_1",
		Email:          "member@example.com",
		MembershipType: types.MembershipTypeAnnual,
		Amount:         50000,
		Currency:       "INR",
	}
}

func TestActivate_AnnualMembershipWindow(t *testing.T) {
	dir := newStubDirectory(pendingUser())
	notif := &stubNotifier{}
	svc := NewService(newStubLedger(), dir, notif, zap.NewNop().Sugar())

	before := time.Now()
	res, err := svc.Activate(context.Background(), annualClaim())
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.Equal(t, types.MembershipStatusActive, res.User.MembershipStatus)
	require.Equal(t, types.MembershipTypeAnnual, res.User.MembershipType)
	require.Equal(t, int64(50000), res.User.MembershipAmount)
	require.NotNil(t, res.User.MembershipEndDate)

	// end date is start + 1 year
	require.WithinDuration(t, before.AddDate(1, 0, 0), *res.User.MembershipEndDate, 5*time.Second)
	require.Equal(t, types.PaymentStatusCaptured, res.Attempt.Status)
}

func TestActivate_Idempotent(t *testing.T) {
	dir := newStubDirectory(pendingUser())
	notif := &stubNotifier{}
	svc := NewService(newStubLedger(), dir, notif, zap.NewNop().Sugar())

	first, err := svc.Activate(context.Background(), annualClaim())
	require.NoError(t, err)
	require.True(t, first.Activated)

	second, err := svc.Activate(context.Background(), annualClaim())
	require.NoError(t, err)
	require.False(t, second.Activated)

	// terminal state identical, window computed exactly once
	require.Equal(t, first.User.MembershipEndDate.Unix(), second.User.MembershipEndDate.Unix())
	require.Equal(t, int32(1), atomic.LoadInt32(&dir.activations))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&notif.sent) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestActivate_ConcurrentCallersOneWinner(t *testing.T) {
	dir := newStubDirectory(pendingUser())
	notif := &stubNotifier{}
	svc := NewService(newStubLedger(), dir, notif, zap.NewNop().Sugar())

	// webhook and reconciler racing on the same capture
	const callers = 8
	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Activate(context.Background(), annualClaim())
			require.NoError(t, err)
			if res.Activated {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins)
	require.Equal(t, int32(1), atomic.LoadInt32(&dir.activations))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&notif.sent) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestActivate_GuestFallbackEmailFromAttempt(t *testing.T) {
	ledger := newStubLedger()
	// order issued earlier with guest contact captured in metadata
	_, err := ledger.EnsureCaptured(context.Background(), "order_2", "pay_2", 50000, "INR",
		types.MembershipTypeAnnual, &models.PaymentAttemptMeta{Email: "member@example.com"})
	require.NoError(t, err)

	dir := newStubDirectory(pendingUser())
	svc := NewService(ledger, dir, &stubNotifier{}, zap.NewNop().Sugar())

	res, err := svc.Activate(context.Background(), &Claim{OrderID: "order_2", PaymentID: "pay_2"})
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.Equal(t, "user-1", res.User.ID)
}

func TestActivate_UnknownUser(t *testing.T) {
	svc := NewService(newStubLedger(), newStubDirectory(), &stubNotifier{}, zap.NewNop().Sugar())

	_, err := svc.Activate(context.Background(), annualClaim())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestActivate_NoCorrelation(t *testing.T) {
	svc := NewService(newStubLedger(), newStubDirectory(), &stubNotifier{}, zap.NewNop().Sugar())

	_, err := svc.Activate(context.Background(), &Claim{OrderID: "order_3", PaymentID: "pay_3"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestActivate_RejectsIncompleteClaim(t *testing.T) {
	svc := NewService(newStubLedger(), newStubDirectory(), &stubNotifier{}, zap.NewNop().Sugar())

	_, err := svc.Activate(context.Background(), &Claim{OrderID: "order_4"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Activate(context.Background(), nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestActivate_LifetimeWindow(t *testing.T) {
	dir := newStubDirectory(pendingUser())
	svc := NewService(newStubLedger(), dir, &stubNotifier{}, zap.NewNop().Sugar())

	claim := annualClaim()
	claim.MembershipType = types.MembershipTypeLifetime
	res, err := svc.Activate(context.Background(), claim)
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.WithinDuration(t, time.Now().AddDate(100, 0, 0), *res.User.MembershipEndDate, 5*time.Second)
}
