package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/types"
)

type stubGateway struct {
	configured bool
	fail       error
	mu         sync.Mutex
	seq        int
}

func (g *stubGateway) Configured() bool { return g.configured }
func (g *stubGateway) KeyID() string    { return "rzp_test_key" }
func (g *stubGateway) Currency() string { return "INR" }

func (g *stubGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*razorpay.Order, error) {
	if g.fail != nil {
		return nil, g.fail
	}
	g.mu.Lock()
	g.seq++
	id := g.seq
	g.mu.Unlock()
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", id),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

type recordingLedger struct {
	mu   sync.Mutex
	rows []*models.PaymentAttempt
}

func (l *recordingLedger) Create(_ context.Context, a *models.PaymentAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, a)
	return nil
}

func TestCreate_IssuesOrderAndSeedsLedger(t *testing.T) {
	ledger := &recordingLedger{}
	svc := NewService(&stubGateway{configured: true}, ledger, zap.NewNop().Sugar())

	res, err := svc.Create(context.Background(), &CreateRequest{
		Amount:         50000,
		MembershipType: types.MembershipTypeAnnual,
		Email:          "guest@example.com",
		Name:           "Guest",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)
	require.Equal(t, int64(50000), res.Amount)
	require.Equal(t, "INR", res.Currency)
	require.Equal(t, "rzp_test_key", res.KeyID)

	require.Len(t, ledger.rows, 1)
	row := ledger.rows[0]
	require.Equal(t, res.OrderID, row.OrderID)
	require.Equal(t, types.PaymentStatusCreated, row.Status)
	require.Equal(t, "guest@example.com", row.FallbackEmail())
	require.NotEmpty(t, row.Meta().ReceiptID)
}

func TestCreate_ConcurrentOrderIDsUnique(t *testing.T) {
	ledger := &recordingLedger{}
	svc := NewService(&stubGateway{configured: true}, ledger, zap.NewNop().Sugar())

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(context.Background(), &CreateRequest{
				Amount:         100,
				MembershipType: types.MembershipTypeAnnual,
			})
			require.NoError(t, err)
			ids <- res.OrderID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate order id %s", id)
		seen[id] = true
	}
	require.Len(t, seen, n)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(&stubGateway{configured: true}, &recordingLedger{}, zap.NewNop().Sugar())

	_, err := svc.Create(context.Background(), &CreateRequest{Amount: 0, MembershipType: types.MembershipTypeAnnual})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(context.Background(), &CreateRequest{Amount: -5, MembershipType: types.MembershipTypeAnnual})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(context.Background(), &CreateRequest{Amount: 100, MembershipType: " "})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_GatewayUnconfigured(t *testing.T) {
	svc := NewService(&stubGateway{configured: false}, &recordingLedger{}, zap.NewNop().Sugar())

	_, err := svc.Create(context.Background(), &CreateRequest{Amount: 100, MembershipType: types.MembershipTypeAnnual})
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestCreate_GatewayFailureLeavesNoAttempt(t *testing.T) {
	ledger := &recordingLedger{}
	gwErr := errors.New("gateway down")
	svc := NewService(&stubGateway{configured: true, fail: gwErr}, ledger, zap.NewNop().Sugar())

	_, err := svc.Create(context.Background(), &CreateRequest{Amount: 100, MembershipType: types.MembershipTypeAnnual})
	require.ErrorIs(t, err, gwErr)
	require.Empty(t, ledger.rows)
}
