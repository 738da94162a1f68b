package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/app/service/order"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/types"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

func testVerifier() SignatureVerifier {
	cfg := &config.Config{}
	cfg.Razorpay.KeyID = "rzp_test_key"
	cfg.Razorpay.KeySecret = testKeySecret
	cfg.Razorpay.WebhookSecret = testWebhookSecret
	return razorpay.NewClient(cfg)
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type stubActivator struct {
	mu     sync.Mutex
	claims []*activation.Claim
	err    error
}

func (a *stubActivator) Activate(ctx context.Context, claim *activation.Claim) (*activation.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.claims = append(a.claims, claim)
	return &activation.Result{
		Activated: true,
		User:      &models.User{ID: "user_1", MembershipStatus: types.MembershipStatusActive},
	}, nil
}

type stubLedger struct {
	attempts map[string]*models.PaymentAttempt
	failed   []string
}

func (l *stubLedger) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentAttempt, error) {
	if a, ok := l.attempts[orderID]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("attempt for order %s: %w", orderID, apperr.ErrNotFound)
}

func (l *stubLedger) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentAttempt, error) {
	for _, a := range l.attempts {
		if a.PaymentID != nil && *a.PaymentID == paymentID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("attempt for payment %s: %w", paymentID, apperr.ErrNotFound)
}

func (l *stubLedger) MarkStatus(ctx context.Context, orderID string, status types.PaymentStatus, paymentID *string) error {
	if status == types.PaymentStatusFailed {
		l.failed = append(l.failed, orderID)
	}
	return nil
}

type stubMembers struct{ user *models.User }

func (m *stubMembers) FindByPaymentID(ctx context.Context, paymentID string) (*models.User, error) {
	if m.user != nil {
		return m.user, nil
	}
	return nil, apperr.ErrNotFound
}

type stubEvents struct{}

func (stubEvents) Received(ctx context.Context, source, orderID, paymentID string, data any) {}
func (stubEvents) Handled(ctx context.Context, source, orderID, paymentID string, data any, outcomeErr error) {
}

type stubIssuer struct{ err error }

func (s *stubIssuer) Create(ctx context.Context, req *order.CreateRequest) (*order.CreateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &order.CreateResponse{OrderID: "order_1", Amount: req.Amount, Currency: "INR", KeyID: "rzp_test_key"}, nil
}

func newRouter(issuer order.Issuer, act activation.Activator, ledger AttemptLedger, members MemberFinder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	RegisterPaymentRoutes(api, issuer, act, testVerifier(), ledger, members, stubEvents{}, nil, zap.NewNop().Sugar())
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiCreateOrder(t *testing.T) {
	r := newRouter(&stubIssuer{}, &stubActivator{}, &stubLedger{}, &stubMembers{})

	w := postJSON(t, r, "/api/v1/orders", map[string]any{"amount": 50000, "membership_type": "annual"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "order_1")
	assert.Contains(t, w.Body.String(), "rzp_test_key")
}

func TestApiCreateOrder_GatewayUnconfigured(t *testing.T) {
	r := newRouter(&stubIssuer{err: apperr.ErrUnavailable}, &stubActivator{}, &stubLedger{}, &stubMembers{})

	w := postJSON(t, r, "/api/v1/orders", map[string]any{"amount": 50000, "membership_type": "annual"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestApiVerifyPayment_ValidSignatureActivates(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	sig := sign(testKeySecret, []byte("order_1|pay_1"))
	w := postJSON(t, r, "/api/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
	}, map[string]string{"X-User-Id": "user_1"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, act.claims, 1)
	assert.Equal(t, "user_1", act.claims[0].UserID)
	assert.Contains(t, w.Body.String(), `"activated":true`)
}

func TestApiVerifyPayment_BadSignatureFailsClosed(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	w := postJSON(t, r, "/api/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sign(testKeySecret, []byte("order_1|pay_2")),
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, act.claims, "activation must not run on a rejected signature")
}

func TestApiVerifyPayment_MissingSignatureRejected(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	w := postJSON(t, r, "/api/v1/payments/verify", map[string]any{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, act.claims)
}

func webhookBody(t *testing.T, event, orderID, paymentID, status string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"status":   status,
					"amount":   50000,
					"currency": "INR",
					"email":    "m@example.com",
				},
			},
		},
	})
	require.NoError(t, err)
	return b
}

func postWebhook(r *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Razorpay-Signature", sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiPaymentWebhook_CapturedActivates(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	body := webhookBody(t, "payment.captured", "order_1", "pay_1", "captured")
	w := postWebhook(r, body, sign(testWebhookSecret, body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, act.claims, 1)
	assert.Equal(t, "order_1", act.claims[0].OrderID)
	assert.Equal(t, "m@example.com", act.claims[0].Email)
}

func TestApiPaymentWebhook_BadSignatureFailsClosed(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	body := webhookBody(t, "payment.captured", "order_1", "pay_1", "captured")
	w := postWebhook(r, body, sign(testWebhookSecret, append(body, 'x')))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, act.claims)
}

func TestApiPaymentWebhook_FailedEventMarksAttempt(t *testing.T) {
	ledger := &stubLedger{}
	r := newRouter(&stubIssuer{}, &stubActivator{}, ledger, &stubMembers{})

	body := webhookBody(t, "payment.failed", "order_2", "pay_9", "failed")
	w := postWebhook(r, body, sign(testWebhookSecret, body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"order_2"}, ledger.failed)
}

func TestApiPaymentWebhook_ProcessingFailureStillAcked(t *testing.T) {
	act := &stubActivator{err: fmt.Errorf("db down")}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	body := webhookBody(t, "payment.captured", "order_1", "pay_1", "captured")
	w := postWebhook(r, body, sign(testWebhookSecret, body))

	assert.Equal(t, http.StatusOK, w.Code, "redelivery buys nothing; the reconciler recovers")
}

func TestApiPaymentWebhook_UnknownEventIgnored(t *testing.T) {
	act := &stubActivator{}
	r := newRouter(&stubIssuer{}, act, &stubLedger{}, &stubMembers{})

	body := webhookBody(t, "order.paid", "order_1", "pay_1", "captured")
	w := postWebhook(r, body, sign(testWebhookSecret, body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, act.claims)
}

func TestApiPaymentStatus(t *testing.T) {
	paymentID := "pay_1"
	ledger := &stubLedger{attempts: map[string]*models.PaymentAttempt{
		"order_1": {
			OrderID:   "order_1",
			PaymentID: &paymentID,
			Status:    types.PaymentStatusCaptured,
			Amount:    50000,
			Currency:  "INR",
		},
	}}
	members := &stubMembers{user: &models.User{ID: "user_1", MembershipStatus: types.MembershipStatusActive}}
	r := newRouter(&stubIssuer{}, &stubActivator{}, ledger, members)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status/order_1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"captured"`)
	assert.Contains(t, w.Body.String(), `"membership"`)
}

func TestApiPaymentStatus_LookupByPaymentID(t *testing.T) {
	paymentID := "pay_1"
	ledger := &stubLedger{attempts: map[string]*models.PaymentAttempt{
		"order_1": {
			OrderID:   "order_1",
			PaymentID: &paymentID,
			Status:    types.PaymentStatusCaptured,
			Amount:    50000,
			Currency:  "INR",
		},
	}}
	r := newRouter(&stubIssuer{}, &stubActivator{}, ledger, &stubMembers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status/pay_1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"order_id":"order_1"`)
}

func TestApiPaymentStatus_UnknownOrder(t *testing.T) {
	r := newRouter(&stubIssuer{}, &stubActivator{}, &stubLedger{}, &stubMembers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status/order_missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
