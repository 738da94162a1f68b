package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/app/service/eventlog"
	"github.com/brightmoor/memberpay/internal/app/service/order"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/logctx"
	"github.com/brightmoor/memberpay/pkg/metrics"
	"github.com/brightmoor/memberpay/pkg/response"
	"github.com/brightmoor/memberpay/pkg/types"
)

// SignatureVerifier checks gateway-issued HMAC signatures. Verification never
// touches the network.
type SignatureVerifier interface {
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	VerifyWebhookSignature(body []byte, signature string) error
}

// AttemptLedger is the slice of the attempt store the HTTP layer reads.
type AttemptLedger interface {
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentAttempt, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentAttempt, error)
	MarkStatus(ctx context.Context, orderID string, status types.PaymentStatus, paymentID *string) error
}

// MemberFinder resolves the member a captured payment activated.
type MemberFinder interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*models.User, error)
}

// EventRecorder journals inbound payment events and their outcomes.
type EventRecorder interface {
	Received(ctx context.Context, source, orderID, paymentID string, data any)
	Handled(ctx context.Context, source, orderID, paymentID string, data any, outcomeErr error)
}

// statusAndCode maps service errors onto an HTTP status and envelope code.
func statusAndCode(err error) (int, response.APIResponseCode) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, response.APIResponseCodeBadRequest
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusBadRequest, response.APIResponseCodeAuth
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, response.APIResponseCodeNotFound
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable, response.APIResponseCodeUnavailable
	default:
		return http.StatusInternalServerError, response.APIResponseCodeError
	}
}

func fail(c *gin.Context, err error) {
	status, code := statusAndCode(err)
	c.JSON(status, response.ErrorT[any](code, err.Error()))
}

// @Summary      Create Order
// @Description  Opens a payment intent with the gateway and records the attempt.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body order.CreateRequest true "Order creation request"
// @Success      200  {object}  order.CreateResponse
// @Router       /api/v1/orders [post]
func ApiCreateOrder(issuer order.Issuer, prom *metrics.Prometheus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := issuer.Create(c.Request.Context(), &req)
		if err != nil {
			prom.CountPaymentEvent("order_created", "error")
			fail(c, err)
			return
		}
		prom.CountPaymentEvent("order_created", "ok")
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature"`
	// Guest checkout correlation and plan hints; the attempt row is the
	// fallback for whatever is omitted.
	Email            string               `json:"email,omitempty"`
	MembershipType   types.MembershipType `json:"membership_type,omitempty"`
	MembershipAmount int64                `json:"membership_amount,omitempty"`
}

type verifyPaymentResponse struct {
	Activated  bool                     `json:"activated"`
	Membership *types.MembershipSummary `json:"membership,omitempty"`
}

// @Summary      Verify Payment
// @Description  Verifies a checkout payment claim and activates the membership.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body verifyPaymentRequest true "Signed payment claim from checkout"
// @Success      200  {object}  verifyPaymentResponse
// @Router       /api/v1/payments/verify [post]
func ApiVerifyPayment(verifier SignatureVerifier, activator activation.Activator, events EventRecorder, prom *metrics.Prometheus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		ctx := c.Request.Context()
		events.Received(ctx, eventlog.SourceVerify, req.RazorpayOrderID, req.RazorpayPaymentID, &req)

		// Signature first. Nothing is read or written before the claim is
		// proven to come from the gateway.
		if err := verifier.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature); err != nil {
			prom.CountPaymentEvent("verify", "signature_rejected")
			events.Handled(ctx, eventlog.SourceVerify, req.RazorpayOrderID, req.RazorpayPaymentID, &req, err)
			fail(c, err)
			return
		}

		userID := c.GetString("user_id")
		if userID == "" {
			userID = c.GetHeader("X-User-Id")
		}
		res, err := activator.Activate(ctx, &activation.Claim{
			OrderID:        req.RazorpayOrderID,
			PaymentID:      req.RazorpayPaymentID,
			UserID:         userID,
			Email:          req.Email,
			MembershipType: req.MembershipType,
			Amount:         req.MembershipAmount,
		})
		events.Handled(ctx, eventlog.SourceVerify, req.RazorpayOrderID, req.RazorpayPaymentID, &req, err)
		if err != nil {
			prom.CountPaymentEvent("verify", "error")
			fail(c, err)
			return
		}

		prom.CountPaymentEvent("verify", "ok")
		out := &verifyPaymentResponse{Activated: res.Activated}
		if res.User != nil {
			out.Membership = res.User.Summary()
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// webhookEnvelope is the gateway's notification shape; only the fields the
// handler acts on are decoded.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Status   string `json:"status"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Email    string `json:"email"`
				Contact  string `json:"contact"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// @Summary      Payment Webhook
// @Description  Handles gateway payment notifications. The body is authenticated with the X-Razorpay-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.ackResponse
// @Router       /api/v1/payments/webhook [post]
func ApiPaymentWebhook(deps WebhookDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		if err := deps.Verifier.VerifyWebhookSignature(body, c.GetHeader("X-Razorpay-Signature")); err != nil {
			deps.Prom.CountPaymentEvent("webhook", "signature_rejected")
			logctx.FromCtx(c, deps.Log).Warnw("webhook signature rejected", "err", err)
			fail(c, err)
			return
		}

		var evt webhookEnvelope
		if err := json.Unmarshal(body, &evt); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "malformed payload"))
			return
		}

		ctx := c.Request.Context()
		entity := evt.Payload.Payment.Entity
		events := deps.Events
		events.Received(ctx, eventlog.SourceWebhook, entity.OrderID, entity.ID, &evt)

		var handleErr error
		switch evt.Event {
		case "payment.captured":
			_, handleErr = deps.Activator.Activate(ctx, &activation.Claim{
				OrderID:   entity.OrderID,
				PaymentID: entity.ID,
				Email:     entity.Email,
				Amount:    entity.Amount,
				Currency:  entity.Currency,
				ContactNo: entity.Contact,
			})
		case "payment.failed":
			handleErr = deps.Ledger.MarkStatus(ctx, entity.OrderID, types.PaymentStatusFailed, nil)
		default:
			logctx.FromCtx(c, deps.Log).Debugw("ignoring webhook event", "event", evt.Event)
		}
		events.Handled(ctx, eventlog.SourceWebhook, entity.OrderID, entity.ID, &evt, handleErr)

		// Processing failures are still acknowledged: the attempt stays
		// non-terminal and the reconciler picks it up, so asking the
		// gateway to redeliver buys nothing.
		if handleErr != nil {
			deps.Prom.CountPaymentEvent("webhook", "error")
			logctx.FromCtx(c, deps.Log).Errorw("webhook handling failed",
				"event", evt.Event, "order_id", entity.OrderID, "err", handleErr)
		} else {
			deps.Prom.CountPaymentEvent("webhook", "ok")
		}
		c.JSON(http.StatusOK, response.OKT(ackResponse{Received: true}))
	}
}

type ackResponse struct {
	Received bool `json:"received"`
}

type paymentStatusResponse struct {
	OrderID        string                   `json:"order_id"`
	PaymentID      *string                  `json:"payment_id"`
	Status         types.PaymentStatus      `json:"status"`
	Amount         int64                    `json:"amount"`
	Currency       string                   `json:"currency"`
	MembershipType types.MembershipType     `json:"membership_type"`
	ContactEmail   string                   `json:"contact_email,omitempty"`
	Membership     *types.MembershipSummary `json:"membership,omitempty"`
}

// @Summary      Payment Status
// @Description  Returns the current state of a payment attempt and, once captured, the membership it granted.
// @Tags         Payment
// @Produce      json
// @Param        orderId path string true "Gateway order id"
// @Success      200  {object}  paymentStatusResponse
// @Router       /api/v1/payments/status/{orderId} [get]
func ApiPaymentStatus(ledger AttemptLedger, members MemberFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("orderId")
		if id == "" {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing order id"))
			return
		}
		ctx := c.Request.Context()
		// Gateway ids are self-describing; a checkout client may only hold
		// the payment id.
		var a *models.PaymentAttempt
		var err error
		if strings.HasPrefix(id, "pay_") {
			a, err = ledger.GetByPaymentID(ctx, id)
		} else {
			a, err = ledger.GetByOrderID(ctx, id)
		}
		if err != nil {
			fail(c, err)
			return
		}

		out := &paymentStatusResponse{
			OrderID:        a.OrderID,
			PaymentID:      a.PaymentID,
			Status:         a.Status,
			Amount:         a.Amount,
			Currency:       a.Currency,
			MembershipType: a.MembershipType,
			ContactEmail:   a.FallbackEmail(),
		}
		if a.PaymentID != nil {
			if u, err := members.FindByPaymentID(ctx, *a.PaymentID); err == nil {
				out.Membership = u.Summary()
			}
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// WebhookDeps bundles what the webhook handler touches.
type WebhookDeps struct {
	Verifier  SignatureVerifier
	Activator activation.Activator
	Ledger    AttemptLedger
	Events    EventRecorder
	Prom      *metrics.Prometheus
	Log       *zap.SugaredLogger
}

func RegisterPaymentRoutes(r gin.IRouter, issuer order.Issuer, activator activation.Activator, verifier SignatureVerifier, ledger AttemptLedger, members MemberFinder, events EventRecorder, prom *metrics.Prometheus, log *zap.SugaredLogger) {
	r.POST("/orders", ApiCreateOrder(issuer, prom))
	r.POST("/payments/verify", ApiVerifyPayment(verifier, activator, events, prom))
	r.POST("/payments/webhook", ApiPaymentWebhook(WebhookDeps{
		Verifier: verifier, Activator: activator, Ledger: ledger, Events: events, Prom: prom, Log: log,
	}))
	r.GET("/payments/status/:orderId", ApiPaymentStatus(ledger, members))
}
