package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/response"
	"github.com/brightmoor/memberpay/pkg/types"
)

// AttemptScanner is the paginated ledger listing used by back-office tooling.
type AttemptScanner interface {
	Scan(ctx context.Context, req *attempt.ScanRequest) (*attempt.ScanResponse, error)
}

type ListAttemptsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type AttemptItem struct {
	ID             string               `json:"id"`
	OrderID        string               `json:"order_id"`
	PaymentID      *string              `json:"payment_id"`
	Status         types.PaymentStatus  `json:"status"`
	Amount         int64                `json:"amount"`
	Currency       string               `json:"currency"`
	MembershipType types.MembershipType `json:"membership_type"`
	ReceiptID      string               `json:"receipt_id,omitempty"`
	Email          string               `json:"email,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func toAttemptItem(m *models.PaymentAttempt) *AttemptItem {
	it := &AttemptItem{
		ID:             m.ID,
		OrderID:        m.OrderID,
		PaymentID:      m.PaymentID,
		Status:         m.Status,
		Amount:         m.Amount,
		Currency:       m.Currency,
		MembershipType: m.MembershipType,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if meta := m.Meta(); meta != nil {
		it.ReceiptID = meta.ReceiptID
		it.Email = meta.Email
	}
	return it
}

type ListAttemptsResponse struct {
	Items []*AttemptItem `json:"items"`
	Total int64          `json:"total"`
}

// @Summary      List Payment Attempts (Admin)
// @Description  Retrieves a paginated and filterable list of payment attempts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListAttemptsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  ListAttemptsResponse
// @Router       /api/v1/admin/list_payment_attempts [post]
func ApiListPaymentAttempts(scanner AttemptScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListAttemptsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := scanner.Scan(c.Request.Context(), &attempt.ScanRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			fail(c, err)
			return
		}
		items := lo.Map(res.Items, func(it *models.PaymentAttempt, _ int) *AttemptItem { return toAttemptItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListAttemptsResponse{Items: items, Total: res.Total}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, scanner AttemptScanner) {
	r.POST("/list_payment_attempts", ApiListPaymentAttempts(scanner))
}
