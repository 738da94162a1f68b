package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/pkg/logctx"
	"github.com/brightmoor/memberpay/pkg/tool"
)

// Event sources recorded in the ledger.
const (
	SourceVerify     = "verify"
	SourceWebhook    = "webhook"
	SourceReconciler = "reconciler"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment event log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.PaymentEventLog) {
	go func() {
		if entry == nil {
			return
		}
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if entry.EventTime.IsZero() {
			entry.EventTime = time.Now()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save payment event log: %v", err)
		}
	}()
}

// Received logs an inbound delivery before processing starts.
func (s *Service) Received(ctx context.Context, source, orderID, paymentID string, data any) {
	b, _ := json.Marshal(data)
	s.Save(ctx, &models.PaymentEventLog{
		Source:    source,
		OrderID:   orderID,
		PaymentID: paymentID,
		TraceID:   traceID(ctx),
		Data:      datatypes.JSON(b),
		Status:    models.PaymentEventLogStatusReceived,
	})
}

// Handled logs the processing outcome; outcomeErr nil means success.
func (s *Service) Handled(ctx context.Context, source, orderID, paymentID string, data any, outcomeErr error) {
	b, _ := json.Marshal(data)
	status := models.PaymentEventLogStatusHandled
	resMap := map[string]any{}
	if outcomeErr != nil {
		status = models.PaymentEventLogStatusHandleFailed
		resMap["error"] = outcomeErr.Error()
	}
	resBytes, _ := json.Marshal(resMap)
	res := datatypes.JSON(resBytes)
	s.Save(ctx, &models.PaymentEventLog{
		Source:    source,
		OrderID:   orderID,
		PaymentID: paymentID,
		TraceID:   traceID(ctx),
		Data:      datatypes.JSON(b),
		Result:    &res,
		Status:    status,
	})
}

func traceID(ctx context.Context) string {
	if v, ok := ctx.Value("traceID").(string); ok {
		return v
	}
	return ""
}
