package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentEventLogStatus string

const (
	PaymentEventLogStatusReceived     PaymentEventLogStatus = "received"
	PaymentEventLogStatusHandled      PaymentEventLogStatus = "handled"
	PaymentEventLogStatusHandleFailed PaymentEventLogStatus = "handle_failed"
)

// PaymentEventLog records every verify call and webhook delivery, before and
// after processing. It is written asynchronously and never read on the
// request path.
type PaymentEventLog struct {
	ID        string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Source    string                `gorm:"column:source;type:varchar(32);not null" json:"source"`
	OrderID   string                `gorm:"column:order_id;type:varchar(64);index" json:"order_id"`
	PaymentID string                `gorm:"column:payment_id;type:varchar(64)" json:"payment_id"`
	TraceID   string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	EventTime time.Time             `gorm:"column:event_time" json:"event_time"`
	Data      datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result    *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status    PaymentEventLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (PaymentEventLog) TableName() string { return "payment_event_log" }
