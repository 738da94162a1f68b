package order

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
)

func newService(gw *razorpay.Client, ledger *attempt.Store, log *zap.SugaredLogger) Issuer {
	return NewService(gw, ledger, log)
}

var Module = fx.Options(
	fx.Provide(newService),
)
