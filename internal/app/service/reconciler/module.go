package reconciler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/metrics"
)

var Module = fx.Options(
	fx.Provide(newScheduler),
	fx.Invoke(Run),
)

func newScheduler(cfg *config.Config, attempts *attempt.Store, gateway *razorpay.Client, activator activation.Activator, prom *metrics.Prometheus, log *zap.SugaredLogger) *Scheduler {
	return NewScheduler(cfg, attempts, gateway, activator, prom, log)
}
