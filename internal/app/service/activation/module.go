package activation

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/app/service/mailer"
	"github.com/brightmoor/memberpay/internal/app/service/member"
)

func newService(ledger *attempt.Store, members *member.Store, notifier *mailer.Service, log *zap.SugaredLogger) Activator {
	return NewService(ledger, members, notifier, log)
}

// Module exposes the activator via Fx.
var Module = fx.Options(
	fx.Provide(newService),
)
