package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/brightmoor/memberpay/internal/app/api/server"
	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/app/service/eventlog"
	"github.com/brightmoor/memberpay/internal/app/service/mailer"
	"github.com/brightmoor/memberpay/internal/app/service/member"
	"github.com/brightmoor/memberpay/internal/app/service/order"
	"github.com/brightmoor/memberpay/internal/app/service/reconciler"
	"github.com/brightmoor/memberpay/internal/platform/db"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	razorpay.Module,
	attempt.Module,
	member.Module,
	eventlog.Module,
	mailer.Module,
	activation.Module,
	order.Module,
	reconciler.Module,
	server.Module,
)
