package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/api/handlers"
	mw "github.com/brightmoor/memberpay/internal/app/api/middleware"
	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/app/service/attempt"
	"github.com/brightmoor/memberpay/internal/app/service/eventlog"
	"github.com/brightmoor/memberpay/internal/app/service/member"
	"github.com/brightmoor/memberpay/internal/app/service/order"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	cfgpkg "github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request tracing only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func newPrometheus(log *zap.SugaredLogger) *metrics.Prometheus {
	return metrics.NewPrometheus(metrics.NewPrometheusOptions{
		ReqCntURLLabelMappingFn: func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		},
		Logger: log,
	})
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	prom *metrics.Prometheus,
	issuer order.Issuer,
	activator activation.Activator,
	gateway *razorpay.Client,
	attempts *attempt.Store,
	members *member.Store,
	events *eventlog.Service,
) {
	if cfg != nil && cfg.MetricsAddr != "" {
		prom.SetListenAddress(cfg.MetricsAddr)
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	prom.Use(r)

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)

	// Payment APIs. Identity arrives from the upstream gateway header.
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.IdentityMiddleware(), mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterPaymentRoutes(apiV1, issuer, activator, gateway, attempts, members, events, prom, log)

	// Back-office listing
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), attempts)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Provide(newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
