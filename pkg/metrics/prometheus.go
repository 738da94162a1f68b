package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code, HTTP method and route.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url"}}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url"},
}

var paymentEvents = &Metric{
	ID:          "payEvt",
	Name:        "payment_events_total",
	Description: "Payment lifecycle events, partitioned by event and result.",
	Type:        "counter_vec",
	Args:        []string{"event", "result"},
}

var sweepDur = &Metric{
	ID:          "sweepDur",
	Name:        "reconcile_sweep_dur_ms",
	Description: "Reconciliation sweep latencies in milliseconds.",
	Type:        "histogram",
}

var standardMetrics = []*Metric{
	reqCnt,
	reqDur,
	paymentEvents,
	sweepDur,
}

var defaultMetricPath = "/metrics"

type Logger interface {
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// RequestCounterURLLabelMappingFn controls the cardinality of the request
// counter's "url" label, e.g. mapping "/payments/status/order_123" back to
// its route template.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus contains the metrics gathered by the instance and its path
type Prometheus struct {
	reqCnt        *prometheus.CounterVec
	reqDur        *prometheus.HistogramVec
	paymentEvents *prometheus.CounterVec
	sweepDur      prometheus.Histogram
	router        *gin.Engine
	listenAddress string

	MetricsList []*Metric
	MetricsPath string

	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsPath             string
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  Logger
}

// NewPrometheus generates a new set of metrics with a certain subsystem name
func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsList: standardMetrics,
		logger:      options.Logger,
	}

	if options.MetricsPath != "" {
		p.MetricsPath = options.MetricsPath
	} else {
		p.MetricsPath = defaultMetricPath
	}

	if options.ReqCntURLLabelMappingFn != nil {
		p.ReqCntURLLabelMappingFn = options.ReqCntURLLabelMappingFn
	} else {
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			return c.Request.URL.Path
		}
	}

	p.registerMetrics(options.Subsystem)

	return p
}

// SetListenAddress for exposing metrics on a dedicated address instead of the
// gin engine being instrumented.
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
	if p.listenAddress != "" {
		p.router = gin.New()
	}
}

func (p *Prometheus) setMetricsPath(e *gin.Engine) {
	if p.listenAddress != "" {
		p.router.GET(p.MetricsPath, gin.WrapH(promhttp.Handler()))
		go func() {
			if err := p.router.Run(p.listenAddress); err != nil && p.logger != nil {
				p.logger.Errorf("metrics listener stopped: %v", err)
			}
		}()
	} else {
		e.GET(p.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (p *Prometheus) registerMetrics(subsystem string) {
	for _, metricDef := range p.MetricsList {
		metric := NewMetric(metricDef, subsystem)
		if err := prometheus.Register(metric); err != nil && p.logger != nil {
			p.logger.Errorf("%s could not be registered in Prometheus, err=%v", metricDef.Name, err)
		}
		switch metricDef {
		case reqCnt:
			p.reqCnt = metric.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = metric.(*prometheus.HistogramVec)
		case paymentEvents:
			p.paymentEvents = metric.(*prometheus.CounterVec)
		case sweepDur:
			p.sweepDur = metric.(prometheus.Histogram)
		}
		metricDef.MetricCollector = metric
	}
}

// Use adds the middleware to a gin engine.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	p.setMetricsPath(e)
}

// CountPaymentEvent increments the business event counter, e.g.
// ("order_created", "ok") or ("webhook", "signature_rejected").
func (p *Prometheus) CountPaymentEvent(event, result string) {
	if p == nil || p.paymentEvents == nil {
		return
	}
	p.paymentEvents.WithLabelValues(event, result).Inc()
}

// ObserveSweep records a reconciliation sweep duration.
func (p *Prometheus) ObserveSweep(d time.Duration) {
	if p == nil || p.sweepDur == nil {
		return
	}
	p.sweepDur.Observe(float64(d.Milliseconds()))
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.ReqCntURLLabelMappingFn(c)

		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
	}
}
