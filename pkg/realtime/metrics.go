package realtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 连接管理器指标
type Metrics interface {
	IncConnectAttempts()
	IncConnectJoins()
	IncConnectFailures(kind string)
	ObserveConnectLatency(d time.Duration)
	ObserveRateLimitWait(d time.Duration)
	IncDisconnects(reason string)
	SetState(s ConnectionState)
}

// NoopMetrics 不记录任何指标
type NoopMetrics struct{}

func (NoopMetrics) IncConnectAttempts()                 {}
func (NoopMetrics) IncConnectJoins()                    {}
func (NoopMetrics) IncConnectFailures(string)           {}
func (NoopMetrics) ObserveConnectLatency(time.Duration) {}
func (NoopMetrics) ObserveRateLimitWait(time.Duration)  {}
func (NoopMetrics) IncDisconnects(string)               {}
func (NoopMetrics) SetState(ConnectionState)            {}

// PrometheusMetrics Prometheus 指标实现
type PrometheusMetrics struct {
	attempts    prometheus.Counter
	joins       prometheus.Counter
	failures    *prometheus.CounterVec
	latency     prometheus.Histogram
	rateWait    prometheus.Histogram
	disconnects *prometheus.CounterVec
	state       prometheus.Gauge
}

// NewPrometheusMetrics 创建并注册指标，reg 为空时使用默认注册器
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const subsystem = "realtime"
	m := &PrometheusMetrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connect_attempts_total",
			Help: "Backend connect attempts started.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connect_joins_total",
			Help: "Connect calls that joined an attempt already in flight.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connect_failures_total",
			Help: "Failed connect attempts by error kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "connect_duration_seconds",
			Help:    "Duration of backend connect attempts.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		rateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "rate_limit_wait_seconds",
			Help:    "Time spent waiting for the connect rate limiter.",
			Buckets: prometheus.LinearBuckets(0, 0.25, 8),
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "disconnects_total",
			Help: "Sessions closed by reason.",
		}, []string{"reason"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connection_state",
			Help: "Current connection state (0 closed, 1 connecting, 2 open).",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.attempts, m.joins, m.failures, m.latency, m.rateWait, m.disconnects, m.state,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) IncConnectAttempts() { m.attempts.Inc() }
func (m *PrometheusMetrics) IncConnectJoins()    { m.joins.Inc() }

func (m *PrometheusMetrics) IncConnectFailures(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) ObserveConnectLatency(d time.Duration) {
	m.latency.Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveRateLimitWait(d time.Duration) {
	m.rateWait.Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncDisconnects(reason string) {
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) SetState(s ConnectionState) {
	m.state.Set(float64(s))
}
