package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 订单指标
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockmesh_order_total",
			Help: "Total number of orders placed",
		},
		[]string{"broker", "pair", "side", "status"},
	)

	orderFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockmesh_order_failure_total",
			Help: "Total number of failed orders by error kind",
		},
		[]string{"broker", "pair", "side", "kind"},
	)

	orderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockmesh_order_duration_seconds",
			Help:    "Order placement duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"broker"},
	)

	// 行情指标
	tickerPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockmesh_ticker_last_price",
			Help: "Last traded price per pair",
		},
		[]string{"broker", "pair"},
	)

	apiRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockmesh_api_request_total",
			Help: "Total number of broker API requests",
		},
		[]string{"broker", "endpoint", "status"},
	)

	// 限流指标
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockmesh_rate_limit_hits_total",
			Help: "Total number of requests delayed by the rate limiter",
		},
		[]string{"broker", "endpoint"},
	)

	rateLimitWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockmesh_rate_limit_wait_seconds_total",
			Help: "Cumulative time spent waiting on the rate limiter",
		},
		[]string{"broker", "endpoint"},
	)

	// 资金指标
	balanceFree = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockmesh_balance_free",
			Help: "Free balance per currency",
		},
		[]string{"broker", "currency"},
	)

	balanceUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockmesh_balance_used",
			Help: "Reserved balance per currency",
		},
		[]string{"broker", "currency"},
	)

	// WebSocket 指标
	websocketConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockmesh_websocket_connected",
			Help: "WebSocket connection status (0=disconnected, 1=connected)",
		},
		[]string{"broker"},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockmesh_goroutine_count",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockmesh_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	cpuUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockmesh_cpu_usage_percent",
			Help: "Process host CPU usage percentage",
		},
	)

	memoryUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockmesh_memory_usage_percent",
			Help: "Host memory usage percentage",
		},
	)
)

// RecordOrder 记录下单结果
func RecordOrder(broker, pair, side, status string, duration time.Duration) {
	orderTotal.WithLabelValues(broker, pair, side, status).Inc()
	orderDuration.WithLabelValues(broker).Observe(duration.Seconds())
}

// RecordOrderFailure 记录下单失败及错误类别
func RecordOrderFailure(broker, pair, side, kind string) {
	orderFailureTotal.WithLabelValues(broker, pair, side, kind).Inc()
}

// RecordTickerPrice 记录最新价格
func RecordTickerPrice(broker, pair string, price float64) {
	tickerPrice.WithLabelValues(broker, pair).Set(price)
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(broker, endpoint, status string) {
	apiRequestTotal.WithLabelValues(broker, endpoint, status).Inc()
}

// RecordRateLimitWait 记录限流等待
func RecordRateLimitWait(broker, endpoint string, waited time.Duration) {
	if waited <= 0 {
		return
	}
	rateLimitHits.WithLabelValues(broker, endpoint).Inc()
	rateLimitWaitSeconds.WithLabelValues(broker, endpoint).Add(waited.Seconds())
}

// RecordBalance 记录资金快照
func RecordBalance(broker, currency string, free, used float64) {
	balanceFree.WithLabelValues(broker, currency).Set(free)
	balanceUsed.WithLabelValues(broker, currency).Set(used)
}

// SetWebSocketConnected 记录 WebSocket 连接状态
func SetWebSocketConnected(broker string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	websocketConnected.WithLabelValues(broker).Set(v)
}
