package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Fetch and extraction metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_fetch_duration_seconds",
			Help:    "Time spent loading and extracting a product page",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)

	PriceSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_price_source_total",
			Help: "Extraction strategy that supplied the price",
		},
		[]string{"source"},
	)

	BotWallsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_bot_walls_detected_total",
			Help: "Pages that looked like a bot wall or captcha",
		},
	)

	// Refresh cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_cycles_total",
			Help: "Refresh cycles by trigger and final status",
		},
		[]string{"trigger", "status"},
	)

	ItemChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_item_checks_total",
			Help: "Per-item refresh outcomes",
		},
		[]string{"outcome"},
	)

	PriceDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_price_drops_total",
			Help: "Price drops detected",
		},
	)

	MonitoredItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_monitored_items",
			Help: "Items currently tracked",
		},
	)
)
