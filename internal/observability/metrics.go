package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PaperPerps.
type Metrics struct {
	// --- Engine ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	TradesOpened   prometheus.Counter
	TradesResolved *prometheus.CounterVec
	OpenTrades     prometheus.Gauge
	EngineSequence prometheus.Gauge

	// --- Channels & Backpressure ---
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Ingestion ---
	PriceUpdatesReceived prometheus.Counter
	PriceUpdatesRejected *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistErrors        *prometheus.CounterVec
	PersistBatchDur      prometheus.Histogram

	// --- HTTP & WebSocket ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	WSClients    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_engine_ops_rejected_total",
			Help: "Operations rejected by validation or authorization",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_engine_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		TradesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_trades_opened_total",
			Help: "Trades opened",
		}),

		TradesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_trades_resolved_total",
			Help: "Trades settled, by close reason",
		}, []string{"reason"}),

		OpenTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_open_trades",
			Help: "Currently active trades",
		}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_engine_sequence",
			Help: "Last assigned operation sequence",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_publish_drops_total",
			Help: "Outputs dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		PriceUpdatesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_price_updates_received_total",
			Help: "Price updates received from NATS",
		}),

		PriceUpdatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_price_updates_rejected_total",
			Help: "Price updates rejected (parse, unauthorized, no trade)",
		}, []string{"reason"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paper_persist_events_written_total",
			Help: "Event rows committed to Postgres",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_persist_errors_total",
			Help: "Persistence errors by kind",
		}, []string{"kind"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paper_persist_batch_duration_seconds",
			Help:    "Postgres write transaction duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: httpBuckets,
		}, []string{"route"}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paper_ws_clients",
			Help: "Connected WebSocket subscribers",
		}),
	}
}
