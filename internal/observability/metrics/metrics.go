package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success                  Outcome       = "success"
	Error                    Outcome       = "error"
	MetricRequestTimeout     time.Duration = 5 * time.Second
	MetricRequestIdleTimeout time.Duration = 10 * time.Second
)

func (O Outcome) String() string {
	return string(O)
}

func outcome(failure bool) Outcome {
	if failure {
		return Error
	}
	return Success
}

var defaultHistogramBucketsSeconds = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}

// Collectors exist from package init so recording never depends on Init;
// Init only exposes them.
var (
	once          sync.Once
	metricsRouter *chi.Mux

	solanaClientLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solana_client_latency_seconds",
			Help:    "Histogram of solana rpc client durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"method", "status"},
	)

	dbLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "db_latency_seconds",
			Help: "DB latency in seconds splitted by method and execution status",
		},
		[]string{"method", "status"},
	)

	// add a counter for the number of errors from the fail to push message into queue
	queueSendErrorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_send_error_count",
			Help: "The total number of errors when sending messages to the queue",
		},
	)

	pollerDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_duration_seconds",
			Help:    "Histogram of poller durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"type", "status"},
	)

	pollerLastSuccessGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poller_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poller tick.",
		},
		[]string{"type"},
	)

	transactionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_transactions_total",
			Help: "Settlement program transactions by operation and execution status",
		},
		[]string{"operation", "status"},
	)

	instructionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_instructions_executed_total",
			Help: "Settlement program instructions executed by operation",
		},
		[]string{"operation"},
	)

	generatedSettlementsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "generated_settlements",
			Help: "Number of settlements of the last generation run by reason",
		},
		[]string{"reason"},
	)

	generatedClaimsLamportsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "generated_claims_lamports",
			Help: "Sum of claims of the last generation run by reason",
		},
		[]string{"reason"},
	)

	epochRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epoch_run_duration_seconds",
			Help:    "Duration of reconciling one epoch in seconds.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
)

// Init initializes the metrics package.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
		registerMetrics()
	})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter = chi.NewRouter()
	metricsRouter.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	// Create a custom server with timeout settings
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	server := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  MetricRequestTimeout,
		WriteTimeout: MetricRequestTimeout,
		IdleTimeout:  MetricRequestIdleTimeout,
	}

	// Start the server in a separate goroutine
	go func() {
		log.Printf("Starting metrics server on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("Error starting metrics server on %s", metricsAddr)
		}
	}()
}

// registerMetrics registers the Prometheus metrics.
func registerMetrics() {
	prometheus.MustRegister(
		solanaClientLatency,
		dbLatency,
		queueSendErrorCounter,
		pollerDurationHistogram,
		pollerLastSuccessGauge,
		transactionsCounter,
		instructionsCounter,
		generatedSettlementsGauge,
		generatedClaimsLamportsGauge,
		epochRunDuration,
	)
}

func RecordSolanaClientLatency(d time.Duration, method string, failure bool) {
	solanaClientLatency.WithLabelValues(method, outcome(failure).String()).Observe(d.Seconds())
}

func RecordDbLatency(d time.Duration, method string, failure bool) {
	dbLatency.WithLabelValues(method, outcome(failure).String()).Observe(d.Seconds())
}

func RecordTransaction(operation string, executedIxs int, failure bool) {
	transactionsCounter.WithLabelValues(operation, outcome(failure).String()).Inc()
	if !failure {
		instructionsCounter.WithLabelValues(operation).Add(float64(executedIxs))
	}
}

func RecordGeneratedSettlements(reason string, count int, claimsLamports uint64) {
	generatedSettlementsGauge.WithLabelValues(reason).Set(float64(count))
	generatedClaimsLamportsGauge.WithLabelValues(reason).Set(float64(claimsLamports))
}

func RecordEpochRunDuration(d time.Duration, failure bool) {
	epochRunDuration.WithLabelValues(outcome(failure).String()).Observe(d.Seconds())
}

func RecordQueueSendError() {
	queueSendErrorCounter.Inc()
}
