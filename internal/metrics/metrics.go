// Package metrics exposes the wallet's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stellarkeeper"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	txOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "outcomes_total",
			Help:      "Terminal transaction states by operation kind.",
		},
		[]string{"kind", "state"},
	)

	txDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "execution_duration_seconds",
			Help:      "Time from build to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"kind"},
	)

	pollAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "status_polls_total",
			Help:      "Transaction status lookups issued while waiting for confirmation.",
		},
	)

	keyDecrypts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "decrypts_total",
			Help:      "Signing key decryptions.",
		},
		[]string{"success"},
	)

	challengeAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sep10",
			Name:      "authentications_total",
			Help:      "Challenge authentications by result.",
		},
		[]string{"result"},
	)

	grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Unary gRPC requests by method and status code.",
		},
		[]string{"method", "code"},
	)
)

func init() {
	Registry.MustRegister(txOutcomes, txDuration, pollAttempts, keyDecrypts, challengeAuth, grpcRequests)
}

// RecordTx records a terminal transaction state.
func RecordTx(kind, state string, elapsed time.Duration) {
	txOutcomes.WithLabelValues(kind, state).Inc()
	txDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordPoll counts one status lookup.
func RecordPoll() { pollAttempts.Inc() }

// RecordDecrypt counts one key decryption.
func RecordDecrypt(ok bool) { keyDecrypts.WithLabelValues(strconv.FormatBool(ok)).Inc() }

// RecordAuth counts one challenge authentication by result.
func RecordAuth(result string) { challengeAuth.WithLabelValues(result).Inc() }

// RecordGRPC counts one unary call.
func RecordGRPC(method, code string) { grpcRequests.WithLabelValues(method, code).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
