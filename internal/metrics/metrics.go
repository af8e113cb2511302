// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the battle service collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "battles",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	lobbyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "lobby",
			Name:      "transitions_total",
			Help:      "Lobby status transitions applied.",
		},
		[]string{"to"},
	)

	matchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "match",
			Name:      "transitions_total",
			Help:      "Match status transitions applied.",
		},
		[]string{"to"},
	)

	matchesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "match",
			Name:      "created_total",
			Help:      "Matches created, by format and origin (matchmaking or rematch).",
		},
		[]string{"format", "origin"},
	)

	giftAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "gifts",
			Name:      "amount_sek_total",
			Help:      "Gift value recorded during live matches.",
		},
		[]string{"team"},
	)

	rewardsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "rewards",
			Name:      "paid_sek_total",
			Help:      "Reward value credited to player wallets.",
		},
	)

	rewardFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "rewards",
			Name:      "credit_failures_total",
			Help:      "Wallet credits that failed and await retry.",
		},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "battles",
			Subsystem: "sweeper",
			Name:      "affected_total",
			Help:      "Rows touched by sweeper jobs.",
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		lobbyTransitions,
		matchTransitions,
		matchesCreated,
		giftAmount,
		rewardsPaid,
		rewardFailures,
		sweepRuns,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records a finished request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func LobbyTransition(to string) { lobbyTransitions.WithLabelValues(to).Inc() }

func MatchTransition(to string) { matchTransitions.WithLabelValues(to).Inc() }

func MatchCreated(format, origin string) { matchesCreated.WithLabelValues(format, origin).Inc() }

func GiftRecorded(team string, amount int64) { giftAmount.WithLabelValues(team).Add(float64(amount)) }

func RewardPaid(amount int64) { rewardsPaid.Add(float64(amount)) }

func RewardCreditFailed() { rewardFailures.Inc() }

// SweepAffected records how many rows a sweeper job changed.
func SweepAffected(job string, n int) {
	if n > 0 {
		sweepRuns.WithLabelValues(job).Add(float64(n))
	}
}
