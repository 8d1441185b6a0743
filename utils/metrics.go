package utils

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steps_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steps_http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steps_errors_total",
			Help: "Requests answered with an error, by kind",
		},
		[]string{"kind"},
	)

	ChallengeSelections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "steps_challenge_selections_total",
		Help: "Challenges started",
	})

	ChallengeCompletions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "steps_challenge_completions_total",
		Help: "Challenges completed",
	})

	// source is submission, dashboard or sweep
	ChallengeExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steps_challenge_expirations_total",
			Help: "Challenges cleared after their deadline",
		},
		[]string{"source"},
	)

	CoinsAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "steps_coins_awarded_total",
		Help: "Coins credited by challenge completions",
	})

	WithdrawalsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steps_withdrawals_settled_total",
			Help: "Withdrawal settlements by resulting status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ReqCount,
			ReqDuration,
			ErrorCount,
			ChallengeSelections,
			ChallengeCompletions,
			ChallengeExpirations,
			CoinsAwarded,
			WithdrawalsSettled,
		)
	})
}
