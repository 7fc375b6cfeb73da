// Package metrics exposes daemon counters on a local-only Prometheus
// endpoint.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayd_updates_total",
		Help: "Inbound chat updates by kind.",
	}, []string{"kind"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayd_commands_total",
		Help: "Dispatched commands by verb.",
	}, []string{"command"})

	PromptsOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayd_prompts_opened_total",
		Help: "Interactive prompts surfaced to the chat by kind.",
	}, []string{"kind"})

	PromptsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayd_prompts_resolved_total",
		Help: "Prompt resolutions by action.",
	}, []string{"action"})

	PromptsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayd_prompts_expired_total",
		Help: "Prompts removed by expiry cleanup before being answered.",
	})

	SendErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayd_send_errors_total",
		Help: "Failed outbound chat deliveries.",
	})

	HeadlessSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayd_headless_sessions",
		Help: "Currently live headless PTY sessions.",
	})
)

// Serve starts the metrics listener in the background. Failures are logged,
// not fatal; the daemon works fine without metrics.
func Serve(listen string) {
	if listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(listen, mux); err != nil {
			log.Printf("Metrics listener failed: %v", err)
		}
	}()
}
