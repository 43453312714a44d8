package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/txsvc/stdlib/v2"
)

const (
	PrometheusHost        = "prometheus_host"
	PrometheusMetricsPath = "prometheus_metrics_path"
)

func StartPrometheusListener() {
	// prometheus endpoint setup
	promHost := stdlib.GetString(PrometheusHost, "0.0.0.0:2112")
	promMetricsPath := stdlib.GetString(PrometheusMetricsPath, "/metrics")

	// start the metrics listener
	go func() {
		log.Debug().Str("host", promHost).Str("path", promMetricsPath).Msg("start metrics")

		http.Handle(promMetricsPath, promhttp.Handler())
		http.ListenAndServe(promHost, nil)
	}()
}
