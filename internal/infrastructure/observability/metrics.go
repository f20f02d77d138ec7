package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	ActiveWebSockets prometheus.Gauge
	WSFramesTotal    *prometheus.CounterVec
	ProxyErrorsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apx_dev_proxy",
			Name:      "requests_total",
			Help:      "Total HTTP requests relayed, by target and status code",
		}, []string{"target", "code"}),
		ActiveWebSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "apx_dev_proxy",
			Name:      "active_websockets",
			Help:      "Number of open WebSocket sessions",
		}),
		WSFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apx_dev_proxy",
			Name:      "ws_frames_total",
			Help:      "Total WebSocket frames relayed",
		}, []string{"direction"}),
		ProxyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apx_dev_proxy",
			Name:      "proxy_errors_total",
			Help:      "Total proxy errors by stage",
		}, []string{"stage"}),
	}
	r.MustRegister(m.RequestsTotal, m.ActiveWebSockets, m.WSFramesTotal, m.ProxyErrorsTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
