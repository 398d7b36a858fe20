package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zoravur/orderfeed/internal/live"
)

const namespace = "orderfeed"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "requests_total",
		Help:      "Total number of requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "request_duration_ms",
		Help:      "Request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// LiveCollector exports update registry counters. Each scrape reads one
// consistent Stats value.
type LiveCollector struct {
	stats func() live.Stats

	keys, active                                      *prometheus.Desc
	subscribed, published, delivered, dropped, reaped *prometheus.Desc
}

func NewLiveCollector(stats func() live.Stats) *LiveCollector {
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "live", name), help, nil, nil)
	}
	return &LiveCollector{
		stats:      stats,
		keys:       d("orders", "Orders with at least one subscription."),
		active:     d("subscriptions", "Subscriptions in the registry, including ones awaiting reaping."),
		subscribed: d("subscribed_total", "Subscriptions created."),
		published:  d("published_total", "Snapshots published to orders with subscribers."),
		delivered:  d("delivered_total", "Snapshots queued to subscribers."),
		dropped:    d("dropped_total", "Snapshots lost to full or closed subscriber queues."),
		reaped:     d("reaped_total", "Subscriptions removed by the reaper."),
	}
}

func (c *LiveCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.keys, c.active, c.subscribed, c.published, c.delivered, c.dropped, c.reaped} {
		ch <- d
	}
}

func (c *LiveCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(s.Keys))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.subscribed, prometheus.CounterValue, float64(s.Subscribed))
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.Delivered))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.reaped, prometheus.CounterValue, float64(s.Reaped))
}
