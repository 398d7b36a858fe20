package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zoravur/orderfeed/internal/live"
)

func TestLiveCollector(t *testing.T) {
	c := NewLiveCollector(func() live.Stats {
		return live.Stats{Keys: 2, Active: 3, Published: 10, Dropped: 1}
	})

	expected := `
# HELP orderfeed_live_subscriptions Subscriptions in the registry, including ones awaiting reaping.
# TYPE orderfeed_live_subscriptions gauge
orderfeed_live_subscriptions 3
# HELP orderfeed_live_dropped_total Snapshots lost to full or closed subscriber queues.
# TYPE orderfeed_live_dropped_total counter
orderfeed_live_dropped_total 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"orderfeed_live_subscriptions", "orderfeed_live_dropped_total"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(c); n != 7 {
		t.Fatalf("want 7 series, got %d", n)
	}
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "http")
	m.Requests.WithLabelValues("orders", "200").Inc()
	m.LatencyMS.WithLabelValues("orders").Observe(12)

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("orders", "200")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 2 {
		t.Fatalf("gathered %d series, err %v", n, err)
	}
}
