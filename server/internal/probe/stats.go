package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultTimeout = 5 * time.Second

// Metric names read from the server.
const (
	metricRecords     = "livefeed_store_records"
	metricSubscribers = "livefeed_hub_subscribers"
	metricTicks       = "livefeed_generator_ticks_total"
	metricOperations  = "livefeed_generator_operations_total"
	metricEvents      = "livefeed_hub_events_broadcast_total"
	metricSlow        = "livefeed_hub_slow_disconnects_total"
)

// Stats is a point-in-time summary of a server's metrics.
type Stats struct {
	Records         float64
	Subscribers     float64
	Ticks           float64
	Operations      map[string]float64 // by op
	Events          map[string]float64 // by event type
	SlowDisconnects float64
}

// FetchStats scrapes baseURL + "/metrics" and summarizes it.
func FetchStats(ctx context.Context, client *http.Client, baseURL string) (*Stats, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	mfs, err := fetchMetrics(ctx, client, strings.TrimSuffix(baseURL, "/")+"/metrics")
	if err != nil {
		return nil, err
	}

	return &Stats{
		Records:         sumFamily(mfs[metricRecords]),
		Subscribers:     sumFamily(mfs[metricSubscribers]),
		Ticks:           sumFamily(mfs[metricTicks]),
		Operations:      byLabel(mfs[metricOperations], "op"),
		Events:          byLabel(mfs[metricEvents], "type"),
		SlowDisconnects: sumFamily(mfs[metricSlow]),
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// byLabel splits a family's values by the given label.
func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += value(m)
			}
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
