package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/metrics/export/internaldefs"
)

// Source is satisfied by *portalAuth.Store. A source that also implements
// internaldefs.StoreCounter gets a live-stores gauge.
type Source interface {
	MetricsSnapshot() portalAuth.MetricsSnapshot
	ActivityDropped() uint64
}

// Exporter renders store metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// NewExporter creates an exporter reading from source on every scrape.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. With metrics disabled and nothing dropped
// the output is empty.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.ActivityDropped()
	live, perDevice := p.source.(internaldefs.StoreCounter)
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && !perDevice {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}
	writeCounter(&b, "portal_activity_dropped_total", "Activity records dropped under dispatcher backpressure.", dropped)
	if perDevice {
		writeGauge(&b, internaldefs.LiveStoresName, internaldefs.LiveStoresHelp, int64(live.Len()))
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeGauge(b *strings.Builder, name, help string, value int64) {
	writeHeader(b, name, help, "gauge")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	b.WriteByte('\n')

	// Snapshots carry bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
