package otel

import (
	"context"
	"errors"
	"fmt"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is an exported constant or variable used by the OTel exporter.
	ErrNilMeter = errors.New("otel: nil meter")
	// ErrNilSource is an exported constant or variable used by the OTel exporter.
	ErrNilSource = errors.New("otel: nil metrics source")
)

// Source is satisfied by *portalAuth.Store. A source that also implements
// internaldefs.StoreCounter gets a live-stores gauge.
type Source interface {
	MetricsSnapshot() portalAuth.MetricsSnapshot
	ActivityDropped() uint64
}

type observedCounter struct {
	id         portalAuth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      portalAuth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the instrument registration; Close unregisters it.
type Exporter struct {
	source          Source
	registration    metric.Registration
	counters        []observedCounter
	histograms      []observedHistogram
	activityDropped metric.Int64ObservableCounter
	liveStores      metric.Int64ObservableGauge
}

// NewExporter registers instruments on meter that observe source.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+2)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := 0; i < len(internaldefs.HistogramBoundSuffix); i++ {
			name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	activityDropped, err := meter.Int64ObservableCounter(
		"portal_activity_dropped_total",
		metric.WithDescription("Activity records dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create activity dropped counter: %w", err)
	}
	exporter.activityDropped = activityDropped
	observables = append(observables, activityDropped)

	if _, ok := source.(internaldefs.StoreCounter); ok {
		liveStores, err := meter.Int64ObservableGauge(internaldefs.LiveStoresName, metric.WithDescription(internaldefs.LiveStoresHelp))
		if err != nil {
			return nil, fmt.Errorf("create live stores gauge: %w", err)
		}
		exporter.liveStores = liveStores
		observables = append(observables, liveStores)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		for _, h := range exporter.histograms {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
			for i := 0; i < len(cumulative); i++ {
				observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
			}
			observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		observer.ObserveInt64(exporter.activityDropped, int64(exporter.source.ActivityDropped()))
		if sc, ok := exporter.source.(internaldefs.StoreCounter); ok {
			observer.ObserveInt64(exporter.liveStores, int64(sc.Len()))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
