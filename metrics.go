package portalAuth

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by portalAuth APIs.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the session store.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the session store.
	MetricLoginFailure
	// MetricLoginRateLimited is an exported constant or variable used by the session store.
	MetricLoginRateLimited
	// MetricLoginRoleMismatch counts logins whose stored role differed from the role the
	// visitor selected on the form.
	MetricLoginRoleMismatch
	// MetricSignupSuccess is an exported constant or variable used by the session store.
	MetricSignupSuccess
	// MetricSignupFailure is an exported constant or variable used by the session store.
	MetricSignupFailure
	// MetricSignupDuplicate is an exported constant or variable used by the session store.
	MetricSignupDuplicate
	// MetricLogout is an exported constant or variable used by the session store.
	MetricLogout
	// MetricLogoutProviderFailure is an exported constant or variable used by the session store.
	MetricLogoutProviderFailure
	// MetricProfileUpdateSuccess is an exported constant or variable used by the session store.
	MetricProfileUpdateSuccess
	// MetricProfileUpdateFailure is an exported constant or variable used by the session store.
	MetricProfileUpdateFailure
	// MetricProfileFetchFailure is an exported constant or variable used by the session store.
	MetricProfileFetchFailure
	// MetricSessionRestored is an exported constant or variable used by the session store.
	MetricSessionRestored
	// MetricRemoteSignOut counts sign-outs pushed by the provider while a user was present.
	MetricRemoteSignOut
	// MetricStaleProfileDiscarded is an exported constant or variable used by the session store.
	MetricStaleProfileDiscarded
	// MetricOperationRejected counts calls refused with ErrOperationInProgress.
	MetricOperationRejected
	// MetricSignInLatency is an exported constant or variable used by the session store.
	MetricSignInLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by portalAuth APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by portalAuth APIs.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// A disabled Metrics value accepts every call and records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc is lock-free and safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe describes the observe operation and its observable behavior.
//
// Only latency metrics accept observations; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricSignInLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot returns empty maps when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSignInLatency].buckets[i])
		}
		s.Histograms[MetricSignInLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
