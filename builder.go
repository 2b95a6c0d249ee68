package portalAuth

import (
	"log/slog"
)

// Builder defines a public type used by portalAuth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	provider     IdentityProvider
	logger       *slog.Logger
	navigator    Navigator
	activitySink ActivitySink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]. Nothing is validated until [Builder.Build].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig stores a deep copy of cfg; later changes to the caller's map are not seen.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithNavigator sets the component notified of post-login landing routes.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithActivitySink describes the withactivitysink operation and its observable behavior.
//
// WithActivitySink overrides where activity records go. Without it the store forwards
// them to the provider's LogActivity.
func (b *Builder) WithActivitySink(sink ActivitySink) *Builder {
	b.activitySink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration and wires the activity dispatcher. A Builder can
// be used once; a second call returns [ErrBuilderUsed]. Build performs no I/O.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	if b.provider == nil {
		return nil, ErrNoProvider
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "portalauth.store"))

	sink := b.activitySink
	if sink == nil {
		sink = providerActivitySink{provider: b.provider}
	}

	store := newStore(cfg, b.provider, logger)
	store.navigator = b.navigator
	store.metrics = NewMetrics(cfg.Metrics)
	store.activity = newActivityDispatcher(cfg.Activity, sink, logger)

	b.built = true

	return store, nil
}
