package portalAuth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/portalAuth/internal/audit"
)

// Activity is one best-effort activity-log record.
type Activity = internalaudit.Activity

// ActivitySink receives activity records from the store's dispatcher goroutine.
type ActivitySink = internalaudit.Sink

// ActivitySinkFunc adapts a function to [ActivitySink].
type ActivitySinkFunc = internalaudit.SinkFunc

// NoOpActivitySink drops every record.
type NoOpActivitySink = internalaudit.NoOpSink

// ChannelActivitySink forwards records into a buffered channel.
type ChannelActivitySink = internalaudit.ChannelSink

// JSONActivitySink writes one JSON object per line.
type JSONActivitySink = internalaudit.JSONWriterSink

// NewChannelActivitySink describes the newchannelactivitysink operation and its observable behavior.
func NewChannelActivitySink(buffer int) *ChannelActivitySink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONActivitySink describes the newjsonactivitysink operation and its observable behavior.
func NewJSONActivitySink(w io.Writer) *JSONActivitySink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	// ActivityLogin is an exported constant or variable used by the session store.
	ActivityLogin = "login"
	// ActivitySignup is an exported constant or variable used by the session store.
	ActivitySignup = "signup"
	// ActivityLogout is an exported constant or variable used by the session store.
	ActivityLogout = "logout"
	// ActivityProfileUpdate is an exported constant or variable used by the session store.
	ActivityProfileUpdate = "profile_update"
)

// providerActivitySink routes records to the identity provider's activity log.
type providerActivitySink struct {
	provider IdentityProvider
}

func (s providerActivitySink) Record(ctx context.Context, activity Activity) error {
	return s.provider.LogActivity(ctx, activity)
}

func newActivityDispatcher(cfg ActivityConfig, sink ActivitySink, logger *slog.Logger) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
		Timeout:    cfg.Timeout,
		OnError: func(a Activity, err error) {
			logger.Debug("activity record not stored",
				slog.String("action", a.Action),
				slog.String("user_id", a.UserID),
				slog.Any("error", err),
			)
		},
	}, sink)
}

func (s *Store) emitActivity(ctx context.Context, action, userID string, opErr error, details map[string]string) {
	if s.activity == nil {
		return
	}
	a := Activity{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    userID,
		Success:   opErr == nil,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Details:   details,
	}
	if reason, ok := ReasonOf(opErr); ok {
		a.Error = reason.String()
	} else if opErr != nil {
		a.Error = ReasonProviderUnavailable.String()
	}
	s.activity.Emit(ctx, a)
}
