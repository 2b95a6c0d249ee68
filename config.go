package portalAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines a public type used by portalAuth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Routes   RoutesConfig
	Session  SessionConfig
	Activity ActivityConfig
	Metrics  MetricsConfig
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig defines a public type used by portalAuth APIs.
//
// LoginPath is where unauthenticated visitors are sent. Dashboards maps each role to
// its landing route; every assignable role must have one.
type RoutesConfig struct {
	LoginPath  string
	Dashboards map[Role]string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by portalAuth APIs.
type SessionConfig struct {
	// SignOutOnMissingProfile ends the provider session when an identity has no
	// readable profile row, so every tab of the browser agrees on "signed out".
	SignOutOnMissingProfile bool
	// NavigateOnSuccess calls the configured Navigator after login and signup.
	NavigateOnSuccess bool
}

/*
====================================
ACTIVITY CONFIG
====================================
*/

// ActivityConfig defines a public type used by portalAuth APIs.
//
// Activity records are best effort: they are queued, handed to the sink by a single
// goroutine and dropped when the queue is full and DropIfFull is set.
type ActivityConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Timeout bounds one sink call. Zero means no bound.
	Timeout time.Duration
}

// MetricsConfig defines a public type used by portalAuth APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Routes: RoutesConfig{
			LoginPath: "/login",
			Dashboards: map[Role]string{
				RoleStudent:   "/dashboard/student",
				RoleTeacher:   "/dashboard/teacher",
				RoleCommittee: "/dashboard/committee",
			},
		},
		Session: SessionConfig{
			SignOutOnMissingProfile: true,
			NavigateOnSuccess:       true,
		},
		Activity: ActivityConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
			Timeout:    5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the portal's stock route table and session behavior.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.Dashboards = make(map[Role]string, len(cfg.Routes.Dashboards))
	for role, path := range cfg.Routes.Dashboards {
		out.Routes.Dashboards[role] = path
	}
	return out
}

/*
====================================
CONFIG VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first structural problem found, or nil.
func (c *Config) Validate() error {
	if !isRoutePath(c.Routes.LoginPath) {
		return errors.New("Routes LoginPath must be an absolute path")
	}
	for _, role := range Roles() {
		path, ok := c.Routes.Dashboards[role]
		if !ok {
			return fmt.Errorf("Routes Dashboards missing entry for role %q", role)
		}
		if !isRoutePath(path) {
			return fmt.Errorf("Routes Dashboards[%s] must be an absolute path", role)
		}
		if path == c.Routes.LoginPath {
			return fmt.Errorf("Routes Dashboards[%s] must differ from LoginPath", role)
		}
	}
	for role := range c.Routes.Dashboards {
		if !role.Valid() {
			return fmt.Errorf("Routes Dashboards has unknown role %q", role)
		}
	}

	if c.Activity.Enabled && c.Activity.BufferSize <= 0 {
		return errors.New("Activity BufferSize must be > 0")
	}
	if c.Activity.Timeout < 0 {
		return errors.New("Activity Timeout must be >= 0")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}

func isRoutePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}

/*
====================================
CONFIG LINT
====================================
*/

// LintWarning is a non-fatal configuration smell.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult defines a public type used by portalAuth APIs.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but likely unintended.
func (c *Config) Lint() LintResult {
	var ws LintResult
	if !c.Session.SignOutOnMissingProfile {
		ws = append(ws, LintWarning{
			Code:    "missing_profile_keeps_session",
			Message: "identities without a profile row stay signed in at the provider",
		})
	}
	if !c.Activity.Enabled {
		ws = append(ws, LintWarning{
			Code:    "activity_disabled",
			Message: "login, signup and logout activity will not be recorded",
		})
	}
	if c.Activity.Enabled && !c.Activity.DropIfFull && c.Activity.Timeout == 0 {
		ws = append(ws, LintWarning{
			Code:    "activity_unbounded_backpressure",
			Message: "a slow activity sink can block session operations indefinitely",
		})
	}
	seen := make(map[string]Role, len(c.Routes.Dashboards))
	for _, role := range Roles() {
		path := c.Routes.Dashboards[role]
		if other, dup := seen[path]; dup {
			ws = append(ws, LintWarning{
				Code:    "shared_dashboard",
				Message: fmt.Sprintf("roles %s and %s land on the same dashboard %s", other, role, path),
			})
			continue
		}
		seen[path] = role
	}
	return ws
}
