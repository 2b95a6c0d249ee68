package guard

import (
	"errors"
	"fmt"
	"strings"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// Policy resolves redirect decisions to concrete routes.
type Policy struct {
	LoginPath  string
	Dashboards map[portalAuth.Role]string
}

// DefaultPolicy mirrors the store's default route table.
func DefaultPolicy() Policy {
	return NewPolicy(portalAuth.DefaultConfig().Routes)
}

// NewPolicy copies a store route table into a Policy.
func NewPolicy(routes portalAuth.RoutesConfig) Policy {
	p := Policy{
		LoginPath:  routes.LoginPath,
		Dashboards: make(map[portalAuth.Role]string, len(routes.Dashboards)),
	}
	for role, path := range routes.Dashboards {
		p.Dashboards[role] = path
	}
	return p
}

// Validate checks that every assignable role has a dashboard and that all routes are
// absolute paths.
func (p Policy) Validate() error {
	if !strings.HasPrefix(p.LoginPath, "/") {
		return errors.New("guard: LoginPath must be an absolute path")
	}
	for _, role := range portalAuth.Roles() {
		path, ok := p.Dashboards[role]
		if !ok || !strings.HasPrefix(path, "/") {
			return fmt.Errorf("guard: no dashboard route for role %q", role)
		}
	}
	return nil
}

// DashboardFor returns the landing route for role.
func (p Policy) DashboardFor(role portalAuth.Role) (string, bool) {
	path, ok := p.Dashboards[role]
	return path, ok
}

// Target returns where decision d sends session s, or "" when d does not redirect.
// A user whose role has no dashboard falls back to the login route.
func (p Policy) Target(d Decision, s portalAuth.Session) string {
	switch d {
	case RedirectToLogin:
		return p.LoginPath
	case RedirectToDashboard:
		if path, ok := p.DashboardFor(s.Role()); ok {
			return path
		}
		return p.LoginPath
	default:
		return ""
	}
}
