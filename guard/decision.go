package guard

import portalAuth "github.com/MrEthical07/portalAuth"

// Decision is the outcome of evaluating one protected page against a session.
type Decision uint8

const (
	// Unevaluated is the state of a page that has not observed a snapshot yet.
	Unevaluated Decision = iota
	// Wait renders a loading placeholder; the session is still being resolved.
	Wait
	// Allow renders the protected content.
	Allow
	// RedirectToLogin sends an unauthenticated visitor to the login route.
	RedirectToLogin
	// RedirectToDashboard sends a user with the wrong role to their own dashboard.
	RedirectToDashboard
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToDashboard:
		return "redirect_to_dashboard"
	default:
		return "unevaluated"
	}
}

// Redirect reports whether d leaves the page.
func (d Decision) Redirect() bool {
	return d == RedirectToLogin || d == RedirectToDashboard
}

// Evaluate decides what a page requiring role required does for session s.
// An empty required role admits any authenticated user.
//
//	IsLoading                      -> Wait
//	no user                        -> RedirectToLogin
//	required set and role differs  -> RedirectToDashboard
//	otherwise                      -> Allow
func Evaluate(s portalAuth.Session, required portalAuth.Role) Decision {
	switch {
	case s.IsLoading:
		return Wait
	case s.User == nil:
		return RedirectToLogin
	case required != "" && s.User.Role != required:
		return RedirectToDashboard
	default:
		return Allow
	}
}
