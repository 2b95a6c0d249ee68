package guard

import (
	"sync"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// Mount tracks the decision for one mounted protected page.
//
// Transitions: Unevaluated -> Wait -> {Allow, RedirectToLogin, RedirectToDashboard}.
// A redirect is terminal: the page is gone and later snapshots are ignored. Allow
// returns to Wait whenever the session starts loading again.
type Mount struct {
	required portalAuth.Role

	mu       sync.Mutex
	decision Decision
}

// NewMount creates a mount for a page requiring role (empty means any signed-in user).
func NewMount(required portalAuth.Role) *Mount {
	return &Mount{required: required}
}

// Required returns the role the page demands.
func (m *Mount) Required() portalAuth.Role {
	return m.required
}

// Decision returns the current decision.
func (m *Mount) Decision() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

// Observe feeds a snapshot into the state machine and reports the resulting decision
// and whether it changed.
func (m *Mount) Observe(s portalAuth.Session) (Decision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.decision.Redirect() {
		return m.decision, false
	}

	next := Evaluate(s, m.required)
	if m.decision == Unevaluated && next != Wait {
		// The first evaluation always passes through Wait; collapse it when the
		// session is already resolved.
		m.decision = Wait
	}
	if next == m.decision {
		return next, false
	}
	m.decision = next
	return next, true
}

// SessionSource is the subset of *portalAuth.Store a mount needs.
type SessionSource interface {
	Snapshot() portalAuth.Session
	Subscribe(fn func(portalAuth.Session)) (cancel func())
}

// Bind evaluates the current snapshot, then re-evaluates on every store change and
// calls onChange for each decision change. Binding stops by itself after a redirect;
// the returned cancel stops it earlier.
func (m *Mount) Bind(source SessionSource, onChange func(Decision, portalAuth.Session)) (cancel func()) {
	var (
		once     sync.Once
		unsubMu  sync.Mutex
		unsub    func()
		finished bool
	)
	stop := func() {
		once.Do(func() {
			unsubMu.Lock()
			finished = true
			u := unsub
			unsubMu.Unlock()
			if u != nil {
				u()
			}
		})
	}

	handle := func(s portalAuth.Session) {
		d, changed := m.Observe(s)
		if changed && onChange != nil {
			onChange(d, s)
		}
		if d.Redirect() {
			stop()
		}
	}

	u := source.Subscribe(handle)
	unsubMu.Lock()
	unsub = u
	done := finished
	unsubMu.Unlock()
	if done {
		u()
		return stop
	}

	handle(source.Snapshot())
	return stop
}
