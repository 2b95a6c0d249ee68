package portalAuth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeAccount struct {
	id       string
	password string
}

type fakeSubscriber struct {
	ctx context.Context
	ch  chan SessionEvent
}

// fakeProvider is an in-memory identity provider. Gates, when set, block the matching
// call until the test closes or sends on them.
type fakeProvider struct {
	mu sync.Mutex

	accounts map[string]fakeAccount
	profiles map[string]UserProfile
	session  *Identity
	nextID   int

	signInErr    error
	signUpErr    error
	signOutErr   error
	getErr       error
	fetchErr     map[string]error
	updateErr    error
	eventsErr    error
	activityErr  error
	signInGate   chan struct{}
	fetchGate    chan struct{}
	updateGate   chan struct{}
	subscribers  []fakeSubscriber
	activities   []Activity
	signInCalls  int
	signOutCalls int
	fetchCalls   int
	updateCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts: map[string]fakeAccount{},
		profiles: map[string]UserProfile{},
		fetchErr: map[string]error{},
	}
}

// addUser registers an account and its profile row and returns the profile.
func (p *fakeProvider) addUser(email, password, name string, role Role) UserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := "u" + strconv.Itoa(p.nextID)
	p.accounts[email] = fakeAccount{id: id, password: password}
	profile := UserProfile{
		ID:          id,
		Email:       email,
		DisplayName: name,
		Role:        role,
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
		UpdatedAt:   time.Unix(1700000000, 0).UTC(),
	}
	p.profiles[id] = profile
	return profile
}

func (p *fakeProvider) setSession(id *Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = id
}

func (p *fakeProvider) emit(ev SessionEvent) {
	p.mu.Lock()
	subs := append([]fakeSubscriber(nil), p.subscribers...)
	p.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.ctx.Done():
		}
	}
}

func (p *fakeProvider) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

func (p *fakeProvider) calls() (signIn, signOut, fetch, update int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signInCalls, p.signOutCalls, p.fetchCalls, p.updateCalls
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (Identity, error) {
	p.mu.Lock()
	p.signInCalls++
	gate := p.signInGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signInErr != nil {
		return Identity{}, p.signInErr
	}
	acct, ok := p.accounts[email]
	if !ok || acct.password != password {
		return Identity{}, ErrInvalidCredentials
	}
	id := Identity{UserID: acct.id, Email: email}
	p.session = &id
	return id, nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, password string, attrs SignUpAttributes) (Identity, error) {
	p.mu.Lock()
	if p.signUpErr != nil {
		p.mu.Unlock()
		return Identity{}, p.signUpErr
	}
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return Identity{}, ErrDuplicateAccount
	}
	p.mu.Unlock()

	profile := p.addUser(email, password, attrs.DisplayName, attrs.Role)

	p.mu.Lock()
	defer p.mu.Unlock()
	id := Identity{UserID: profile.ID, Email: email}
	p.session = &id
	return id, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.session = nil
	return nil
}

func (p *fakeProvider) GetSession(context.Context) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	if p.session == nil {
		return nil, nil
	}
	id := *p.session
	return &id, nil
}

func (p *fakeProvider) SessionEvents(ctx context.Context) (<-chan SessionEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eventsErr != nil {
		return nil, p.eventsErr
	}
	ch := make(chan SessionEvent)
	p.subscribers = append(p.subscribers, fakeSubscriber{ctx: ctx, ch: ch})
	return ch, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, userID string) (UserProfile, error) {
	p.mu.Lock()
	p.fetchCalls++
	gate := p.fetchGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return UserProfile{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fetchErr[userID]; err != nil {
		return UserProfile{}, err
	}
	profile, ok := p.profiles[userID]
	if !ok {
		return UserProfile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (p *fakeProvider) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	p.mu.Lock()
	p.updateCalls++
	gate := p.updateGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	profile, ok := p.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.profiles[userID] = update.ApplyTo(profile)
	return nil
}

func (p *fakeProvider) LogActivity(_ context.Context, activity Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activityErr != nil {
		return p.activityErr
	}
	p.activities = append(p.activities, activity)
	return nil
}

func (p *fakeProvider) recordedActivities() []Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Activity(nil), p.activities...)
}

var errProviderDown = errors.New("dial tcp 10.0.0.1:443: connection refused")

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

type storeHarness struct {
	store    *Store
	provider *fakeProvider
	nav      *recordingNavigator
}

func newStoreTest(t *testing.T, mutate func(*Config)) (*storeHarness, func()) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newFakeProvider()
	nav := &recordingNavigator{}
	store, err := New().
		WithConfig(cfg).
		WithProvider(provider).
		WithNavigator(nav).
		Build()
	if err != nil {
		t.Fatalf("build store: %v", err)
	}

	return &storeHarness{store: store, provider: provider, nav: nav}, store.Close
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
