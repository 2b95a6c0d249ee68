package portalAuth

import (
	"context"
	"testing"
	"time"
)

func TestRemoteSignOutClearsSession(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	loginAs(t, h, "s1@campus.edu", RoleStudent)

	// Another tab of the same browser logged out.
	h.provider.emit(SessionEvent{Kind: EventSignedOut, At: time.Now()})

	waitFor(t, "remote sign-out", func() bool {
		return !h.store.Snapshot().Authenticated()
	})
	waitFor(t, "remote sign-out metric", func() bool {
		return h.store.MetricsSnapshot().Counters[MetricRemoteSignOut] == 1
	})
}

func TestSignedInEventPopulatesUser(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	teacher := h.provider.addUser("t1@campus.edu", "password-123", "Tess", RoleTeacher)

	h.provider.emit(SessionEvent{Kind: EventSignedIn, Identity: &Identity{UserID: teacher.ID, Email: teacher.Email}})

	waitFor(t, "signed-in event", func() bool {
		return h.store.Snapshot().Role() == RoleTeacher
	})
}

func TestTokenRefreshedForCurrentUserIsIgnored(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	me := loginAs(t, h, "s1@campus.edu", RoleStudent)
	_, _, fetchesBefore, _ := h.provider.calls()

	h.provider.emit(SessionEvent{Kind: EventTokenRefreshed, Identity: &Identity{UserID: me.ID}})
	// A second event forces the first to have been consumed.
	h.provider.emit(SessionEvent{Kind: EventTokenRefreshed, Identity: &Identity{UserID: me.ID}})

	if _, _, fetches, _ := h.provider.calls(); fetches != fetchesBefore {
		t.Fatalf("token refresh for the current user must not refetch, got %d fetches", fetches-fetchesBefore)
	}
}

func TestUserUpdatedEventRefreshesProfile(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	me := loginAs(t, h, "s1@campus.edu", RoleStudent)

	h.provider.mu.Lock()
	p := h.provider.profiles[me.ID]
	p.Department = "Mathematics"
	h.provider.profiles[me.ID] = p
	h.provider.mu.Unlock()

	h.provider.emit(SessionEvent{Kind: EventUserUpdated, Identity: &Identity{UserID: me.ID}})
	waitFor(t, "profile refresh", func() bool {
		s := h.store.Snapshot()
		return s.User != nil && s.User.Department == "Mathematics"
	})
}

func TestUserUpdatedEventWithUnknownRoleClearsSession(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	me := loginAs(t, h, "s3@campus.edu", RoleStudent)

	h.provider.mu.Lock()
	p := h.provider.profiles[me.ID]
	p.Role = "admin"
	h.provider.profiles[me.ID] = p
	h.provider.mu.Unlock()

	h.provider.emit(SessionEvent{Kind: EventUserUpdated, Identity: &Identity{UserID: me.ID}})
	waitFor(t, "session cleared", func() bool {
		return !h.store.Snapshot().Authenticated()
	})
}

func TestStaleProfileFetchNeverRepopulatesAfterLogout(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	me := loginAs(t, h, "s1@campus.edu", RoleStudent)

	gate := make(chan struct{})
	h.provider.mu.Lock()
	h.provider.fetchGate = gate
	fetchesBefore := h.provider.fetchCalls
	h.provider.mu.Unlock()

	h.provider.emit(SessionEvent{Kind: EventUserUpdated, Identity: &Identity{UserID: me.ID}})
	waitFor(t, "event fetch to start", func() bool {
		_, _, fetches, _ := h.provider.calls()
		return fetches == fetchesBefore+1
	})

	if err := h.store.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(gate)

	waitFor(t, "stale fetch to be discarded", func() bool {
		return h.store.MetricsSnapshot().Counters[MetricStaleProfileDiscarded] == 1
	})
	if h.store.Snapshot().Authenticated() {
		t.Fatal("a fetch issued before logout must not repopulate the user")
	}
}

func TestEventFetchFailureClearsSession(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	me := loginAs(t, h, "s1@campus.edu", RoleStudent)

	h.provider.mu.Lock()
	h.provider.fetchErr[me.ID] = errProviderDown
	h.provider.mu.Unlock()

	h.provider.emit(SessionEvent{Kind: EventUserUpdated, Identity: &Identity{UserID: me.ID}})
	waitFor(t, "session cleared", func() bool {
		return !h.store.Snapshot().Authenticated()
	})
	if h.store.Snapshot().LastError == "" {
		t.Fatal("expected LastError after unusable session")
	}
	if _, signOut, _, _ := h.provider.calls(); signOut != 0 {
		t.Fatal("an outage must not end the provider session")
	}
}

func TestCloseStopsEventConsumer(t *testing.T) {
	h, done := newStoreTest(t, nil)
	defer done()

	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if h.provider.subscriberCount() != 1 {
		t.Fatal("expected one event subscription")
	}

	h.store.Close()

	finished := make(chan struct{})
	go func() {
		h.provider.emit(SessionEvent{Kind: EventSignedOut})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("emit after close should observe the cancelled subscription")
	}
}
