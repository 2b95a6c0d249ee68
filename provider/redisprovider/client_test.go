package redisprovider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
)

func receiveEvent(t *testing.T, ch <-chan portalAuth.SessionEvent) portalAuth.SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return portalAuth.SessionEvent{}
}

func TestSignInAndGetSession(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	id := h.account(t, "s1@campus.edu", portalAuth.RoleStudent)
	ctx := context.Background()

	tab1 := h.backend.Client("dev-1")
	if _, err := tab1.SignInWithPassword(ctx, "s1@campus.edu", "password-123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	tab2 := h.backend.Client("dev-1")
	got, err := tab2.GetSession(ctx)
	if err != nil || got == nil || got.UserID != id.UserID {
		t.Fatalf("expected shared device session, got %+v err=%v", got, err)
	}

	other, err := h.backend.Client("dev-2").GetSession(ctx)
	if err != nil || other != nil {
		t.Fatalf("expected no session on another device, got %+v err=%v", other, err)
	}
}

func TestSignInReplacesDeviceSession(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	h.account(t, "s1@campus.edu", portalAuth.RoleStudent)
	teacher := h.account(t, "t1@campus.edu", portalAuth.RoleTeacher)
	ctx := context.Background()
	client := h.backend.Client("dev-1")

	if _, err := client.SignInWithPassword(ctx, "s1@campus.edu", "password-123"); err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	if _, err := client.SignInWithPassword(ctx, "t1@campus.edu", "password-123"); err != nil {
		t.Fatalf("second sign in: %v", err)
	}

	count, err := h.backend.SessionCount(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected one live session, got %d err=%v", count, err)
	}
	got, err := client.GetSession(ctx)
	if err != nil || got == nil || got.UserID != teacher.UserID {
		t.Fatalf("expected teacher session, got %+v err=%v", got, err)
	}
}

func TestSignOutWithoutSessionIsNoOp(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	if err := h.backend.Client("dev-1").SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
}

func TestSignOutNotifiesOtherTabs(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	h.account(t, "c1@campus.edu", portalAuth.RoleCommittee)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tab1 := h.backend.Client("dev-1")
	tab2 := h.backend.Client("dev-1")
	events, err := tab2.SessionEvents(ctx)
	if err != nil {
		t.Fatalf("session events: %v", err)
	}

	id, err := tab1.SignInWithPassword(ctx, "c1@campus.edu", "password-123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	ev := receiveEvent(t, events)
	if ev.Kind != portalAuth.EventSignedIn || ev.Identity == nil || ev.Identity.UserID != id.UserID {
		t.Fatalf("expected signed_in for %s, got %+v", id.UserID, ev)
	}

	if err := tab1.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	ev = receiveEvent(t, events)
	if ev.Kind != portalAuth.EventSignedOut || ev.Identity != nil {
		t.Fatalf("expected signed_out, got %+v", ev)
	}

	got, err := tab2.GetSession(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected no session after sign out, got %+v err=%v", got, err)
	}
	if h.mr.Exists("pp:acct:" + id.UserID + ":devices") {
		members, _ := h.mr.SMembers("pp:acct:" + id.UserID + ":devices")
		if len(members) != 0 {
			t.Fatalf("expected device set emptied, got %v", members)
		}
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after cancel")
	}
}

func TestGetSessionDropsDanglingPointer(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	h.account(t, "s1@campus.edu", portalAuth.RoleStudent)
	ctx := context.Background()
	client := h.backend.Client("dev-1")
	if _, err := client.SignInWithPassword(ctx, "s1@campus.edu", "password-123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	for _, key := range h.mr.Keys() {
		if strings.HasPrefix(key, "pp:sess:") && key != "pp:sess:count" {
			h.mr.Del(key)
		}
	}

	got, err := client.GetSession(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected no session once the record is gone, got %+v err=%v", got, err)
	}
	if h.mr.Exists("pp:device:dev-1") {
		t.Fatal("expected dangling device pointer to be removed")
	}
}

func TestGetSessionRejectsForgedToken(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	if err := h.mr.Set("pp:device:dev-1", "not-a-token"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := h.backend.Client("dev-1").GetSession(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected forged token to be ignored, got %+v err=%v", got, err)
	}
	if h.mr.Exists("pp:device:dev-1") {
		t.Fatal("expected forged pointer to be removed")
	}
}

func TestSignUpSignsInAndLimitsAddress(t *testing.T) {
	h, done := newBackendTest(t, func(cfg *Config) {
		cfg.Rate.MaxSignups = 1
	})
	defer done()

	ctx := portalAuth.WithClientIP(context.Background(), "10.1.2.3")
	client := h.backend.Client("dev-1")

	id, err := client.SignUp(ctx, "new@campus.edu", "password-123", portalAuth.SignUpAttributes{
		DisplayName: "New Student",
		Role:        portalAuth.RoleStudent,
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	got, err := client.GetSession(ctx)
	if err != nil || got == nil || got.UserID != id.UserID {
		t.Fatalf("expected new account signed in, got %+v err=%v", got, err)
	}

	_, err = h.backend.Client("dev-2").SignUp(ctx, "other@campus.edu", "password-123", portalAuth.SignUpAttributes{
		DisplayName: "Other",
		Role:        portalAuth.RoleStudent,
	})
	if !errors.Is(err, portalAuth.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestUpdateProfileBroadcastsToSignedInDevices(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	h.account(t, "t1@campus.edu", portalAuth.RoleTeacher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	laptop := h.backend.Client("laptop")
	phone := h.backend.Client("phone")
	id, err := laptop.SignInWithPassword(ctx, "t1@campus.edu", "password-123")
	if err != nil {
		t.Fatalf("laptop sign in: %v", err)
	}
	if _, err := phone.SignInWithPassword(ctx, "t1@campus.edu", "password-123"); err != nil {
		t.Fatalf("phone sign in: %v", err)
	}

	events, err := phone.SessionEvents(ctx)
	if err != nil {
		t.Fatalf("session events: %v", err)
	}

	name := "Dr. Tess"
	if err := laptop.UpdateProfile(ctx, id.UserID, portalAuth.ProfileUpdate{DisplayName: &name}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	ev := receiveEvent(t, events)
	if ev.Kind != portalAuth.EventUserUpdated || ev.Identity == nil || ev.Identity.UserID != id.UserID {
		t.Fatalf("expected user_updated, got %+v", ev)
	}

	profile, err := phone.FetchProfile(ctx, id.UserID)
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.DisplayName != name || profile.Role != portalAuth.RoleTeacher {
		t.Fatalf("unexpected profile after update %+v", profile)
	}
}

func TestMalformedEventIsSkipped(t *testing.T) {
	h, done := newBackendTest(t, nil)
	defer done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := h.backend.Client("dev-1")
	events, err := client.SessionEvents(ctx)
	if err != nil {
		t.Fatalf("session events: %v", err)
	}

	if err := h.rdb.Publish(ctx, "pp:events:dev-1", "{garbage").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.publish(ctx, portalAuth.SessionEvent{Kind: portalAuth.EventSignedOut}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev := receiveEvent(t, events); ev.Kind != portalAuth.EventSignedOut {
		t.Fatalf("expected the valid event after the malformed one, got %+v", ev)
	}
}
