package confirmation

import (
	"testing"
	"time"
)

func TestRequestConfirmRoundTrip(t *testing.T) {
	m := New()
	m.Request("alice", "delete-branch", "feature/x", time.Minute)
	if !m.Confirm("alice", "delete-branch", "feature/x") {
		t.Fatal("expected Confirm to succeed for a fresh request")
	}
	if m.Confirm("alice", "delete-branch", "feature/x") {
		t.Fatal("expected second Confirm to fail, entry already consumed")
	}
}

func TestConfirmUnknownKeyFails(t *testing.T) {
	m := New()
	if m.Confirm("bob", "deploy", "prod") {
		t.Fatal("expected Confirm with no pending request to fail")
	}
}

func TestConfirmExpiredFails(t *testing.T) {
	m := New()
	m.Request("alice", "reset", "db", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if m.Confirm("alice", "reset", "db") {
		t.Fatal("expected Confirm to fail once the TTL has elapsed")
	}
}

func TestCancelRemovesPending(t *testing.T) {
	m := New()
	m.Request("alice", "rollback", "release-4", time.Minute)
	m.Cancel("alice", "rollback", "release-4")
	if m.Confirm("alice", "rollback", "release-4") {
		t.Fatal("expected Confirm to fail after Cancel")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	m := New()
	m.Request("alice", "a", "x", time.Millisecond)
	m.Request("alice", "b", "y", time.Hour)
	time.Sleep(5 * time.Millisecond)
	m.Sweep()
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry to survive sweep, got %d", m.Len())
	}
	if !m.Confirm("alice", "b", "y") {
		t.Fatal("expected the non-expired entry to still confirm")
	}
}

func TestRequestResetsClock(t *testing.T) {
	m := New()
	m.Request("alice", "deploy", "prod", time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	m.Request("alice", "deploy", "prod", time.Hour)
	if !m.Confirm("alice", "deploy", "prod") {
		t.Fatal("expected re-request to reset the TTL clock")
	}
}
