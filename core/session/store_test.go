package session

import (
	"testing"
	"time"
)

func TestStoreGetUnknownReturnsInitial(t *testing.T) {
	s := NewStore(time.Hour)
	sess := s.Get("263771234567")
	if sess.State != StateInitial {
		t.Fatalf("state = %s, want %s", sess.State, StateInitial)
	}
	if sess.Data.WhatsAppNumber != "263771234567" {
		t.Fatalf("number = %q, want caller number", sess.Data.WhatsAppNumber)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, default session must not be stored", s.Len())
	}
}

func TestStorePutRoundTrip(t *testing.T) {
	s := NewStore(time.Hour)
	sess := s.Get("u1")
	sess.State = StateCollectingName
	s.Put("u1", sess)

	got := s.Get("u1")
	if got.State != StateCollectingName {
		t.Fatalf("state = %s, want %s", got.State, StateCollectingName)
	}
	got.Data.FullName = "Jane Doe"
	s.Put("u1", got)
	if s.Get("u1").Data.FullName != "Jane Doe" {
		t.Fatal("data mutation lost")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestStoreGetReturnsDetachedCopy(t *testing.T) {
	s := NewStore(time.Hour)
	sess := s.Get("u1")
	sess.State = StateCollectingName
	sess.Data.FullName = "Jane"
	s.Put("u1", sess)

	// Mutating the caller's session after Put must not leak into the store.
	sess.State = StateCompleted
	sess.Data.FullName = "overwritten"
	if got := s.Get("u1"); got.State != StateCollectingName || got.Data.FullName != "Jane" {
		t.Fatalf("store aliased the caller's session: %+v", got)
	}

	// Mutating a Get result must not be visible until it is Put back.
	got := s.Get("u1")
	got.State = StateCompleted
	if again := s.Get("u1"); again.State != StateCollectingName {
		t.Fatalf("Get leaked a shared pointer: state = %s", again.State)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore(time.Hour)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.SetState("u1", StateCompleted)
		}
	}()
	for i := 0; i < 1000; i++ {
		sess := s.Get("u1")
		sess.Data.FullName = "Jane"
		s.Put("u1", sess)
	}
	<-done
}

func TestStoreExpiryResetsToInitial(t *testing.T) {
	s := NewStore(time.Hour)
	current := time.Now()
	s.now = func() time.Time { return current }

	sess := s.Get("u1")
	sess.State = StateCollectingEmail
	sess.Data.FullName = "Jane"
	s.Put("u1", sess)

	current = current.Add(2 * time.Hour)
	got := s.Get("u1")
	if got.State != StateInitial {
		t.Fatalf("state after expiry = %s, want %s", got.State, StateInitial)
	}
	if got.Data.FullName != "" {
		t.Fatal("expired session data must not survive")
	}
}

func TestStoreSetStateCreatesWhenMissing(t *testing.T) {
	s := NewStore(time.Hour)
	s.SetState("u1", StateCompleted)
	if got := s.Get("u1").State; got != StateCompleted {
		t.Fatalf("state = %s, want %s", got, StateCompleted)
	}
}

func TestPendingClaimIsExclusive(t *testing.T) {
	p := NewPendingStore(30 * time.Minute)
	p.Arm("u1", Registration{FullName: "Jane"})

	first, ok := p.Claim("u1")
	if !ok {
		t.Fatal("first claim must succeed")
	}
	if first.Registration.FullName != "Jane" {
		t.Fatalf("claimed registration = %+v", first.Registration)
	}
	if _, ok := p.Claim("u1"); ok {
		t.Fatal("second claim must fail")
	}
}

func TestPendingArmReplaces(t *testing.T) {
	p := NewPendingStore(30 * time.Minute)
	p.Arm("u1", Registration{FullName: "First"})
	p.Arm("u1", Registration{FullName: "Second"})
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	got, ok := p.Claim("u1")
	if !ok || got.Registration.FullName != "Second" {
		t.Fatalf("claim = %+v ok=%v, want the replacement", got, ok)
	}
}

func TestPendingExpiry(t *testing.T) {
	p := NewPendingStore(30 * time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	p.Arm("u1", Registration{})
	current = current.Add(time.Hour)

	if p.Armed("u1") {
		t.Fatal("expired entry reported as armed")
	}
	if _, ok := p.Claim("u1"); ok {
		t.Fatal("expired entry must not be claimable")
	}
}

func TestPendingSweepReturnsExpired(t *testing.T) {
	p := NewPendingStore(30 * time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	p.Arm("old", Registration{FullName: "Old"})
	current = current.Add(time.Hour)
	p.Arm("fresh", Registration{FullName: "Fresh"})

	expired := p.sweep()
	if len(expired) != 1 {
		t.Fatalf("sweep returned %d entries, want 1", len(expired))
	}
	if _, ok := expired["old"]; !ok {
		t.Fatal("expected the stale entry to be swept")
	}
	if !p.Armed("fresh") {
		t.Fatal("fresh entry must survive the sweep")
	}
}
