package session

import (
	"errors"
	"testing"
	"time"
)

func TestChallengeAcceptStartsSession(t *testing.T) {
	r, sink, _ := newTestRegistry(t, nil)

	ch, err := r.SendChallenge("Alice", "bob", "conn-alice")
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if ch.From != "alice" || ch.To != "bob" || ch.Status != ChallengePending {
		t.Fatalf("challenge view = %+v", ch)
	}
	got := waitEvent(t, sink, EventChallengeReceived)
	if len(got.Users) != 1 || got.Users[0] != "bob" {
		t.Fatalf("challenge delivered to %v, want bob", got.Users)
	}

	view, err := r.AcceptChallenge(ch.ID, "bob", "conn-bob")
	if err != nil {
		t.Fatalf("AcceptChallenge: %v", err)
	}
	if view.Players[0].Username != "alice" || view.Players[1].Username != "bob" {
		t.Fatalf("session slots = %+v, want challenger first", view.Players)
	}
	if view.IsAgainstBot {
		t.Fatal("challenge session flagged as bot game")
	}
	resolved := waitEvent(t, sink, EventChallengeResolved).Event.Data.(ChallengeResolvedPayload)
	if resolved.Challenge.Status != ChallengeAccepted {
		t.Fatalf("resolved status = %v, want accepted", resolved.Challenge.Status)
	}

	received, sent := r.PendingChallenges("bob")
	if len(received) != 0 || len(sent) != 0 {
		t.Fatalf("pending after accept = %d/%d, want none", len(received), len(sent))
	}
}

func TestChallengeValidation(t *testing.T) {
	r, sink, _ := newTestRegistry(t, nil)

	if _, err := r.SendChallenge("alice", "Alice", "c1"); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("self challenge err = %v, want ErrSelfChallenge", err)
	}

	if _, err := r.SendChallenge("alice", "bob", "c1"); err != nil {
		t.Fatalf("first challenge: %v", err)
	}
	if _, err := r.SendChallenge("alice", "bob", "c1"); !errors.Is(err, ErrDuplicateChallenge) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateChallenge", err)
	}
	// the reverse direction is a distinct challenge
	if _, err := r.SendChallenge("bob", "alice", "c2"); err != nil {
		t.Fatalf("reverse challenge: %v", err)
	}

	startPvP(t, r, sink) // alice and bob enter a game
	if _, err := r.SendChallenge("alice", "carol", "conn-alice"); !errors.Is(err, ErrAlreadyInGame) {
		t.Fatalf("in-game sender err = %v, want ErrAlreadyInGame", err)
	}
	if _, err := r.SendChallenge("carol", "bob", "conn-carol"); !errors.Is(err, ErrOpponentInGame) {
		t.Fatalf("in-game target err = %v, want ErrOpponentInGame", err)
	}
}

func TestChallengeRejectNotifiesSender(t *testing.T) {
	r, sink, _ := newTestRegistry(t, nil)
	ch, err := r.SendChallenge("alice", "bob", "c1")
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}

	if err := r.RejectChallenge(ch.ID, "mallory"); !errors.Is(err, ErrChallengeNotAddressee) {
		t.Fatalf("stranger reject err = %v, want ErrChallengeNotAddressee", err)
	}
	if err := r.RejectChallenge(ch.ID, "bob"); err != nil {
		t.Fatalf("RejectChallenge: %v", err)
	}
	got := waitEvent(t, sink, EventChallengeResolved)
	if len(got.Users) != 1 || got.Users[0] != "alice" {
		t.Fatalf("rejection went to %v, want alice", got.Users)
	}
	if got.Event.Data.(ChallengeResolvedPayload).Challenge.Status != ChallengeRejected {
		t.Fatal("resolved status is not rejected")
	}
	if err := r.RejectChallenge(ch.ID, "bob"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("double reject err = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeCancelOnlyBySender(t *testing.T) {
	r, sink, _ := newTestRegistry(t, nil)
	ch, err := r.SendChallenge("alice", "bob", "c1")
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}

	if err := r.CancelChallenge(ch.ID, "bob"); !errors.Is(err, ErrChallengeNotSender) {
		t.Fatalf("addressee cancel err = %v, want ErrChallengeNotSender", err)
	}
	if err := r.CancelChallenge(ch.ID, "alice"); err != nil {
		t.Fatalf("CancelChallenge: %v", err)
	}
	got := waitEvent(t, sink, EventChallengeResolved)
	if len(got.Users) != 1 || got.Users[0] != "bob" {
		t.Fatalf("cancellation went to %v, want bob", got.Users)
	}
	if _, err := r.AcceptChallenge(ch.ID, "bob", "c2"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("accept after cancel err = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	r, sink, _ := newTestRegistry(t, func(c *Config) { c.ChallengeTTL = 20 * time.Millisecond })
	ch, err := r.SendChallenge("alice", "bob", "c1")
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}

	got := waitEvent(t, sink, EventChallengeResolved)
	payload := got.Event.Data.(ChallengeResolvedPayload)
	if payload.Challenge.Status != ChallengeExpired {
		t.Fatalf("resolved status = %v, want expired", payload.Challenge.Status)
	}
	if len(got.Users) != 1 || got.Users[0] != "alice" {
		t.Fatalf("expiry notice went to %v, want the sender", got.Users)
	}
	if _, err := r.AcceptChallenge(ch.ID, "bob", "c2"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("accept after expiry err = %v, want ErrChallengeNotFound", err)
	}
}

func TestPendingChallengesListsBothDirections(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)
	first, err := r.SendChallenge("alice", "bob", "c1")
	if err != nil {
		t.Fatalf("challenge alice->bob: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := r.SendChallenge("carol", "bob", "c2"); err != nil {
		t.Fatalf("challenge carol->bob: %v", err)
	}
	if _, err := r.SendChallenge("bob", "dave", "c3"); err != nil {
		t.Fatalf("challenge bob->dave: %v", err)
	}

	received, sent := r.PendingChallenges("BOB")
	if len(received) != 2 || len(sent) != 1 {
		t.Fatalf("pending = %d received / %d sent, want 2/1", len(received), len(sent))
	}
	if received[0].ID != first.ID {
		t.Fatal("received challenges not ordered oldest first")
	}
	if sent[0].To != "dave" {
		t.Fatalf("sent[0].To = %q, want dave", sent[0].To)
	}
}
