package room

import "testing"

func TestJoinAutoSubscribesBothDirections(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)

	if _, err := m.Join(roomID, 100, "s100", ConnectionRelay); err != nil {
		t.Fatalf("join 100: %v", err)
	}
	if _, err := m.Join(roomID, 200, "s200", ConnectionRelay); err != nil {
		t.Fatalf("join 200: %v", err)
	}

	r := m.Get(roomID)
	a, b := r.Get(100), r.Get(200)
	if !a.IsSubscribedTo(200) || !b.IsSubscribedTo(100) {
		t.Fatal("expected mutual auto-subscription")
	}
}

func TestLeaveStripsSubscriptionsAndDestroysEmptyRoom(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	m.Join(roomID, 100, "s100", ConnectionRelay)
	m.Join(roomID, 200, "s200", ConnectionRelay)

	remaining, err := m.Leave(roomID, 100)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining = %d, want 1", len(remaining))
	}
	if m.Get(roomID).Get(200).IsSubscribedTo(100) {
		t.Fatal("expected subscription to leaver stripped")
	}

	remaining, err = m.Leave(roomID, 200)
	if err != nil {
		t.Fatalf("leave last: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected nil on room destruction, got %v", remaining)
	}
	if m.Get(roomID) != nil {
		t.Fatal("expected room destroyed after last leave")
	}
}

func TestJoinLeaveLeavesParticipantCountUnchanged(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	m.Join(roomID, 100, "s100", ConnectionRelay)
	before := m.Get(roomID).Count()

	m.Join(roomID, 200, "s200", ConnectionRelay)
	if _, err := m.Leave(roomID, 200); err != nil {
		t.Fatalf("leave: %v", err)
	}
	after := m.Get(roomID).Count()

	if before != after {
		t.Fatalf("count changed: before=%d after=%d", before, after)
	}
}

func TestCapacityCap(t *testing.T) {
	m := NewManager(2)
	roomID := m.GetOrCreate(1, 1)

	if _, err := m.Join(roomID, 1, "s1", ConnectionRelay); err != nil {
		t.Fatalf("join 1: %v", err)
	}
	if _, err := m.Join(roomID, 2, "s2", ConnectionRelay); err != nil {
		t.Fatalf("join 2: %v", err)
	}
	if _, err := m.Join(roomID, 3, "s3", ConnectionRelay); err == nil {
		t.Fatal("expected RoomFull on 3rd join with capacity 2")
	}
}

func TestJoinRejectsDuplicateUser(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	m.Join(roomID, 1, "s1", ConnectionRelay)
	if _, err := m.Join(roomID, 1, "s1-dup", ConnectionRelay); err == nil {
		t.Fatal("expected ErrAlreadyInRoom")
	}
}

func TestLeaveUnknownUserFails(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	m.Join(roomID, 1, "s1", ConnectionRelay)
	if _, err := m.Leave(roomID, 999); err == nil {
		t.Fatal("expected ErrUserNotInRoom")
	}
}

func TestSetSubscribedAddsAndRemoves(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	m.Join(roomID, 1, "s1", ConnectionRelay)
	m.Join(roomID, 2, "s2", ConnectionRelay)
	r := m.Get(roomID)

	if err := r.SetSubscribed(1, 2, false); err != nil {
		t.Fatalf("SetSubscribed(unsubscribe): %v", err)
	}
	if r.Get(1).IsSubscribedTo(2) {
		t.Fatal("expected 1 to no longer be subscribed to 2")
	}

	if err := r.SetSubscribed(1, 2, true); err != nil {
		t.Fatalf("SetSubscribed(subscribe): %v", err)
	}
	if !r.Get(1).IsSubscribedTo(2) {
		t.Fatal("expected 1 to be subscribed to 2 again")
	}
}

func TestSetSubscribedFailsForNonMember(t *testing.T) {
	m := NewManager(0)
	roomID := m.GetOrCreate(1, 1)
	r := m.Get(roomID)
	if err := r.SetSubscribed(999, 2, true); err == nil {
		t.Fatal("expected ErrUserNotInRoom")
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(0)
	a := m.GetOrCreate(5, 9)
	b := m.GetOrCreate(5, 9)
	if a != b {
		t.Fatalf("room_id mismatch: %s vs %s", a, b)
	}
	if a != "guild_5_channel_9" {
		t.Fatalf("unexpected room_id format: %s", a)
	}
}
