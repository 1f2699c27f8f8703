package e2ee

import "testing"

func TestRegistryGetCreatesOnFirstUse(t *testing.T) {
	r := NewRegistry()
	d1 := r.Get("room-1")
	d2 := r.Get("room-1")
	if d1 != d2 {
		t.Fatal("Get returned different Distributors for the same room")
	}
}

func TestRegistryDropRemovesDistributor(t *testing.T) {
	r := NewRegistry()
	d1 := r.Get("room-1")
	r.Drop("room-1")
	d2 := r.Get("room-1")
	if d1 == d2 {
		t.Fatal("Drop did not remove the Distributor")
	}
}
