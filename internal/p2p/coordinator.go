// Package p2p coordinates direct peer-to-peer media paths: address
// exchange between two participants, a bounded hole-punch attempt, and
// fallback to the relay if the attempt times out.
package p2p

import (
	"sync"
	"time"
)

// Timeout is how long a hole-punch attempt is given before falling
// back to the relay.
const Timeout = 3 * time.Second

// Status is a PeerPair's state machine position. Transitions are
// terminal: a new attempt always creates a fresh pair entry.
type Status int

const (
	Attempting Status = iota
	Established
	FailedUsingRelay
)

// Pair is an order-independent key for two participants attempting
// direct connectivity.
type Pair struct {
	A, B int64
}

// NewPair normalizes (a, b) so Pair{1,2} == Pair{2,1}.
func NewPair(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

type connection struct {
	status Status
	timer  *time.Timer
}

// Coordinator tracks registered addresses and in-flight pairs.
type Coordinator struct {
	mu          sync.Mutex
	addresses   map[int64]string
	connections map[Pair]*connection
	afterFunc   func(time.Duration, func()) *time.Timer // overridable in tests
}

// New returns an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		addresses:   make(map[int64]string),
		connections: make(map[Pair]*connection),
		afterFunc:   time.AfterFunc,
	}
}

// RegisterAddress records userID's public address for P2P exchange.
func (c *Coordinator) RegisterAddress(userID int64, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses[userID] = addr
}

// RemoveAddress drops userID's registered address, e.g. on disconnect.
func (c *Coordinator) RemoveAddress(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.addresses, userID)
}

// GetAddress returns userID's registered address, if any.
func (c *Coordinator) GetAddress(userID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addresses[userID]
	return addr, ok
}

// Initiate starts a hole-punch attempt between a and b, returning the
// other side's address to the caller (the address of b if the caller
// is a, and vice versa is symmetric since both sides call Initiate).
// The pair is marked Attempting and a Timeout timer is armed that
// flips it to FailedUsingRelay unless MarkEstablished is called first.
func (c *Coordinator) Initiate(a, b int64) (peerAddr string, ok bool) {
	c.mu.Lock()
	addrB, haveB := c.addresses[b]
	pair := NewPair(a, b)
	conn := &connection{status: Attempting}
	c.connections[pair] = conn
	c.mu.Unlock()

	conn.timer = c.afterFunc(Timeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, exists := c.connections[pair]; exists && cur == conn && cur.status == Attempting {
			cur.status = FailedUsingRelay
		}
	})

	if !haveB {
		return "", false
	}
	return addrB, true
}

// MarkEstablished locks in a successful hole-punch for (a, b).
func (c *Coordinator) MarkEstablished(a, b int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair := NewPair(a, b)
	if conn, ok := c.connections[pair]; ok {
		conn.status = Established
		if conn.timer != nil {
			conn.timer.Stop()
		}
	}
}

// MarkFailed forces (a, b) to FailedUsingRelay immediately.
func (c *Coordinator) MarkFailed(a, b int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair := NewPair(a, b)
	if conn, ok := c.connections[pair]; ok {
		conn.status = FailedUsingRelay
		if conn.timer != nil {
			conn.timer.Stop()
		}
	}
}

// GetStatus returns the current status of (a, b), if a pair exists.
func (c *Coordinator) GetStatus(a, b int64) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.connections[NewPair(a, b)]
	if !ok {
		return 0, false
	}
	return conn.status, true
}

// RoomPeerAddresses returns the registered addresses for every userID
// in users that has one.
func (c *Coordinator) RoomPeerAddresses(users []int64) map[int64]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]string)
	for _, uid := range users {
		if addr, ok := c.addresses[uid]; ok {
			out[uid] = addr
		}
	}
	return out
}
