// Package neighbor implements the shared neighbour table both routing
// engines use to track the nodes they have directly heard from: link role,
// signal strength, and liveness. Parent-selection policy lives in the
// engines; this package only tracks what was observed.
package neighbor

import (
	"sync"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// State is the liveness of a neighbour table entry.
type State int

const (
	Unknown State = iota
	Inactive
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "INACTIVE"
	case Active:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Link describes the routing role of a neighbour relative to self.
type Link int

const (
	Idle Link = iota
	Inbound
	Outbound
)

func (l Link) String() string {
	switch l {
	case Inbound:
		return "INBOUND"
	case Outbound:
		return "OUTBOUND"
	default:
		return "IDLE"
	}
}

// Entry is a snapshot of one neighbour's tracked state. STRP-only fields
// (Parent, ParentRSSI) are zero for SMRP, which never populates them.
type Entry struct {
	Addr       mactp.Addr
	RSSI       int16
	LastSeen   time.Time
	Link       Link
	State      State
	Parent     mactp.Addr
	ParentRSSI int16
}

// Table tracks every node this node has directly heard from, indexed
// directly by address (never hashed), per the fixed 0-255 address space.
type Table struct {
	self mactp.Addr

	mu              sync.Mutex
	nodes           [256]Entry
	numActive       int
	totalDiscovered int
	minAddr         mactp.Addr
	maxAddr         mactp.Addr
	haveAny         bool
	lastCleanup     time.Time
}

// New returns an empty table for the node at self.
func New(self mactp.Addr) *Table {
	t := &Table{self: self, lastCleanup: time.Now()}
	for i := range t.nodes {
		t.nodes[i].State = Unknown
	}
	return t
}

// ObserveResult reports what Observe did, so the caller's engine can react
// (e.g. trigger a parent-selection pass on a brand-new neighbour).
type ObserveResult struct {
	Entry
	IsNew        bool // first frame ever seen from this address
	WasInactive  bool // transitioned Inactive -> Active
	AdvertisesMe bool // the neighbour's advertised parent is self (it thinks of us as its parent)
}

// Observe records a frame heard from addr, with signal strength rssi and
// (STRP only) the parent and parent RSSI it advertised in its beacon. If the
// node does not advertise a parent (SMRP, or a data frame rather than a
// beacon), pass mactp.Broadcast for advertisedParent: that leaves the
// entry's Parent/ParentRSSI untouched, whereas any other value (including
// mactp.None) is stored as the advertisement.
//
// Link assignment follows STRP.c's updateActiveNodes: Outbound if addr is
// our own current parent, Inbound if the neighbour claims us as its parent,
// Idle otherwise. Callers supply "our current parent" via currentParent so
// this package never has to know about parent-selection policy.
func (t *Table) Observe(addr mactp.Addr, rssi int16, advertisedParent mactp.Addr, advertisedParentRSSI int16, currentParent mactp.Addr) ObserveResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &t.nodes[addr]
	res := ObserveResult{}
	res.IsNew = e.State == Unknown

	if res.IsNew {
		e.Addr = addr
		e.State = Active
		t.numActive++
		t.totalDiscovered++
		if !t.haveAny || addr < t.minAddr {
			t.minAddr = addr
		}
		if !t.haveAny || addr > t.maxAddr {
			t.maxAddr = addr
		}
		t.haveAny = true
	} else if e.State == Inactive {
		e.State = Active
		t.numActive++
		res.WasInactive = true
	}

	switch {
	case addr == currentParent:
		e.Link = Outbound
	case advertisedParent == t.self:
		e.Link = Inbound
		res.AdvertisesMe = true
	default:
		e.Link = Idle
	}

	if advertisedParent != mactp.Broadcast {
		e.Parent = advertisedParent
		e.ParentRSSI = advertisedParentRSSI
	}
	e.RSSI = rssi
	e.LastSeen = time.Now()

	res.Entry = *e
	return res
}

// Get returns the current entry for addr and whether it has ever been
// observed (State != Unknown).
func (t *Table) Get(addr mactp.Addr) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.nodes[addr]
	return e, e.State != Unknown
}

// SetLink forces the link role of addr, used by engines when changing parent
// to demote the old parent to Idle and promote the new one to Outbound
// without waiting for another frame from either.
func (t *Table) SetLink(addr mactp.Addr, link Link) {
	t.mu.Lock()
	t.nodes[addr].Link = link
	t.mu.Unlock()
}

// NumActive returns the current count of Active neighbours.
func (t *Table) NumActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numActive
}

// TotalDiscovered returns the lifetime count of distinct addresses ever
// observed, including ones now Inactive.
func (t *Table) TotalDiscovered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalDiscovered
}

// Bounds returns the minimum and maximum address ever observed, and whether
// any node has been observed at all.
func (t *Table) Bounds() (min, max mactp.Addr, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minAddr, t.maxAddr, t.haveAny
}

// Cleanup transitions any Active neighbour whose last frame is older than
// timeout into Inactive. It reports whether parentAddr specifically went
// inactive, so the caller's engine knows whether to trigger parent
// reselection. Calling Cleanup again immediately afterward, with no
// intervening Observe, is a no-op (idempotent).
func (t *Table) Cleanup(timeout time.Duration, parentAddr mactp.Addr) (parentWentInactive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if !t.haveAny {
		t.lastCleanup = now
		return false
	}

	remaining := t.numActive
	for i := int(t.minAddr); i <= int(t.maxAddr) && remaining > 0; i++ {
		e := &t.nodes[i]
		if e.State == Active {
			if now.Sub(e.LastSeen) >= timeout {
				e.State = Inactive
				e.Link = Idle
				t.numActive--
				if mactp.Addr(i) == parentAddr {
					parentWentInactive = true
				}
			}
			remaining--
		}
	}

	t.lastCleanup = now
	return parentWentInactive
}

// LastCleanup returns the time of the most recent Cleanup call.
func (t *Table) LastCleanup() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCleanup
}

// Snapshot returns a copy of every entry ever observed (State != Unknown),
// ordered by address. Safe to call concurrently with Observe/Cleanup.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.haveAny {
		return nil
	}
	out := make([]Entry, 0, t.totalDiscovered)
	for i := int(t.minAddr); i <= int(t.maxAddr); i++ {
		if t.nodes[i].State != Unknown {
			out = append(out, t.nodes[i])
		}
	}
	return out
}

// Range calls fn for every Active neighbour in [min(addr), max(addr)],
// matching the source's direct-addressed iteration pattern used by the
// parent-selection strategies. fn must not call back into Table.
func (t *Table) Range(fn func(Entry)) {
	t.mu.Lock()
	entries := make([]Entry, 0, t.numActive)
	if t.haveAny {
		remaining := t.numActive
		for i := int(t.minAddr); i <= int(t.maxAddr) && remaining > 0; i++ {
			if t.nodes[i].State == Active {
				entries = append(entries, t.nodes[i])
				remaining--
			}
		}
	}
	t.mu.Unlock()

	for _, e := range entries {
		fn(e)
	}
}
