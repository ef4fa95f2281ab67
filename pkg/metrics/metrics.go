// Package metrics implements the reset-on-read per-address counters both
// routing engines expose: a small CSV-row contract meant to be polled, not
// scraped.
package metrics

import (
	"fmt"
	"sync"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// Row is one reporting period's counters for a single address. STRP
// populates ParentChanges and BeaconsSent only on the index-0 aggregate row;
// SMRP never populates ParentChanges at all.
type Row struct {
	ParentChanges uint16
	BeaconsSent   uint16
	BeaconsRecv   uint16
}

// Store holds per-address counters, reset to zero every time they're read.
// Index 0 is the aggregate row: ParentChanges and BeaconsSent are
// node-global counts kept only there, while BeaconsRecv is tracked
// per-source address.
type Store struct {
	strp bool // whether ParentChanges participates in this store's protocol

	mu   sync.Mutex
	rows [256]Row
}

// New returns a Store. strp selects whether the Header/Row reflect STRP's
// three-column format (with ParentChanges) or SMRP's two-column format.
func New(strp bool) *Store {
	return &Store{strp: strp}
}

// IncParentChanges increments the aggregate parent-change counter. No-op for
// an SMRP store, which has no concept of a parent.
func (s *Store) IncParentChanges() {
	if !s.strp {
		return
	}
	s.mu.Lock()
	s.rows[0].ParentChanges++
	s.mu.Unlock()
}

// IncBeaconsSent increments the aggregate beacons-sent counter.
func (s *Store) IncBeaconsSent() {
	s.mu.Lock()
	s.rows[0].BeaconsSent++
	s.mu.Unlock()
}

// IncBeaconsRecv increments the per-source beacons-received counter for src.
func (s *Store) IncBeaconsRecv(src mactp.Addr) {
	s.mu.Lock()
	s.rows[src].BeaconsRecv++
	s.mu.Unlock()
}

// Header returns the CSV header line matching Row's column order for this
// store's protocol variant.
func (s *Store) Header() string {
	if s.strp {
		return "AggParentChanges,AggBeaconsSent,TotalBeaconsRecv"
	}
	return "AggBeaconsSent,TotalBeaconsRecv"
}

// ReadRow formats addr's current counters as a CSV row and resets them:
// the aggregate fields (index 0) always reset alongside whichever address
// was read, matching the source's combined reset of metrics.data[0] and
// metrics.data[addr] on every read.
func (s *Store) ReadRow(addr mactp.Addr) string {
	s.mu.Lock()
	agg := s.rows[0]
	perAddr := s.rows[addr]
	s.rows[addr] = Row{}
	s.rows[0].BeaconsSent = 0
	s.rows[0].ParentChanges = 0
	s.mu.Unlock()

	if s.strp {
		return fmt.Sprintf("%d,%d,%d", agg.ParentChanges, agg.BeaconsSent, perAddr.BeaconsRecv)
	}
	return fmt.Sprintf("%d,%d", agg.BeaconsSent, perAddr.BeaconsRecv)
}
