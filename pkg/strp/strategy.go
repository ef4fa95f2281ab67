package strp

import (
	"fmt"
	"math/rand"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

// Strategy selects how a non-sink node picks its outbound parent.
type Strategy int

const (
	// NextLower prefers the highest active address below self that isn't
	// already inbound-linked.
	NextLower Strategy = iota
	// RandomLower picks uniformly among active addresses below the
	// current parent.
	RandomLower
	// Random picks uniformly among any qualifying active neighbour.
	Random
	// Closest prefers the strongest RSSI among qualifying neighbours.
	Closest
	// ClosestLower prefers the strongest RSSI among qualifying neighbours
	// below self.
	ClosestLower
	// Fixed always selects a single, explicitly configured parent.
	Fixed
)

func (s Strategy) String() string {
	switch s {
	case NextLower:
		return "NEXT_LOWER"
	case RandomLower:
		return "RANDOM_LOWER"
	case Random:
		return "RANDOM"
	case Closest:
		return "CLOSEST"
	case ClosestLower:
		return "CLOSEST_LOWER"
	case Fixed:
		return "FIXED"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy parses the canonical names returned by Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "NEXT_LOWER":
		return NextLower, nil
	case "RANDOM_LOWER":
		return RandomLower, nil
	case "RANDOM":
		return Random, nil
	case "CLOSEST":
		return Closest, nil
	case "CLOSEST_LOWER":
		return ClosestLower, nil
	case "FIXED":
		return Fixed, nil
	default:
		return 0, fmt.Errorf("strp: unknown strategy %q", s)
	}
}

const minRSSI = int16(-128)

// selectParent runs a full rescan of the neighbour table to pick a new
// parent under strategy, used when the current parent is lost (cleanup
// timeout or loop detection). It never returns mactp.None; a node with no
// qualifying neighbour falls back to the sink address.
func selectParent(strategy Strategy, self mactp.Addr, fixedParent mactp.Addr, snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	switch strategy {
	case Fixed:
		return fixedParent
	case NextLower:
		return selectNextLower(self, snapshot, currentParent)
	case Random:
		return selectRandom(snapshot, currentParent)
	case RandomLower:
		return selectRandomLower(self, snapshot, currentParent)
	case Closest:
		return selectClosest(snapshot, currentParent)
	case ClosestLower:
		return selectClosestLower(self, snapshot, currentParent)
	default:
		return selectNextLower(self, snapshot, currentParent)
	}
}

func selectNextLower(self mactp.Addr, snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	newParent := mactp.DefaultSink
	for _, n := range snapshot {
		if n.State != neighbor.Active || n.Addr >= self {
			continue
		}
		if n.Link != neighbor.Inbound && n.Addr != currentParent {
			newParent = n.Addr
		}
	}
	return newParent
}

func selectRandom(snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	var pool []mactp.Addr
	for _, n := range snapshot {
		if n.State != neighbor.Active {
			continue
		}
		if n.Addr != mactp.DefaultSink && n.Link != neighbor.Inbound && n.Addr != currentParent {
			pool = append(pool, n.Addr)
		}
	}
	if len(pool) == 0 {
		return mactp.DefaultSink
	}
	return pool[rand.Intn(len(pool))]
}

func selectRandomLower(self mactp.Addr, snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	var pool []mactp.Addr
	for _, n := range snapshot {
		if n.State != neighbor.Active {
			continue
		}
		if n.Addr != mactp.DefaultSink && n.Link != neighbor.Inbound && n.Addr < currentParent && n.Addr < self {
			pool = append(pool, n.Addr)
		}
	}
	if len(pool) == 0 {
		return mactp.DefaultSink
	}
	return pool[rand.Intn(len(pool))]
}

func selectClosest(snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	newParent := mactp.DefaultSink
	newParentRSSI := minRSSI
	for _, n := range snapshot {
		if n.State != neighbor.Active {
			continue
		}
		if n.Link != neighbor.Inbound && n.RSSI > newParentRSSI && n.Addr != currentParent {
			newParent = n.Addr
			newParentRSSI = n.RSSI
		}
	}
	return newParent
}

func selectClosestLower(self mactp.Addr, snapshot []neighbor.Entry, currentParent mactp.Addr) mactp.Addr {
	newParent := mactp.DefaultSink
	newParentRSSI := minRSSI
	for _, n := range snapshot {
		if n.State != neighbor.Active {
			continue
		}
		if n.Link != neighbor.Inbound && n.RSSI >= newParentRSSI && n.Addr < self && n.Addr != currentParent {
			newParent = n.Addr
			newParentRSSI = n.RSSI
		}
	}
	return newParent
}

// fitsBetterThanCurrent evaluates the "new neighbour just showed up, should
// it immediately become parent" inline check a single candidate undergoes
// on first discovery, distinct from the full rescan of selectParent above.
// candidateRSSI is the new neighbour's RSSI; currentParentRSSI is the
// current parent's last known RSSI.
func fitsBetterThanCurrent(strategy Strategy, self, candidate, currentParent mactp.Addr, candidateRSSI, currentParentRSSI int16) bool {
	switch strategy {
	case NextLower:
		return candidate > currentParent && candidate < self
	case Random:
		return rand.Intn(101) < 50
	case RandomLower:
		return candidate < self && rand.Intn(101) < 50
	case Closest:
		return candidateRSSI > currentParentRSSI
	case ClosestLower:
		return candidateRSSI > currentParentRSSI && candidate < self
	default:
		return false
	}
}
