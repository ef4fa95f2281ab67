package topology

import (
	"strings"
	"testing"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

func TestSTRPParentRowFirst(t *testing.T) {
	snap := []neighbor.Entry{
		{Addr: 3, State: neighbor.Active, Link: neighbor.Idle, RSSI: -60},
		{Addr: 7, State: neighbor.Active, Link: neighbor.Outbound, RSSI: -40, Parent: 0, ParentRSSI: 0},
	}
	buf := make([]byte, 4096)
	now := time.Unix(1000, 0)

	n := Rows(buf, len(buf), true, 5, snap, 7, true, now)
	out := string(buf[:n])
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], ",5,7,") {
		t.Errorf("first row should be the parent (addr 7): %q", lines[0])
	}
	if !strings.HasPrefix(lines[0], "1000,") {
		t.Errorf("first row must carry the timestamp: %q", lines[0])
	}
	if strings.HasPrefix(lines[1], "1000,") || !strings.HasPrefix(lines[1], "0,") {
		t.Errorf("subsequent rows must omit the timestamp: %q", lines[1])
	}
}

func TestSMRPRowsHaveNoParentColumns(t *testing.T) {
	snap := []neighbor.Entry{
		{Addr: 3, State: neighbor.Active, Link: neighbor.Idle, RSSI: -60},
	}
	buf := make([]byte, 4096)
	n := Rows(buf, len(buf), false, 9, snap, mactp.None, false, time.Unix(1, 0))
	out := string(buf[:n])

	if strings.Count(out, ",") != 5 {
		t.Errorf("SMRP row should have 6 columns (5 commas): %q", out)
	}
}

func TestRowsDropOnOverflow(t *testing.T) {
	snap := make([]neighbor.Entry, 5)
	for i := range snap {
		snap[i] = neighbor.Entry{Addr: mactp.Addr(10 + i), State: neighbor.Active, RSSI: -50}
	}
	buf := make([]byte, 40) // deliberately too small for all 5 rows
	n := Rows(buf, len(buf), false, 1, snap, mactp.None, false, time.Unix(1, 0))
	if n > len(buf) {
		t.Fatalf("written %d exceeds buffer capacity %d", n, len(buf))
	}
	if n == 0 {
		t.Error("expected at least one row to fit")
	}
}
