// Package topology formats neighbour-table snapshots as CSV, the shared row
// layout both routing engines report through their monitoring endpoint.
// STRP rows carry a trailing Parent/ParentRSSI pair that SMRP rows omit.
package topology

import (
	"fmt"
	"time"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

// STRPHeader and SMRPHeader are the fixed CSV header lines for each
// protocol's topology report.
const (
	STRPHeader = "Timestamp,Source,Address,State,LinkType,RSSI,Parent,ParentRSSI"
	SMRPHeader = "Timestamp,Source,Address,State,LinkType,RSSI"
)

// Rows formats a neighbour-table snapshot as CSV rows, written into dst
// from its start. self identifies the reporting node (the Source column).
// parentAddr, when haveParent is true, names the current parent entry to be
// written first, before the rest of the table in address order (STRP only;
// pass haveParent=false for SMRP). now is stamped on the first row only;
// every subsequent row carries 0 in the Timestamp column, matching the
// source's single-timestamp-per-report convention. Rows that would overflow maxBytes are dropped and reporting
// stops at that point, rather than producing a truncated row; written
// reports how many bytes were appended.
func Rows(dst []byte, maxBytes int, strp bool, self mactp.Addr, snapshot []neighbor.Entry, parentAddr mactp.Addr, haveParent bool, now time.Time) (written int) {
	ts := now.Unix()

	emit := func(e neighbor.Entry) bool {
		var row string
		if strp {
			row = fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d\n", ts, self, e.Addr, int(e.State), int(e.Link), e.RSSI, e.Parent, e.ParentRSSI)
		} else {
			row = fmt.Sprintf("%d,%d,%d,%d,%d,%d\n", ts, self, e.Addr, int(e.State), int(e.Link), e.RSSI)
		}
		ts = 0 // every row after the first carries 0 as its timestamp

		if written+len(row) > maxBytes {
			return false
		}
		written += copy(dst[written:], row)
		return true
	}

	if haveParent {
		for _, e := range snapshot {
			if e.Addr == parentAddr {
				if !emit(e) {
					return written
				}
				break
			}
		}
	}

	for _, e := range snapshot {
		if haveParent && e.Addr == parentAddr {
			continue
		}
		if !emit(e) {
			return written
		}
	}
	return written
}
