package main

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/arjunv/wsnmesh/db/historydb"
	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
	"github.com/arjunv/wsnmesh/pkg/routing"
)

// recordHistory polls transport's topology snapshot every interval and
// persists it to db, until ctx is cancelled.
func recordHistory(ctx context.Context, db *historydb.DB, transport routing.Transport, self mactp.Addr, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, 16384)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := transport.TopologyRows(buf, len(buf))
			entries := parseTopologyRows(buf[:n])
			db.Insert(ctx, self, entries, time.Now())
			db.Prune(ctx, time.Now())
		}
	}
}

// parseTopologyRows re-parses the CSV rows pkg/topology.Rows writes into
// neighbor.Entry values, since historydb stores structured rows rather than
// text. It tolerates either the STRP (8-column) or SMRP (6-column) format.
func parseTopologyRows(buf []byte) []neighbor.Entry {
	records, err := csv.NewReader(strings.NewReader(string(buf))).ReadAll()
	if err != nil {
		return nil
	}

	out := make([]neighbor.Entry, 0, len(records))
	for _, fields := range records {
		if len(fields) < 6 {
			continue
		}
		var e neighbor.Entry
		e.Addr = mactp.Addr(atoi(fields[2]))
		e.State = neighbor.State(atoi(fields[3]))
		e.Link = neighbor.Link(atoi(fields[4]))
		e.RSSI = int16(atoi(fields[5]))
		if len(fields) >= 8 {
			e.Parent = mactp.Addr(atoi(fields[6]))
			e.ParentRSSI = int16(atoi(fields[7]))
		}
		out = append(out, e)
	}
	return out
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
