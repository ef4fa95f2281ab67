// Package historydb stores a rolling history of topology snapshots in a
// sqlite3 database, grounded on db/atlasdb's connection setup. Unlike
// atlasdb, this package is scoped to a single table with no migrations
// framework: the schema is created unconditionally on Open and never
// changes shape.
package historydb

import (
	"context"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

const schema = `
CREATE TABLE IF NOT EXISTS topology_history (
	timestamp   INTEGER NOT NULL,
	self        INTEGER NOT NULL,
	addr        INTEGER NOT NULL,
	state       INTEGER NOT NULL,
	link        INTEGER NOT NULL,
	rssi        INTEGER NOT NULL,
	parent      INTEGER NOT NULL,
	parent_rssi INTEGER NOT NULL
) STRICT;
CREATE INDEX IF NOT EXISTS topology_history_timestamp_idx ON topology_history(timestamp);
`

// DB stores topology history in a sqlite3 database.
type DB struct {
	x *sqlx.DB

	// RetainFor bounds how far back Prune deletes rows from. Zero disables
	// pruning (callers are then responsible for bounding the table size
	// themselves).
	RetainFor time.Duration
}

// Open opens a DB from the provided sqlite3 filename, creating the file
// and schema if they don't already exist.
func Open(name string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	if _, err := x.Exec(schema); err != nil {
		x.Close()
		return nil, err
	}
	return &DB{x: x, RetainFor: 24 * time.Hour}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

// Snapshot is one neighbour-table entry recorded at a point in time.
type Snapshot struct {
	Timestamp time.Time
	Self      mactp.Addr
	Entry     neighbor.Entry
}

// Insert records each of entries as a single row for self, stamped with now.
func (db *DB) Insert(ctx context.Context, self mactp.Addr, entries []neighbor.Entry, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO topology_history
			(timestamp, self, addr, state, link, rssi, parent, parent_rssi)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now.Unix()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, ts, self, e.Addr, int(e.State), int(e.Link), e.RSSI, e.Parent, e.ParentRSSI); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Since returns every recorded snapshot for self with a timestamp at or
// after since, oldest first.
func (db *DB) Since(ctx context.Context, self mactp.Addr, since time.Time) ([]Snapshot, error) {
	var rows []struct {
		Timestamp  int64      `db:"timestamp"`
		Self       mactp.Addr `db:"self"`
		Addr       mactp.Addr `db:"addr"`
		State      int        `db:"state"`
		Link       int        `db:"link"`
		RSSI       int16      `db:"rssi"`
		Parent     mactp.Addr `db:"parent"`
		ParentRSSI int16      `db:"parent_rssi"`
	}
	if err := sqlx.SelectContext(ctx, db.x, &rows, `
		SELECT timestamp, self, addr, state, link, rssi, parent, parent_rssi
		FROM topology_history
		WHERE self = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, self, since.Unix()); err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, Snapshot{
			Timestamp: time.Unix(r.Timestamp, 0),
			Self:      r.Self,
			Entry: neighbor.Entry{
				Addr:       r.Addr,
				RSSI:       r.RSSI,
				State:      neighbor.State(r.State),
				Link:       neighbor.Link(r.Link),
				Parent:     r.Parent,
				ParentRSSI: r.ParentRSSI,
			},
		})
	}
	return out, nil
}

// Prune deletes rows older than RetainFor, relative to now. A zero
// RetainFor is a no-op.
func (db *DB) Prune(ctx context.Context, now time.Time) error {
	if db.RetainFor <= 0 {
		return nil
	}
	cutoff := now.Add(-db.RetainFor).Unix()
	_, err := db.x.ExecContext(ctx, `DELETE FROM topology_history WHERE timestamp < ?`, cutoff)
	return err
}
