package historydb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/neighbor"
)

func TestInsertAndSince(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	entries := []neighbor.Entry{
		{Addr: 2, RSSI: -40, State: neighbor.Active, Link: neighbor.Outbound, Parent: 0, ParentRSSI: 0},
		{Addr: 3, RSSI: -60, State: neighbor.Active, Link: neighbor.Idle},
	}
	if err := db.Insert(ctx, 1, entries, now); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, 1, entries, now.Add(time.Minute)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Since(ctx, 1, now)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Since returned %d rows, want 4", len(got))
	}
	if got[0].Entry.Addr != mactp.Addr(2) || got[0].Entry.RSSI != -40 {
		t.Errorf("first row = %+v", got[0])
	}

	got, err = db.Since(ctx, 1, now.Add(90*time.Second))
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Since with a future cutoff returned %d rows, want 0", len(got))
	}
}

func TestPrune(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	db.RetainFor = time.Hour

	ctx := context.Background()
	old := time.Unix(1000, 0)
	recent := time.Unix(1000, 0).Add(2 * time.Hour)

	entries := []neighbor.Entry{{Addr: 2, RSSI: -40, State: neighbor.Active}}
	if err := db.Insert(ctx, 1, entries, old); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, 1, entries, recent); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.Prune(ctx, recent); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	got, err := db.Since(ctx, 1, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Since after Prune returned %d rows, want 1", len(got))
	}
}
