package metrics

import "testing"

func TestSTRPHeaderAndReset(t *testing.T) {
	s := New(true)
	s.IncParentChanges()
	s.IncBeaconsSent()
	s.IncBeaconsRecv(5)
	s.IncBeaconsRecv(5)

	if got, want := s.Header(), "AggParentChanges,AggBeaconsSent,TotalBeaconsRecv"; got != want {
		t.Errorf("header = %q, want %q", got, want)
	}

	row := s.ReadRow(5)
	if want := "1,1,2"; row != want {
		t.Errorf("row = %q, want %q", row, want)
	}

	// reading again with no intervening increments must show all zeros
	row = s.ReadRow(5)
	if want := "0,0,0"; row != want {
		t.Errorf("row after reset = %q, want %q", row, want)
	}
}

func TestSMRPHeaderOmitsParentChanges(t *testing.T) {
	s := New(false)
	s.IncParentChanges() // no-op for SMRP
	s.IncBeaconsSent()
	s.IncBeaconsRecv(9)

	if got, want := s.Header(), "AggBeaconsSent,TotalBeaconsRecv"; got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if row := s.ReadRow(9); row != "1,1" {
		t.Errorf("row = %q, want %q", row, "1,1")
	}
}

func TestPerAddressIsolation(t *testing.T) {
	s := New(true)
	s.IncBeaconsRecv(3)
	s.IncBeaconsRecv(4)

	if row := s.ReadRow(3); row != "0,0,1" {
		t.Errorf("row(3) = %q, want %q", row, "0,0,1")
	}
	if row := s.ReadRow(4); row != "0,0,1" {
		t.Errorf("row(4) = %q, want %q", row, "0,0,1")
	}
}
