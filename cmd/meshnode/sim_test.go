package main

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/meshconfig"
	"github.com/arjunv/wsnmesh/pkg/strp"
)

const exampleYAML = `
protocol: STRP
sink: 1
rssi: -50
senseDuration: 1s
beaconInterval: 2s
nodes:
  - addr: 1
  - addr: 2
  - addr: 3
    protocol: SMRP
    maxTries: 4
`

func TestParseSimFile(t *testing.T) {
	var sf simFile
	if err := yaml.Unmarshal([]byte(exampleYAML), &sf); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if sf.Sink != mactp.Addr(1) {
		t.Errorf("Sink = %d, want 1", sf.Sink)
	}
	if sf.SenseDuration != time.Second {
		t.Errorf("SenseDuration = %v, want 1s", sf.SenseDuration)
	}
	if len(sf.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3", len(sf.Nodes))
	}
	if sf.Nodes[2].Protocol != meshconfig.SMRP || sf.Nodes[2].MaxTries != 4 {
		t.Errorf("Nodes[2] = %+v", sf.Nodes[2])
	}
}

func TestNewSimEngineDefaultsToSTRP(t *testing.T) {
	sf := simFile{Sink: 1, SenseDuration: time.Millisecond, BeaconInterval: time.Millisecond, NodeTimeout: time.Hour}
	n := simNode{Addr: 2}

	eng, err := newSimEngine(sf, n, noopTransport{}, noopLogger())
	if err != nil {
		t.Fatalf("newSimEngine: %v", err)
	}
	if eng == nil {
		t.Fatal("newSimEngine returned a nil engine")
	}
	if _, ok := eng.(*strp.Engine); !ok {
		t.Errorf("newSimEngine with no protocol = %T, want *strp.Engine", eng)
	}
}

func TestNewSimEngineRejectsUnknownStrategy(t *testing.T) {
	sf := simFile{Sink: 1}
	n := simNode{Addr: 2, Strategy: "NOT_A_STRATEGY"}

	if _, err := newSimEngine(sf, n, noopTransport{}, noopLogger()); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
