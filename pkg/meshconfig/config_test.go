package meshconfig

import (
	"testing"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

func TestUnmarshalEnvDefaults(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"MESHNODE_SELF=5"}, false); err != nil {
		t.Fatalf("UnmarshalEnv: %v", err)
	}
	if c.Self != 5 {
		t.Errorf("Self = %d, want 5", c.Self)
	}
	if c.Protocol != STRP {
		t.Errorf("Protocol = %q, want STRP", c.Protocol)
	}
	if c.StrpStrategy != "NEXT_LOWER" {
		t.Errorf("StrpStrategy = %q, want NEXT_LOWER", c.StrpStrategy)
	}
	if c.UDPBroadcastAddr != "255.255.255.255:7575" {
		t.Errorf("UDPBroadcastAddr = %q", c.UDPBroadcastAddr)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestUnmarshalEnvOverrides(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{
		"MESHNODE_SELF=9",
		"MESHNODE_SINK=13",
		"MESHNODE_PROTOCOL=SMRP",
		"MESHNODE_SMRP_MAX_TRIES=5",
		"MESHNODE_LOG_LEVEL=debug",
	}, false)
	if err != nil {
		t.Fatalf("UnmarshalEnv: %v", err)
	}
	if c.Sink != mactp.Addr(13) {
		t.Errorf("Sink = %d, want 13", c.Sink)
	}
	if c.Protocol != SMRP {
		t.Errorf("Protocol = %q, want SMRP", c.Protocol)
	}
	if c.SmrpMaxTries != 5 {
		t.Errorf("SmrpMaxTries = %d, want 5", c.SmrpMaxTries)
	}
}

func TestUnmarshalEnvUnknownVariable(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{"MESHNODE_SELF=5", "MESHNODE_BOGUS=1"}, false)
	if err == nil {
		t.Fatal("expected an error for an unknown environment variable")
	}
}

func TestValidateRequiresSelf(t *testing.T) {
	var c Config
	c.Protocol = STRP
	c.StrpStrategy = "NEXT_LOWER"
	if err := c.Validate(); err == nil {
		t.Error("expected an error when Self is unset")
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	var c Config
	c.Self = 5
	c.Protocol = STRP
	c.StrpStrategy = "NOT_A_STRATEGY"
	if err := c.Validate(); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
