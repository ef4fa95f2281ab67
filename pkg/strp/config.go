package strp

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// Default timing parameters, matching the source's STRP.h constants.
const (
	DefaultSenseDuration  = 15 * time.Second
	DefaultBeaconInterval = 30 * time.Second
	DefaultNodeTimeout    = 60 * time.Second
	DefaultQueueCapacity  = 16
)

// Config configures one STRP engine instance.
type Config struct {
	// Self is this node's address. Required.
	Self mactp.Addr

	// Sink is the address treated as the mesh's root. Defaults to
	// mactp.DefaultSink. Self == Sink marks this node as the sink, which
	// never selects a parent or sends application data upstream.
	Sink mactp.Addr

	// Strategy selects the parent-selection policy.
	Strategy Strategy

	// FixedParent is the parent address used when Strategy is Fixed.
	// Required (and must not be mactp.None) in that case.
	FixedParent mactp.Addr

	// Transport is the underlying MAC transport. Required.
	Transport mactp.Transport

	SenseDuration  time.Duration
	BeaconInterval time.Duration
	NodeTimeout    time.Duration
	QueueCapacity  int

	Logger zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.Sink == mactp.None {
		c.Sink = mactp.DefaultSink
	}
	if c.SenseDuration <= 0 {
		c.SenseDuration = DefaultSenseDuration
	}
	if c.BeaconInterval <= 0 {
		c.BeaconInterval = DefaultBeaconInterval
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}

func (c *Config) validate() error {
	if c.Self == mactp.None {
		return fmt.Errorf("strp: Config.Self must not be mactp.None")
	}
	if c.Transport == nil {
		return fmt.Errorf("strp: Config.Transport is required")
	}
	if c.Strategy == Fixed && c.FixedParent == mactp.None {
		return fmt.Errorf("strp: Config.FixedParent is required when Strategy is Fixed")
	}
	return nil
}
