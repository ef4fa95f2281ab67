package smrp

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// Default timing parameters, matching the source's SMRP.h constants.
const (
	DefaultSenseDuration  = 15 * time.Second
	DefaultBeaconInterval = 30 * time.Second
	DefaultNodeTimeout    = 60 * time.Second
	DefaultMaxTries       = 2
	DefaultQueueCapacity  = 16
)

// Config configures one SMRP engine instance.
type Config struct {
	// Self is this node's address. Required.
	Self mactp.Addr

	// Sink is the address next-hop selection falls back to when it finds no
	// qualifying candidate and the requested destination is mactp.None
	// ("don't care, just get it to the sink"); with a real destination the
	// fallback is that destination instead. Defaults to mactp.DefaultSink.
	Sink mactp.Addr

	// Transport is the underlying MAC transport. Required.
	Transport mactp.Transport

	SenseDuration  time.Duration
	BeaconInterval time.Duration
	NodeTimeout    time.Duration

	// MaxTries bounds how many random candidates NextHop samples before
	// giving up and falling back to dest/Sink.
	MaxTries int

	QueueCapacity int

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
	if c.MaxTries <= 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}

func (c *Config) validate() error {
	if c.Self == mactp.None {
		return fmt.Errorf("smrp: Config.Self must not be mactp.None")
	}
	if c.Transport == nil {
		return fmt.Errorf("smrp: Config.Transport is required")
	}
	return nil
}
