// Package meshconfig reads meshnode's configuration from the environment,
// in the same style as pkg/atlas's UnmarshalEnv: a tagged struct walked with
// reflection, defaults baked into the tag itself.
package meshconfig

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/strp"
)

// Protocol selects which routing engine meshnode runs.
type Protocol string

const (
	STRP Protocol = "STRP"
	SMRP Protocol = "SMRP"
)

// Config contains the configuration for one meshnode instance. The env
// struct tag contains the environment variable name and the default value
// if missing, or empty (if not ?=).
type Config struct {
	// Which routing engine to run.
	Protocol Protocol `env:"MESHNODE_PROTOCOL?=STRP"`

	// This node's mesh address. Required, must not be 0.
	Self mactp.Addr `env:"MESHNODE_SELF"`

	// The sink address. Defaults to mactp.DefaultSink if 0.
	Sink mactp.Addr `env:"MESHNODE_SINK"`

	// STRP parent-selection strategy (ignored for SMRP).
	StrpStrategy string `env:"MESHNODE_STRP_STRATEGY?=NEXT_LOWER"`

	// STRP fixed parent address, required when StrpStrategy is FIXED.
	StrpFixedParent mactp.Addr `env:"MESHNODE_STRP_FIXED_PARENT"`

	// SMRP next-hop retry budget (ignored for STRP).
	SmrpMaxTries int `env:"MESHNODE_SMRP_MAX_TRIES"`

	SenseDuration  time.Duration `env:"MESHNODE_SENSE_DURATION"`
	BeaconInterval time.Duration `env:"MESHNODE_BEACON_INTERVAL"`
	NodeTimeout    time.Duration `env:"MESHNODE_NODE_TIMEOUT"`
	QueueCapacity  int           `env:"MESHNODE_QUEUE_CAPACITY"`

	// The UDP broadcast address used by the udpmac transport when running
	// as a standalone OS process (meshnode run).
	UDPBroadcastAddr string `env:"MESHNODE_UDP_BROADCAST_ADDR?=255.255.255.255:7575"`

	// If non-empty, path to a sqlite3 database file used by db/historydb to
	// retain topology history. If empty, history is not recorded.
	HistoryDB string `env:"MESHNODE_HISTORY_DB"`

	// The address for pkg/monitor's debug HTTP server, e.g. "127.0.0.1:6060".
	// If empty, the debug server is not started.
	DebugAddr string `env:"MESHNODE_DEBUG_ADDR"`

	// The minimum log level (e.g., trace, debug, info, warn, error, fatal).
	LogLevel zerolog.Level `env:"MESHNODE_LOG_LEVEL=info"`

	// Whether to log to stdout.
	LogStdout bool `env:"MESHNODE_LOG_STDOUT=true"`

	// Whether to use pretty (human-readable) logs on stdout.
	LogStdoutPretty bool `env:"MESHNODE_LOG_STDOUT_PRETTY=true"`
}

// UnmarshalEnv unmarshals an array of environment variables into c, setting
// default values as appropriate. If incremental is true, default values
// will not be set for missing env vars, but only for empty ones.
func (c *Config) UnmarshalEnv(es []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "MESHNODE_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case Protocol:
			switch strings.ToUpper(val) {
			case "", string(STRP):
				cvf.Set(reflect.ValueOf(STRP))
			case string(SMRP):
				cvf.Set(reflect.ValueOf(SMRP))
			default:
				return fmt.Errorf("env %s: unknown protocol %q", key, val)
			}
		case int:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case mactp.Addr:
			if val == "" {
				cvf.Set(reflect.ValueOf(mactp.None))
			} else if v, err := strconv.ParseUint(val, 10, 8); err == nil {
				cvf.Set(reflect.ValueOf(mactp.Addr(v)))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case time.Duration:
			if val == "" {
				cvf.Set(reflect.ValueOf(time.Duration(0)))
			} else if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		default:
			return fmt.Errorf("unhandled type %T (%s)", cvf.Interface(), env)
		}
	}
	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}

// Validate checks fields that UnmarshalEnv can't verify on its own (cross-
// field requirements, parseable-but-meaningless values).
func (c *Config) Validate() error {
	if c.Self == mactp.None {
		return fmt.Errorf("meshconfig: MESHNODE_SELF is required and must not be 0")
	}
	switch c.Protocol {
	case STRP, SMRP:
	default:
		return fmt.Errorf("meshconfig: unknown MESHNODE_PROTOCOL %q", c.Protocol)
	}
	if c.Protocol == STRP {
		if _, err := strp.ParseStrategy(strings.ToUpper(c.StrpStrategy)); err != nil {
			return fmt.Errorf("meshconfig: %w", err)
		}
	}
	return nil
}

// Logger builds a zerolog.Logger from the configured level and stdout
// options, in the same spirit as pkg/atlas's configureLogging (minus file
// output and SIGHUP log reopening, which meshnode has no use for).
func (c *Config) Logger() zerolog.Logger {
	if !c.LogStdout {
		return zerolog.Nop()
	}
	var w io.Writer = os.Stdout
	if c.LogStdoutPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).Level(c.LogLevel).With().Timestamp().Logger()
}
