package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arjunv/wsnmesh/db/historydb"
	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/mactp/udpmac"
	"github.com/arjunv/wsnmesh/pkg/meshconfig"
	"github.com/arjunv/wsnmesh/pkg/monitor"
	"github.com/arjunv/wsnmesh/pkg/routing"
	"github.com/arjunv/wsnmesh/pkg/smrp"
	"github.com/arjunv/wsnmesh/pkg/strp"
)

// engine is implemented by both *strp.Engine and *smrp.Engine.
type engine interface {
	routing.Transport
	Start(ctx context.Context) error
}

// runCmd starts one node talking over udpmac, reading its config from the
// environment (or from an env file, if one is given).
func runCmd(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("run: too many arguments")
	}

	var e []string
	if len(args) == 0 {
		e = os.Environ()
	} else {
		x, err := readEnvFile(args[0])
		if err != nil {
			return fmt.Errorf("read env file: %w", err)
		}
		e = x
	}

	var c meshconfig.Config
	if err := c.UnmarshalEnv(e, false); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	log := c.Logger().With().Str("component", "meshnode").Logger()

	mac, err := udpmac.New(udpmac.Config{Self: c.Self, BroadcastAddr: c.UDPBroadcastAddr})
	if err != nil {
		return fmt.Errorf("start udpmac: %w", err)
	}
	defer mac.Close()

	eng, err := newEngine(c, mac, log)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if addr := debugAddr(&c); addr != "" {
		h := &monitor.Handler{Self: c.Self, Transport: eng, MAC: mac}
		if c.HistoryDB != "" {
			db, err := historydb.Open(c.HistoryDB)
			if err != nil {
				return fmt.Errorf("open history db: %w", err)
			}
			defer db.Close()
			h.History = db
			go recordHistory(ctx, db, eng, c.Self, c.BeaconInterval)
		}
		go func() {
			log.Warn().Str("addr", addr).Msg("starting insecure debug server")
			if err := http.ListenAndServe(addr, h.Mux()); err != nil {
				log.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	<-ctx.Done()
	return ctx.Err()
}

// newEngine constructs either an strp.Engine or an smrp.Engine from c.
func newEngine(c meshconfig.Config, mac mactp.Transport, log zerolog.Logger) (engine, error) {
	switch c.Protocol {
	case meshconfig.SMRP:
		return smrp.New(smrp.Config{
			Self:           c.Self,
			Sink:           c.Sink,
			Transport:      mac,
			SenseDuration:  c.SenseDuration,
			BeaconInterval: c.BeaconInterval,
			NodeTimeout:    c.NodeTimeout,
			MaxTries:       c.SmrpMaxTries,
			QueueCapacity:  c.QueueCapacity,
			Logger:         log,
		})
	default:
		strategy, err := strp.ParseStrategy(strings.ToUpper(c.StrpStrategy))
		if err != nil {
			return nil, err
		}
		return strp.New(strp.Config{
			Self:           c.Self,
			Sink:           c.Sink,
			Strategy:       strategy,
			FixedParent:    c.StrpFixedParent,
			Transport:      mac,
			SenseDuration:  c.SenseDuration,
			BeaconInterval: c.BeaconInterval,
			NodeTimeout:    c.NodeTimeout,
			QueueCapacity:  c.QueueCapacity,
			Logger:         log,
		})
	}
}

func debugAddr(c *meshconfig.Config) string {
	if opt.DebugAddr != "" {
		return opt.DebugAddr
	}
	return c.DebugAddr
}
