package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/mactp/simmac"
	"github.com/arjunv/wsnmesh/pkg/meshconfig"
	"github.com/arjunv/wsnmesh/pkg/monitor"
	"github.com/arjunv/wsnmesh/pkg/smrp"
	"github.com/arjunv/wsnmesh/pkg/strp"
)

// simFile is the nodes.yaml layout for meshnode sim: a handful of nodes
// sharing one in-process simmac.Medium, useful for local multi-node demos
// without any real networking.
type simFile struct {
	Protocol       meshconfig.Protocol `yaml:"protocol"`
	Sink           mactp.Addr          `yaml:"sink"`
	RSSI           int16               `yaml:"rssi"`
	SenseDuration  time.Duration       `yaml:"senseDuration"`
	BeaconInterval time.Duration       `yaml:"beaconInterval"`
	NodeTimeout    time.Duration       `yaml:"nodeTimeout"`
	DebugAddr      string              `yaml:"debugAddr"`
	Nodes          []simNode           `yaml:"nodes"`
}

type simNode struct {
	Addr        mactp.Addr          `yaml:"addr"`
	Protocol    meshconfig.Protocol `yaml:"protocol"`
	Strategy    string              `yaml:"strategy"`
	FixedParent mactp.Addr          `yaml:"fixedParent"`
	MaxTries    int                 `yaml:"maxTries"`
}

func simCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("sim: expected exactly one nodes.yaml argument")
	}

	buf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	var sf simFile
	if err := yaml.Unmarshal(buf, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if sf.Sink == mactp.None {
		sf.Sink = mactp.DefaultSink
	}
	if len(sf.Nodes) == 0 {
		return fmt.Errorf("sim: nodes.yaml must list at least one node")
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	rssi := simmac.FixedRSSI(-50)
	if sf.RSSI != 0 {
		rssi = simmac.FixedRSSI(sf.RSSI)
	}
	medium := simmac.NewMedium(rssi)

	engines := make(map[mactp.Addr]engine, len(sf.Nodes))
	for _, n := range sf.Nodes {
		tr := medium.Join(n.Addr, 32)
		eng, err := newSimEngine(sf, n, tr, log)
		if err != nil {
			return fmt.Errorf("node %d: %w", n.Addr, err)
		}
		engines[n.Addr] = eng
	}

	errCh := make(chan error, len(engines))
	for addr, eng := range engines {
		addr, eng := addr, eng
		go func() {
			if err := eng.Start(ctx); err != nil {
				errCh <- fmt.Errorf("node %d: %w", addr, err)
				return
			}
			errCh <- nil
		}()
	}
	for range engines {
		if err := <-errCh; err != nil {
			return err
		}
	}
	defer func() {
		for _, eng := range engines {
			eng.Close()
		}
	}()

	if addr := debugAddrSim(&sf); addr != "" {
		mux := http.NewServeMux()
		for a, eng := range engines {
			h := &monitor.Handler{Self: a, Transport: eng}
			mux.Handle(fmt.Sprintf("/%d/", a), http.StripPrefix(fmt.Sprintf("/%d", a), h.Mux()))
		}
		go func() {
			log.Warn().Str("addr", addr).Msg("starting insecure debug server")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	<-ctx.Done()
	return ctx.Err()
}

func newSimEngine(sf simFile, n simNode, tr mactp.Transport, log zerolog.Logger) (engine, error) {
	protocol := n.Protocol
	if protocol == "" {
		protocol = sf.Protocol
	}
	if protocol == "" {
		protocol = meshconfig.STRP
	}

	switch protocol {
	case meshconfig.SMRP:
		maxTries := n.MaxTries
		return smrp.New(smrp.Config{
			Self:           n.Addr,
			Sink:           sf.Sink,
			Transport:      tr,
			SenseDuration:  sf.SenseDuration,
			BeaconInterval: sf.BeaconInterval,
			NodeTimeout:    sf.NodeTimeout,
			MaxTries:       maxTries,
			Logger:         log,
		})
	default:
		strategyName := n.Strategy
		if strategyName == "" {
			strategyName = "NEXT_LOWER"
		}
		strategy, err := strp.ParseStrategy(strings.ToUpper(strategyName))
		if err != nil {
			return nil, err
		}
		return strp.New(strp.Config{
			Self:           n.Addr,
			Sink:           sf.Sink,
			Strategy:       strategy,
			FixedParent:    n.FixedParent,
			Transport:      tr,
			SenseDuration:  sf.SenseDuration,
			BeaconInterval: sf.BeaconInterval,
			NodeTimeout:    sf.NodeTimeout,
			Logger:         log,
		})
	}
}

func debugAddrSim(sf *simFile) string {
	if opt.DebugAddr != "" {
		return opt.DebugAddr
	}
	return sf.DebugAddr
}
