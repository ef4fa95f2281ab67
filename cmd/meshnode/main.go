// Command meshnode runs a single STRP or SMRP mesh routing node, or a local
// multi-node simulation, grounded on cmd/atlas/main.go's flag/env wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-envparse"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
)

var opt struct {
	Help      bool
	DebugAddr string
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.StringVar(&opt.DebugAddr, "debug-addr", "", "Start an insecure debug/monitor HTTP server on this address")
}

func main() {
	pflag.Parse()

	args := pflag.Args()
	if opt.Help || len(args) == 0 {
		usage()
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		err = runCmd(ctx, rest)
	case "sim":
		err = simCmd(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown subcommand %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf("usage: %s [options] run [env_file]\n       %s [options] sim <nodes.yaml>\n\noptions:\n%s", os.Args[0], os.Args[0], pflag.CommandLine.FlagUsages())
}

func readEnvFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
