// Command judgeboard is the platform's single binary, split into two
// subcommands the way a judging deployment is actually operated: one or
// more "serve" replicas front the HTTP/websocket API and drive the
// contest lifecycle, while a larger pool of "worker" replicas drain the
// judging queue. Both share the same Postgres, Redis, and NATS.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/judgeboard/platform/internal/config"
	"github.com/judgeboard/platform/internal/logging"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitStartupErr  = 2
	exitSignal      = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: judgeboard <serve|worker> [flags]")
		return exitConfigError
	}

	subcommand := os.Args[1]
	fs := flag.NewFlagSet(subcommand, flag.ContinueOnError)
	cfg, err := config.Load(fs, os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		return exitConfigError
	}
	defer logger.Sync()

	switch subcommand {
	case "serve":
		return runServe(cfg, logger)
	case "worker":
		return runWorker(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q, expected serve or worker\n", subcommand)
		return exitConfigError
	}
}
