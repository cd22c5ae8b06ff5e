package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/izzyreal/nodeagent/internal/agent"
	"github.com/izzyreal/nodeagent/internal/config"
	"github.com/izzyreal/nodeagent/internal/hardware"
	"github.com/izzyreal/nodeagent/internal/mockapi"
	"github.com/izzyreal/nodeagent/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

var errUsage = errors.New("usage error")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "agent":
		err = runAgent(ctx, args[1:], stderr)
	case "mockapi":
		err = runMockAPI(ctx, args[1:], stderr)
	case "inventory":
		err = runInventory(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.Current())
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "nodeagent: %v\n", err)
		return 1
	}
}

func parseConfigFlag(name string, args []string, stderr io.Writer) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("NODEAGENT_CONFIG"), "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return "", errUsage
	}
	return strings.TrimSpace(*configPath), nil
}

func runAgent(ctx context.Context, args []string, stderr io.Writer) error {
	path, err := parseConfigFlag("agent", args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.LoadAgent(path)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	return agent.Run(ctx, cfg, logger)
}

func runMockAPI(ctx context.Context, args []string, stderr io.Writer) error {
	path, err := parseConfigFlag("mockapi", args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.LoadMockAPI(path)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	return mockapi.Run(ctx, cfg, logger)
}

func runInventory(args []string, stdout, stderr io.Writer) error {
	path, err := parseConfigFlag("inventory", args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.LoadAgent(path)
	if err != nil {
		return err
	}
	inv, err := hardware.Collect(hardware.Options{InterfaceGlobs: cfg.InterfaceGlobs})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(inv)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `nodeagent - node registration and heartbeat agent

Usage:
  nodeagent <command> [-config path]

Commands:
  agent      Look up this node and heartbeat to the management API
  mockapi    Run a development management API
  inventory  Print the hardware inventory sent on lookup
  version    Print the agent version
  help       Show this help

The config path defaults to $NODEAGENT_CONFIG.
`)
}
