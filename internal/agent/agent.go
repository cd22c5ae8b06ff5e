// Package agent runs the node agent: inventory, node lookup, then heartbeats until
// the context ends.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/izzyreal/nodeagent/internal/apiclient"
	"github.com/izzyreal/nodeagent/internal/config"
	"github.com/izzyreal/nodeagent/internal/discovery"
	"github.com/izzyreal/nodeagent/internal/hardware"
	"github.com/izzyreal/nodeagent/internal/transport"
)

var discoverEndpoint = discovery.Lookup

func Run(ctx context.Context, cfg config.Agent, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	base := logger
	logger = base.With("component", "agent")

	inv, err := hardware.Collect(hardware.Options{InterfaceGlobs: cfg.InterfaceGlobs})
	if err != nil {
		return fmt.Errorf("collect inventory: %w", err)
	}
	logger.Info("inventory collected", "hostname", inv.Hostname, "interfaces", len(inv.Interfaces))

	endpoint, err := resolveEndpoint(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tr, err := transport.New(endpoint, transport.Options{
		Timeout:            cfg.RequestTimeout.Std(),
		CAFile:             cfg.TLS.CAFile,
		CertFile:           cfg.TLS.CertFile,
		KeyFile:            cfg.TLS.KeyFile,
		InsecureSkipVerify: cfg.TLS.Insecure,
		HTTP2:              cfg.TLS.HTTP2,
	})
	if err != nil {
		return fmt.Errorf("build api transport: %w", err)
	}
	api := apiclient.New(tr, base)

	logger.Info("nodeagent started", "api_url", endpoint)
	defer logger.Info("nodeagent stopped")

	result, err := api.LookupNode(ctx, inv, cfg.LookupTimeout.Std(), cfg.LookupInterval.Std())
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	advertise := advertiseAddress(cfg, inv)
	logger.Info("node identified", "uuid", result.NodeUUID(), "agent_url", apiclient.AgentURL(advertise))

	loop := newHeartbeatLoop(api, result.NodeUUID(), advertise, cfg.Heartbeat, logger)
	return loop.run(ctx)
}

func resolveEndpoint(ctx context.Context, cfg config.Agent, logger *slog.Logger) (string, error) {
	if endpoint := strings.TrimSpace(cfg.APIURL); endpoint != "" {
		return endpoint, nil
	}
	if !cfg.Discovery.Enabled {
		return "", fmt.Errorf("api_url is not set and discovery is disabled")
	}
	logger.Info("discovering management api", "service", cfg.Discovery.Service)
	endpoint, err := discoverEndpoint(ctx, cfg.Discovery.Service, cfg.Discovery.Timeout.Std())
	if err != nil {
		return "", fmt.Errorf("discover management api: %w", err)
	}
	logger.Info("management api discovered", "api_url", endpoint)
	return endpoint, nil
}

// advertiseAddress prefers configured values, then the first inventory IPv4 address,
// then the hostname.
func advertiseAddress(cfg config.Agent, inv hardware.Inventory) apiclient.AdvertiseAddress {
	host := strings.TrimSpace(cfg.AdvertiseHost)
	if host == "" {
		host = inv.FirstIPv4()
	}
	if host == "" {
		host = inv.Hostname
	}
	return apiclient.AdvertiseAddress{Host: host, Port: cfg.AdvertisePort}
}
