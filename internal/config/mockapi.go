package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// MockAPI configures the development management service.
type MockAPI struct {
	ListenAddr       string   `yaml:"listen_addr"`
	GRPCAddr         string   `yaml:"grpc_addr"`
	DBPath           string   `yaml:"db_path"`
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
	MinAgentVersion  string   `yaml:"min_agent_version"`
	MDNS             MDNS     `yaml:"mdns"`
	Log              Log      `yaml:"log"`
}

type MDNS struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

func DefaultMockAPI() MockAPI {
	return MockAPI{
		ListenAddr:       ":6385",
		GRPCAddr:         ":6386",
		DBPath:           "nodeagent-mockapi.db",
		HeartbeatTimeout: Duration(300 * time.Second),
		MDNS: MDNS{
			Enabled: true,
			Service: DefaultService,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

func LoadMockAPI(path string) (MockAPI, error) {
	cfg := DefaultMockAPI()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse YAML in %q: %w", path, err)
		}
	}
	applyMockAPIEnv(&cfg, os.LookupEnv)
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid mockapi config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (cfg MockAPI) Validate() []string {
	var errs []string
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		errs = append(errs, "listen_addr is required")
	}
	if addr := strings.TrimSpace(cfg.GRPCAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Sprintf("grpc_addr %q must be host:port", cfg.GRPCAddr))
		}
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		errs = append(errs, "db_path is required")
	}
	if cfg.HeartbeatTimeout <= 0 {
		errs = append(errs, "heartbeat_timeout must be positive")
	}
	if v := strings.TrimSpace(cfg.MinAgentVersion); v != "" && !semver.IsValid(v) {
		errs = append(errs, fmt.Sprintf("min_agent_version %q is not a valid semantic version", v))
	}
	if cfg.MDNS.Enabled && strings.TrimSpace(cfg.MDNS.Service) == "" {
		errs = append(errs, "mdns.service is required when mdns is enabled")
	}
	errs = append(errs, cfg.Log.validate()...)
	return errs
}
