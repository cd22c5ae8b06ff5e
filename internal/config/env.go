package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupEnvFunc func(key string) (string, bool)

func applyAgentEnv(cfg *Agent, lookup lookupEnvFunc) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = Duration(d)
	}

	str("NODEAGENT_API_URL", &cfg.APIURL)
	str("NODEAGENT_ADVERTISE_HOST", &cfg.AdvertiseHost)
	if v, ok := lookup("NODEAGENT_ADVERTISE_PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("NODEAGENT_ADVERTISE_PORT: %v", err))
		} else {
			cfg.AdvertisePort = port
		}
	}
	dur("NODEAGENT_LOOKUP_TIMEOUT", &cfg.LookupTimeout)
	dur("NODEAGENT_LOOKUP_INTERVAL", &cfg.LookupInterval)
	str("NODEAGENT_LOG_LEVEL", &cfg.Log.Level)
	str("NODEAGENT_LOG_FORMAT", &cfg.Log.Format)
	if v, ok := lookup("NODEAGENT_DISCOVERY"); ok {
		cfg.Discovery.Enabled = parseBool(v, cfg.Discovery.Enabled)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func applyMockAPIEnv(cfg *MockAPI, lookup lookupEnvFunc) {
	if v, ok := lookup("NODEAGENT_MOCKAPI_ADDR"); ok && strings.TrimSpace(v) != "" {
		cfg.ListenAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("NODEAGENT_MOCKAPI_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("NODEAGENT_MOCKAPI_DB"); ok && strings.TrimSpace(v) != "" {
		cfg.DBPath = strings.TrimSpace(v)
	}
	if v, ok := lookup("NODEAGENT_MDNS_ENABLE"); ok {
		cfg.MDNS.Enabled = parseBool(v, cfg.MDNS.Enabled)
	}
	if v, ok := lookup("NODEAGENT_LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		cfg.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup("NODEAGENT_LOG_FORMAT"); ok && strings.TrimSpace(v) != "" {
		cfg.Log.Format = strings.TrimSpace(v)
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
