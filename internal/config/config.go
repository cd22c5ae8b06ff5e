package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string in YAML ("30s", "5m").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\"", value.Line)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

type Agent struct {
	APIURL         string    `yaml:"api_url"`
	AdvertiseHost  string    `yaml:"advertise_host"`
	AdvertisePort  int       `yaml:"advertise_port"`
	LookupTimeout  Duration  `yaml:"lookup_timeout"`
	LookupInterval Duration  `yaml:"lookup_interval"`
	RequestTimeout Duration  `yaml:"request_timeout"`
	Heartbeat      Heartbeat `yaml:"heartbeat"`
	InterfaceGlobs []string  `yaml:"interface_globs"`
	Discovery      Discovery `yaml:"discovery"`
	TLS            TLS       `yaml:"tls"`
	Log            Log       `yaml:"log"`
}

type Heartbeat struct {
	MinFraction float64  `yaml:"min_fraction"`
	MaxFraction float64  `yaml:"max_fraction"`
	ErrorDelay  Duration `yaml:"error_delay"`
}

type Discovery struct {
	Enabled bool     `yaml:"enabled"`
	Service string   `yaml:"service"`
	Timeout Duration `yaml:"timeout"`
}

type TLS struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Insecure bool   `yaml:"insecure"`
	HTTP2    bool   `yaml:"http2"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultService is the mDNS service type the development API advertises and the
// agent browses for.
const DefaultService = "_nodeagent-api._tcp"

func DefaultAgent() Agent {
	return Agent{
		AdvertisePort:  9999,
		LookupTimeout:  Duration(300 * time.Second),
		LookupInterval: Duration(time.Second),
		RequestTimeout: Duration(30 * time.Second),
		Heartbeat: Heartbeat{
			MinFraction: 0.3,
			MaxFraction: 0.6,
			ErrorDelay:  Duration(5 * time.Second),
		},
		Discovery: Discovery{
			Enabled: true,
			Service: DefaultService,
			Timeout: Duration(5 * time.Second),
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// LoadAgent reads the agent configuration. An empty path means defaults plus
// environment overrides only.
func LoadAgent(path string) (Agent, error) {
	cfg := DefaultAgent()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse YAML in %q: %w", path, err)
		}
	}
	if err := applyAgentEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid agent config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ParseAgent decodes YAML over the defaults without consulting the environment.
func ParseAgent(data []byte, source string) (Agent, error) {
	cfg := DefaultAgent()
	if err := decodeStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse YAML in %q: %w", source, err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (cfg Agent) Validate() []string {
	var errs []string

	if u := strings.TrimSpace(cfg.APIURL); u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, "api_url must start with http:// or https://")
	}
	if cfg.APIURL == "" && !cfg.Discovery.Enabled {
		errs = append(errs, "api_url is required when discovery is disabled")
	}
	if cfg.AdvertisePort <= 0 || cfg.AdvertisePort > 65535 {
		errs = append(errs, fmt.Sprintf("advertise_port %d out of range", cfg.AdvertisePort))
	}
	if cfg.LookupTimeout < 0 {
		errs = append(errs, "lookup_timeout must not be negative")
	}
	if cfg.LookupInterval <= 0 {
		errs = append(errs, "lookup_interval must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "request_timeout must be positive")
	}
	hb := cfg.Heartbeat
	if hb.MinFraction <= 0 || hb.MaxFraction > 1 || hb.MinFraction > hb.MaxFraction {
		errs = append(errs, "heartbeat fractions must satisfy 0 < min_fraction <= max_fraction <= 1")
	}
	if hb.ErrorDelay <= 0 {
		errs = append(errs, "heartbeat.error_delay must be positive")
	}
	if cfg.Discovery.Enabled {
		if strings.TrimSpace(cfg.Discovery.Service) == "" {
			errs = append(errs, "discovery.service is required when discovery is enabled")
		}
		if cfg.Discovery.Timeout <= 0 {
			errs = append(errs, "discovery.timeout must be positive")
		}
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}
	errs = append(errs, cfg.Log.validate()...)
	return errs
}

func (l Log) validate() []string {
	var errs []string
	if _, err := parseLevel(l.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug,info,warn,error", l.Level))
	}
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of text,json", l.Format))
	}
	return errs
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
