// Package config resolves the ambient-environment configuration described
// in spec.md §6 into a single immutable Config value passed into the
// daemon constructor. There are no package-level globals (spec.md §9):
// every component that needs a tunable receives it through Config.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// CostMode selects how the Neighbor Prober derives a live adjacency's cost
// (spec.md §4.A). A single daemon picks one mode for its entire run.
type CostMode int

const (
	// CostStatic uses each neighbor's configured static cost.
	CostStatic CostMode = iota
	// CostMeasured uses the quantized round-trip time of the last
	// successful probe.
	CostMeasured
)

func (m CostMode) String() string {
	if m == CostMeasured {
		return "measured"
	}
	return "static"
}

// Defaults for the knobs spec.md leaves to the implementer.
const (
	DefaultLSAPort         = 5000
	DefaultProbeInterval   = 2 * time.Second
	DefaultProbeTimeout    = 500 * time.Millisecond
	DefaultRefreshInterval = 30 * time.Second
	DefaultManagedPrefix   = 24
)

// NeighborSpec is one entry of the configured neighbor set (spec.md §3).
// Immutable after startup.
type NeighborSpec struct {
	Name       string
	IP         netip.Addr
	StaticCost int
}

// Config is the fully resolved configuration for one daemon instance.
type Config struct {
	SelfID   netip.Addr
	SelfName string

	Neighbors []NeighborSpec

	LSAPort          int
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	RefreshInterval  time.Duration // 0 disables the periodic refresh (spec.md §4.B)
	CostMode         CostMode
	ManagedPrefixLen int // bits, e.g. 24 for a /24 (spec.md §4.E)
	StartupDelay     time.Duration
	LogLevel         string
}

// fileConfig mirrors the optional YAML file layout; env vars win over it,
// and CLI flags win over both (spec.md §6, SPEC_FULL.md §10.3).
type fileConfig struct {
	SelfID          string `yaml:"self_id"`
	SelfName        string `yaml:"self_name"`
	Neighbors       string `yaml:"neighbors"`
	LSAPort         int    `yaml:"lsa_port"`
	ProbeInterval   string `yaml:"probe_interval"`
	RefreshInterval string `yaml:"refresh_interval"`
	CostMode        string `yaml:"cost_mode"`
	LogLevel        string `yaml:"log_level"`
}

// Load resolves configuration from, in increasing priority: an optional
// YAML file (LSROUTED_CONFIG_FILE), ambient environment variables, and CLI
// flags (args, excluding argv[0]). A missing self id/name or an
// unparseable neighbor list is a fatal configuration error (spec.md §7).
func Load(args []string) (*Config, error) {
	cfg := &Config{
		LSAPort:          DefaultLSAPort,
		ProbeInterval:    DefaultProbeInterval,
		ProbeTimeout:     DefaultProbeTimeout,
		RefreshInterval:  DefaultRefreshInterval,
		CostMode:         CostStatic,
		ManagedPrefixLen: DefaultManagedPrefix,
		LogLevel:         "INFO",
	}

	var selfID, selfName, neighbors, costMode string

	if path, ok := os.LookupEnv("LSROUTED_CONFIG_FILE"); ok {
		fc, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		selfID, selfName, neighbors, costMode = fc.SelfID, fc.SelfName, fc.Neighbors, fc.CostMode
		if fc.LSAPort != 0 {
			cfg.LSAPort = fc.LSAPort
		}
		if fc.ProbeInterval != "" {
			if d, err := time.ParseDuration(fc.ProbeInterval); err == nil {
				cfg.ProbeInterval = d
			}
		}
		if fc.RefreshInterval != "" {
			if d, err := time.ParseDuration(fc.RefreshInterval); err == nil {
				cfg.RefreshInterval = d
			}
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
	}

	if v, ok := os.LookupEnv("LSROUTED_SELF_ID"); ok {
		selfID = v
	}
	if v, ok := os.LookupEnv("LSROUTED_SELF_NAME"); ok {
		selfName = v
	}
	if v, ok := os.LookupEnv("LSROUTED_NEIGHBORS"); ok {
		neighbors = v
	}
	if v, ok := os.LookupEnv("LSROUTED_COST_MODE"); ok {
		costMode = v
	}
	if v, ok := os.LookupEnv("LSROUTED_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	flags := pflag.NewFlagSet("lsrouted", pflag.ContinueOnError)
	fSelfID := flags.String("self-id", selfID, "router id (own IPv4 on the fabric)")
	fSelfName := flags.String("self-name", selfName, "human-readable name used in logs")
	fNeighbors := flags.String("neighbors", neighbors, "bracketed neighbor list, e.g. [r1,172.20.1.3,1],[r3,172.20.3.3,1]")
	fLSAPort := flags.Int("lsa-port", cfg.LSAPort, "UDP port for LSA flooding")
	fProbeInterval := flags.Duration("probe-interval", cfg.ProbeInterval, "neighbor probe cycle interval")
	fRefreshInterval := flags.Duration("refresh-interval", cfg.RefreshInterval, "periodic LSA refresh interval, 0 disables")
	fCostMode := flags.String("cost-mode", costMode, "static or measured")
	fStartupDelay := flags.Duration("startup-delay", cfg.StartupDelay, "delay before the first probe cycle, to let the network settle")
	fLogLevel := flags.String("log-level", cfg.LogLevel, "NONE, WARN, INFO, or DEBUG")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	selfID, selfName, neighbors, costMode = *fSelfID, *fSelfName, *fNeighbors, *fCostMode
	cfg.LSAPort = *fLSAPort
	cfg.ProbeInterval = *fProbeInterval
	cfg.RefreshInterval = *fRefreshInterval
	cfg.StartupDelay = *fStartupDelay
	cfg.LogLevel = *fLogLevel

	if selfID == "" {
		return nil, errors.New("missing router id (LSROUTED_SELF_ID / --self-id)")
	}
	addr, err := netip.ParseAddr(selfID)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("invalid router id %q: must be an IPv4 address", selfID)
	}
	cfg.SelfID = addr

	if selfName == "" {
		return nil, errors.New("missing router name (LSROUTED_SELF_NAME / --self-name)")
	}
	cfg.SelfName = selfName

	cfg.Neighbors, err = ParseNeighborList(neighbors)
	if err != nil {
		return nil, fmt.Errorf("invalid neighbor list: %w", err)
	}

	switch strings.ToLower(costMode) {
	case "", "static":
		cfg.CostMode = CostStatic
	case "measured":
		cfg.CostMode = CostMeasured
	default:
		return nil, fmt.Errorf("invalid cost mode %q: must be static or measured", costMode)
	}

	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ParseNeighborList parses the bracketed triple-list grammar confirmed by
// the original Python implementation's Formatter.formatar_vizinhos
// (original_source/router/formater.py): "[name, ip, cost],[name, ip, cost]".
// An empty string yields an empty, non-nil slice (an isolated node, spec.md
// §8 boundary behaviors).
func ParseNeighborList(s string) ([]NeighborSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []NeighborSpec{}, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("neighbor list must be bracketed triples: %q", s)
	}

	body := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	entries := strings.Split(body, "],[")

	out := make([]NeighborSpec, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, entry := range entries {
		parts := strings.Split(entry, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("neighbor entry %q: expected name,ip,cost", entry)
		}

		name := strings.TrimSpace(parts[0])
		ipStr := strings.TrimSpace(parts[1])
		costStr := strings.TrimSpace(parts[2])

		ip, err := netip.ParseAddr(ipStr)
		if err != nil || !ip.Is4() {
			return nil, fmt.Errorf("neighbor %q: invalid IPv4 address %q", name, ipStr)
		}

		cost, err := strconv.Atoi(costStr)
		if err != nil || cost <= 0 {
			return nil, fmt.Errorf("neighbor %q: invalid cost %q", name, costStr)
		}

		if seen[name] {
			return nil, fmt.Errorf("duplicate neighbor name %q", name)
		}
		seen[name] = true

		out = append(out, NeighborSpec{Name: name, IP: ip, StaticCost: cost})
	}

	return out, nil
}
