package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Store  string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of all config sources, with a
// marker recording which source decided the listen address and store path.
type EffectiveConfigResult struct {
	Config    *Config
	Addr      string
	StorePath string
	Source    string // "flags", "env", or "config"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", "127.0.0.1:4201", "HTTP listen address")
	storePtr := flag.String("store", "./.annotated/store.json", "Path to the annotation store file")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, Store: *storePtr, Config: *cfgPtr, Set: setFlags}
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the ANNOTATED_CONFIG environment variable when the flag was
// not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("ANNOTATED_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEnvOverrides applies ANNOTATED_* environment overrides onto cfg and
// reports whether any env var was used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("ANNOTATED_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("ANNOTATED_STORE_PATH"); v != "" {
		envUsed = true
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ANNOTATED_PROJECT_ROOT"); v != "" {
		envUsed = true
		cfg.Manifest.Root = v
	}
	if v := os.Getenv("ANNOTATED_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Sync.Interval = Duration(d)
		}
	}
	if v := os.Getenv("ANNOTATED_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Limits.RPS = f
		}
	}
	if v := os.Getenv("ANNOTATED_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Burst = n
		}
	}
	if v := os.Getenv("ANNOTATED_JANITOR_CRON"); v != "" {
		envUsed = true
		cfg.Janitor.Cron = v
		cfg.Janitor.Enabled = true
	}
	if v := os.Getenv("ANNOTATED_AUDIT_DIR"); v != "" {
		envUsed = true
		cfg.Logging.AuditDir = v
	}
	if v := os.Getenv("ANNOTATED_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads the config file (missing files yield an empty config),
// applies environment overrides, then lets explicitly-set flags win for the
// listen address and store path.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	fileUsed := true
	if err != nil {
		if !os.IsNotExist(err) {
			return EffectiveConfigResult{}, err
		}
		cfg = &Config{}
		fileUsed = false
	}
	envUsed := LoadEnvOverrides(cfg)

	res := EffectiveConfigResult{Config: cfg}
	switch {
	case fileUsed:
		res.Source = "config"
	case envUsed:
		res.Source = "env"
	default:
		res.Source = "flags"
	}

	res.Addr = cfg.Addr()
	if flags.Set["addr"] {
		res.Addr = flags.Addr
		res.Source = "flags"
	}
	res.StorePath = cfg.Storage.Path
	if res.StorePath == "" || flags.Set["store"] {
		res.StorePath = flags.Store
	}
	return res, nil
}
