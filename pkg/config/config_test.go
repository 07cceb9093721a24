package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadParsesYAML verifies the full config shape parses, including
// duration values given as strings and bare seconds.
func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: 0.0.0.0
  port: 9000
storage:
  path: /tmp/ann/store.json
sync:
  interval: 500ms
watch:
  poll_interval: 250ms
  annotation_timeout: 30
  diff_timeout: 10m
limits:
  rps: 5
  burst: 10
janitor:
  enabled: true
  cron: "*/5 * * * *"
  idle_after: 15m
manifest:
  root: /srv/app
logging:
  level: debug
  audit_dir: /var/log/annotated
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Fatalf("Addr: %q", cfg.Addr())
	}
	if cfg.Storage.Path != "/tmp/ann/store.json" {
		t.Fatalf("storage path: %q", cfg.Storage.Path)
	}
	if cfg.Sync.Interval.Std() != 500*time.Millisecond {
		t.Fatalf("sync interval: %v", cfg.Sync.Interval.Std())
	}
	if cfg.Watch.AnnotationTimeout.Std() != 30*time.Second {
		t.Fatalf("bare-number duration: %v", cfg.Watch.AnnotationTimeout.Std())
	}
	if cfg.Watch.DiffTimeout.Std() != 10*time.Minute {
		t.Fatalf("diff timeout: %v", cfg.Watch.DiffTimeout.Std())
	}
	if !cfg.Janitor.Enabled || cfg.Janitor.Cron != "*/5 * * * *" {
		t.Fatalf("janitor: %#v", cfg.Janitor)
	}
	if cfg.Limits.RPS != 5 || cfg.Limits.Burst != 10 {
		t.Fatalf("limits: %#v", cfg.Limits)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging: %#v", cfg.Logging)
	}
}

// TestAddrDefaults verifies the zero config yields the loopback default.
func TestAddrDefaults(t *testing.T) {
	var cfg Config
	if cfg.Addr() != "127.0.0.1:4201" {
		t.Fatalf("default addr: %q", cfg.Addr())
	}
}

// TestDurationOr verifies the unset-duration fallback.
func TestDurationOr(t *testing.T) {
	var d Duration
	if d.Or(2*time.Second) != 2*time.Second {
		t.Fatalf("zero duration should fall back")
	}
	d = Duration(time.Minute)
	if d.Or(2*time.Second) != time.Minute {
		t.Fatalf("set duration should win")
	}
}

// TestEnvOverrides verifies ANNOTATED_* variables override file values.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANNOTATED_ADDR", "0.0.0.0:5000")
	t.Setenv("ANNOTATED_STORE_PATH", "/data/store.json")
	t.Setenv("ANNOTATED_SYNC_INTERVAL", "3s")
	t.Setenv("ANNOTATED_RATE_RPS", "2.5")
	t.Setenv("ANNOTATED_JANITOR_CRON", "0 * * * *")

	var cfg Config
	if !LoadEnvOverrides(&cfg) {
		t.Fatalf("expected envUsed=true")
	}
	if cfg.Addr() != "0.0.0.0:5000" {
		t.Fatalf("addr override: %q", cfg.Addr())
	}
	if cfg.Storage.Path != "/data/store.json" {
		t.Fatalf("store override: %q", cfg.Storage.Path)
	}
	if cfg.Sync.Interval.Std() != 3*time.Second {
		t.Fatalf("sync override: %v", cfg.Sync.Interval.Std())
	}
	if cfg.Limits.RPS != 2.5 {
		t.Fatalf("rps override: %v", cfg.Limits.RPS)
	}
	if !cfg.Janitor.Enabled || cfg.Janitor.Cron != "0 * * * *" {
		t.Fatalf("janitor override: %#v", cfg.Janitor)
	}
}

// TestLoadEffectivePrecedence verifies flags win over env, env over file,
// and the source marker follows the winner for the listen address.
func TestLoadEffectivePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7000\nstorage:\n  path: "+dir+"/from-file.json\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// File only.
	res, err := LoadEffective(Flags{Config: path, Store: "./fallback.json", Set: map[string]bool{"config": true}})
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if res.Addr != "127.0.0.1:7000" || res.Source != "config" {
		t.Fatalf("file precedence: %+v", res)
	}
	if res.StorePath != dir+"/from-file.json" {
		t.Fatalf("store from file: %q", res.StorePath)
	}

	// Env overrides file.
	t.Setenv("ANNOTATED_ADDR", "127.0.0.1:8000")
	res, err = LoadEffective(Flags{Config: path, Store: "./fallback.json", Set: map[string]bool{"config": true}})
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if res.Addr != "127.0.0.1:8000" {
		t.Fatalf("env precedence: %+v", res)
	}

	// Explicit flag beats both.
	res, err = LoadEffective(Flags{
		Addr:   "127.0.0.1:9999",
		Config: path,
		Store:  "./fallback.json",
		Set:    map[string]bool{"config": true, "addr": true},
	})
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if res.Addr != "127.0.0.1:9999" || res.Source != "flags" {
		t.Fatalf("flag precedence: %+v", res)
	}
}

// TestLoadEffectiveMissingFile verifies a missing config file is not an
// error; flag defaults fill in.
func TestLoadEffectiveMissingFile(t *testing.T) {
	res, err := LoadEffective(Flags{
		Addr:   "127.0.0.1:4201",
		Config: filepath.Join(t.TempDir(), "nope.yaml"),
		Store:  "./.annotated/store.json",
		Set:    map[string]bool{},
	})
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if res.Addr != "127.0.0.1:4201" || res.StorePath != "./.annotated/store.json" {
		t.Fatalf("defaults: %+v", res)
	}
	if res.Source != "flags" {
		t.Fatalf("source: %q", res.Source)
	}
}
