package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetInt("scheduler.interval"); got != 5 {
		t.Errorf("scheduler.interval = %d, want 5", got)
	}
	if got := cfg.GetFloat64("utilization-limit.cpu"); got != 0.9 {
		t.Errorf("utilization-limit.cpu = %v, want 0.9", got)
	}
	if got := cfg.GetBool("smtp.enable"); got != false {
		t.Errorf("smtp.enable = %v, want false", got)
	}
	if got := cfg.GetBool("task.allow-duplicate-id"); got != false {
		t.Errorf("task.allow-duplicate-id = %v, want false", got)
	}
}

func TestLoadMergesOverrideFile(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "override.yaml")
	if err := os.WriteFile(overridePath, []byte("scheduler:\n  interval: 30\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	cfg, err := Load(overridePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetInt("scheduler.interval"); got != 30 {
		t.Errorf("scheduler.interval = %d, want 30 (from override)", got)
	}
	// Keys the override doesn't mention keep their bundled default.
	if got := cfg.GetInt("scheduler.load-nretry"); got != 3 {
		t.Errorf("scheduler.load-nretry = %d, want 3 (default preserved)", got)
	}
}

func TestSetOverridesAtRuntime(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Set("scheduler.max-process", 4)
	if got := cfg.GetInt("scheduler.max-process"); got != 4 {
		t.Errorf("scheduler.max-process = %d, want 4", got)
	}
}

func TestGenerateConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generated.yaml")
	if err := GenerateConfig(path); err != nil {
		t.Fatalf("GenerateConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read generated config: %v", err)
	}
	if len(data) == 0 {
		t.Errorf("generated config file is empty")
	}
}
