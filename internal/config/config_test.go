package config

import (
	"os"
	"testing"
)

func unsetBuildEnv() {
	_ = os.Unsetenv("CREWLEDGER_BUILD_TARGET")
	_ = os.Unsetenv("CREWLEDGER_DB_DRIVER")
	_ = os.Unsetenv("CREWLEDGER_CONFIRM_MODE")
}

func TestResolveDefaultsLocal(t *testing.T) {
	unsetBuildEnv()
	defer unsetBuildEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.ConfirmMode != ConfirmAuto {
		t.Fatalf("unexpected defaults: %s %s", cfg.DBDriver, cfg.ConfirmMode)
	}
}

func TestResolveDefaultsCloud(t *testing.T) {
	unsetBuildEnv()
	_ = os.Setenv("CREWLEDGER_BUILD_TARGET", "cloud")
	defer unsetBuildEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("unexpected mapping: %s", cfg.DBDriver)
	}
}

func TestResolveDefaultsDriverOverride(t *testing.T) {
	unsetBuildEnv()
	_ = os.Setenv("CREWLEDGER_BUILD_TARGET", "local")
	_ = os.Setenv("CREWLEDGER_DB_DRIVER", "postgres")
	defer unsetBuildEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("override failed, got %s", cfg.DBDriver)
	}
}

func TestResolveDefaultsRejectsUnknownTarget(t *testing.T) {
	unsetBuildEnv()
	_ = os.Setenv("CREWLEDGER_BUILD_TARGET", "mainframe")
	defer unsetBuildEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for unknown build target")
	}
}

func TestResolveDefaultsRejectsUnknownConfirmMode(t *testing.T) {
	unsetBuildEnv()
	_ = os.Setenv("CREWLEDGER_CONFIRM_MODE", "sometimes")
	defer unsetBuildEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for unknown confirm mode")
	}
}
