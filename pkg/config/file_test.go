package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should load as empty config: %v", err)
	}

	if _, ok := f.PollingPeriodOverride(); ok {
		t.Errorf("polling override should be unset by default")
	}
	if f.EstimateCycleCountDivisor() != 6 {
		t.Errorf("expected cycle count divisor 6, got %d", f.EstimateCycleCountDivisor())
	}
	if f.FirstPollDelay() != 4*time.Second {
		t.Errorf("expected first poll delay 4s, got %s", f.FirstPollDelay())
	}
	if f.StartupDelay() != 0 {
		t.Errorf("expected no startup delay, got %s", f.StartupDelay())
	}
	if f.StandardPollInterval() != 30*time.Second {
		t.Errorf("expected standard interval 30s, got %s", f.StandardPollInterval())
	}
	if f.Firmware() != FirmwareHost {
		t.Errorf("expected host firmware, got %q", f.Firmware())
	}
	if f.AdapterCheckInterval() != 2*time.Second {
		t.Errorf("expected adapter check interval 2s, got %s", f.AdapterCheckInterval())
	}
	if f.CorrectCorruptCapacities() || f.UseExtendedInformation() {
		t.Errorf("boolean options should default to false")
	}
}

func TestFileLoad(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(empty); err != nil {
		t.Fatalf("empty file should load: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(bad); err == nil {
		t.Fatalf("expected error for malformed file")
	}

	good := filepath.Join(dir, "good.json")
	content := `{
  "pollingPeriodOverride": 0,
  "useExtendedInformation": true,
  "correctCorruptCapacities": true,
  "currentDischargeRateMax": 15000,
  "standardPollIntervalMs": 10000,
  "adapterCheckIntervalMs": 0,
  "firmware": "fixture",
  "fixturePath": "/tmp/fw.yaml"
}`
	if err := os.WriteFile(good, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := NewFile(good)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	period, ok := f.PollingPeriodOverride()
	if !ok || period != 0 {
		t.Errorf("expected continuous polling override, got %s (%t)", period, ok)
	}
	if !f.UseExtendedInformation() || !f.CorrectCorruptCapacities() {
		t.Errorf("expected boolean options to be loaded")
	}
	if f.CurrentDischargeRateMax() != 15000 {
		t.Errorf("expected discharge rate max 15000, got %d", f.CurrentDischargeRateMax())
	}
	if f.StandardPollInterval() != 10*time.Second {
		t.Errorf("expected 10s, got %s", f.StandardPollInterval())
	}
	if f.AdapterCheckInterval() != 0 {
		t.Errorf("expected adapter re-read disabled, got %s", f.AdapterCheckInterval())
	}
	if f.Firmware() != FirmwareFixture || f.FixturePath() != "/tmp/fw.yaml" {
		t.Errorf("unexpected firmware selection %q %q", f.Firmware(), f.FixturePath())
	}
}

func TestFileSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acpibatt.json")
	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}

	f.SetStandardPollInterval(15 * time.Second)
	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	reloaded, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.StandardPollInterval() != 15*time.Second {
		t.Errorf("expected 15s after reload, got %s", reloaded.StandardPollInterval())
	}
	if !reloaded.AllowNonRootAccess() {
		t.Errorf("expected non-root access after reload")
	}

	raw, err := NewRawFileConfigFromConfig(reloaded)
	if err != nil {
		t.Fatal(err)
	}
	if raw.PollingPeriodOverride != nil {
		t.Errorf("unset override should stay unset")
	}
	if *raw.StandardPollIntervalMs != 15000 {
		t.Errorf("expected 15000ms, got %d", *raw.StandardPollIntervalMs)
	}
}
