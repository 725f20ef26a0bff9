package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/units"
	"github.com/charlie0129/acpibatt/pkg/utils/ptr"
)

func TestPrintStatus(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	printStatus(cmd, &statusData{
		adapter: false,
		batteries: []battery.State{
			{
				Slot:                  "BAT0",
				Present:               true,
				Condition:             battery.ConditionDischarging,
				RelativeStateOfCharge: 62,
				CurrentCapacity:       3000,
				MaxCapacity:           4800,
				DesignCapacity:        5000,
				Amperage:              -1500,
				AvgTimeToEmpty:        120,
				Voltage:               11800,
				CycleCount:            33,
				HasTemperature:        true,
				Temperature:           2500,
				LatestErrorType:       battery.ErrorCorruptCapacity,
			},
			{Slot: "BAT1", Condition: battery.ConditionAbsent},
		},
		config: &config.RawFileConfig{StandardPollIntervalMs: ptr.To(60000)},
	})

	got := out.String()
	for _, want := range []string{
		"Battery BAT0:",
		"discharging",
		"62%",
		"Time to empty: 2h0m0s",
		"-1500 mA",
		"11.80 V",
		"Health: 96%",
		"25.0 °C",
		string(battery.ErrorCorruptCapacity),
		"Battery BAT1:",
		"Not installed.",
		"Standard polling interval: 1m0s",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status output is missing %q:\n%s", want, got)
		}
	}
}

func TestFormatMinutes(t *testing.T) {
	if got := formatMinutes(units.UnknownMinutes); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
	if got := formatMinutes(90); got != "1h30m0s" {
		t.Errorf("expected 1h30m0s, got %q", got)
	}
	if got := percent(1, 0); got != 0 {
		t.Errorf("expected 0 for a zero design capacity, got %d", got)
	}
}
