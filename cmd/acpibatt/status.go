package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/client"
	"github.com/charlie0129/acpibatt/pkg/config"
)

type statusData struct {
	adapter   bool
	batteries []battery.State
	config    *config.RawFileConfig
}

type statusJSON struct {
	AdapterConnected bool                  `json:"adapterConnected"`
	Batteries        []battery.State       `json:"batteries"`
	Configuration    *config.RawFileConfig `json:"configuration"`
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData(c *client.Client) (*statusData, error) {
	adapter, err := c.GetAdapter()
	if err != nil {
		return nil, fmt.Errorf("failed to get power adapter status: %w", err)
	}

	bats, err := c.GetBatteries()
	if err != nil {
		return nil, fmt.Errorf("failed to get batteries: %w", err)
	}

	conf, err := c.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		adapter:   adapter,
		batteries: bats,
		config:    conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of every battery",
		Long:    `Get AC adapter status, battery states, and daemon configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData(apiClient)
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(statusJSON{
					AdapterConnected: data.adapter,
					Batteries:        data.batteries,
					Configuration:    data.config,
				}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	conf := config.NewFileFromConfig(data.config, "")

	cmd.Println(bold("Power source:"))
	cmd.Printf("  AC adapter connected: %s\n", bool2Text(data.adapter))
	cmd.Println()

	for _, st := range data.batteries {
		cmd.Println(bold("Battery %s:", st.Slot))
		if !st.Present {
			cmd.Println("  Not installed.")
			cmd.Println()
			continue
		}

		cmd.Printf("  State: %s\n", bold("%s", conditionText(st)))
		if st.Condition == battery.ConditionUnpolled {
			cmd.Println("  Waiting for the first reading.")
			cmd.Println()
			continue
		}

		cmd.Printf("  Charge: %s (%d/%d mAh)\n", bold("%d%%", st.RelativeStateOfCharge), st.CurrentCapacity, st.MaxCapacity)
		switch {
		case st.IsCharging:
			cmd.Printf("  Time to full: %s\n", bold("%s", formatMinutes(st.AvgTimeToFull)))
		case st.Discharging():
			cmd.Printf("  Time to empty: %s\n", bold("%s", formatMinutes(st.AvgTimeToEmpty)))
		}

		var rate string
		switch {
		case st.Amperage > 0:
			rate = color.New(color.Bold, color.FgGreen).Sprintf("%+d mA", st.Amperage)
		case st.Amperage < 0:
			rate = color.New(color.Bold, color.FgRed).Sprintf("%+d mA", st.Amperage)
		default:
			rate = bold("0 mA")
		}
		cmd.Printf("  Current: %s\n", rate)
		cmd.Printf("  Voltage: %s\n", bold("%.2f V", float64(st.Voltage)/1000))
		cmd.Printf("  Health: %s (%d/%d mAh)\n", bold("%d%%", percent(st.MaxCapacity, st.DesignCapacity)), st.MaxCapacity, st.DesignCapacity)
		cmd.Printf("  Cycle count: %s\n", bold("%d", st.CycleCount))
		if st.HasTemperature {
			cmd.Printf("  Temperature: %s\n", bold("%s", formatCelsius(st.Temperature)))
		}
		if st.Model != "" {
			cmd.Printf("  Model: %s %s (serial %s)\n", st.Manufacturer, st.Model, st.Serial)
		}
		if st.Warning || st.Critical {
			cmd.Printf("  Low battery: %s\n", color.New(color.Bold, color.FgRed).Sprint(lowText(st)))
		}
		if st.LatestErrorType != "" {
			cmd.Printf("  Latest firmware issue: %s\n", color.YellowString(string(st.LatestErrorType)))
		}
		cmd.Println()
	}

	cmd.Println(bold("Configuration:"))
	if period, ok := conf.PollingPeriodOverride(); ok {
		cmd.Printf("  Polling period override: %s\n", bold("%s", period))
	}
	cmd.Printf("  Standard polling interval: %s\n", bold("%s", conf.StandardPollInterval()))
	cmd.Printf("  Use extended information: %s\n", bool2Text(conf.UseExtendedInformation()))
	cmd.Printf("  Use extra information: %s\n", bool2Text(conf.UseExtraInformation()))
	cmd.Printf("  Correct corrupt capacities: %s\n", bool2Text(conf.CorrectCorruptCapacities()))
	cmd.Printf("  Correct 16-bit signed rate: %s\n", bool2Text(conf.Correct16bitSignedCurrentRate()))
	cmd.Printf("  Firmware backend: %s\n", bold("%s", conf.Firmware()))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func conditionText(st battery.State) string {
	switch st.Condition {
	case battery.ConditionCharging:
		return color.GreenString("charging")
	case battery.ConditionDischarging:
		return color.RedString("discharging")
	case battery.ConditionCharged:
		return "fully charged"
	case battery.ConditionFault:
		return color.New(color.FgRed).Sprint("fault")
	}
	return string(st.Condition)
}

func lowText(st battery.State) string {
	if st.Critical {
		return "critical"
	}
	return "warning"
}

func percent(part, whole uint32) uint32 {
	if whole == 0 {
		return 0
	}
	return uint32(uint64(part) * 100 / uint64(whole))
}
