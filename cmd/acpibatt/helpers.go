package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/units"
	"github.com/charlie0129/acpibatt/pkg/version"
)

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func checkVersion(daemonVersion string) {
	if daemonVersion == version.Version {
		return
	}
	logrus.WithFields(logrus.Fields{
		"clientVersion": version.Version,
		"daemonVersion": daemonVersion,
	}).Warn("Version mismatch between client and daemon. acpibatt may not work as expected.")
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// formatMinutes renders a firmware time estimate.
func formatMinutes(m uint32) string {
	if m == units.UnknownMinutes {
		return "unknown"
	}
	return (time.Duration(m) * time.Minute).String()
}

// formatCelsius renders a temperature in hundredths of a degree.
func formatCelsius(t int) string {
	return fmt.Sprintf("%.1f °C", float64(t)/100)
}
