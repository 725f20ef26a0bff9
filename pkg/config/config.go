package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Firmware backends selectable in the config file.
const (
	FirmwareHost    = "host"
	FirmwareFixture = "fixture"
	FirmwareSMC     = "smc"
)

type Config interface {
	// PollingPeriodOverride is the fixed debug polling period. ok is false
	// when no override is configured. A zero period polls continuously.
	PollingPeriodOverride() (period time.Duration, ok bool)
	UseExtendedInformation() bool
	UseExtraInformation() bool
	UseDesignVoltageForDesignCapacity() bool
	UseDesignVoltageForMaxCapacity() bool
	UseDesignVoltageForCurrentCapacity() bool
	CorrectCorruptCapacities() bool
	Correct16bitSignedCurrentRate() bool
	CurrentDischargeRateMax() uint32
	EstimateCycleCountDivisor() uint32
	StartupDelay() time.Duration
	FirstPollDelay() time.Duration
	StandardPollInterval() time.Duration
	PollTimeout() time.Duration
	Firmware() string
	FixturePath() string
	DBus() bool
	AllowNonRootAccess() bool
	// RefreshSchedule is a cron expression. Empty disables scheduled
	// refreshes.
	RefreshSchedule() string
	// AdapterCheckInterval is the period of the _PSR re-read. Zero
	// disables it.
	AdapterCheckInterval() time.Duration

	SetStandardPollInterval(time.Duration)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
