package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		UseExtendedInformation:             ptr.To(false),
		UseExtraInformation:                ptr.To(false),
		UseDesignVoltageForDesignCapacity:  ptr.To(false),
		UseDesignVoltageForMaxCapacity:     ptr.To(false),
		UseDesignVoltageForCurrentCapacity: ptr.To(false),
		CorrectCorruptCapacities:           ptr.To(false),
		Correct16bitSignedCurrentRate:      ptr.To(false),
		CurrentDischargeRateMax:            ptr.To(uint32(0)),
		EstimateCycleCountDivisor:          ptr.To(uint32(6)),
		StartupDelayMs:                     ptr.To(0),
		FirstPollDelayMs:                   ptr.To(4000),
		StandardPollIntervalMs:             ptr.To(30000),
		PollTimeoutMs:                      ptr.To(10000),
		Firmware:                           ptr.To(FirmwareHost),
		FixturePath:                        ptr.To(""),
		DBus:                               ptr.To(false),
		AllowNonRootAccess:                 ptr.To(false),
		RefreshSchedule:                    ptr.To(""),
		AdapterCheckIntervalMs:             ptr.To(2000),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	// PollingPeriodOverride is in seconds.
	PollingPeriodOverride              *int    `json:"pollingPeriodOverride,omitempty"`
	UseExtendedInformation             *bool   `json:"useExtendedInformation,omitempty"`
	UseExtraInformation                *bool   `json:"useExtraInformation,omitempty"`
	UseDesignVoltageForDesignCapacity  *bool   `json:"useDesignVoltageForDesignCapacity,omitempty"`
	UseDesignVoltageForMaxCapacity     *bool   `json:"useDesignVoltageForMaxCapacity,omitempty"`
	UseDesignVoltageForCurrentCapacity *bool   `json:"useDesignVoltageForCurrentCapacity,omitempty"`
	CorrectCorruptCapacities           *bool   `json:"correctCorruptCapacities,omitempty"`
	Correct16bitSignedCurrentRate      *bool   `json:"correct16bitSignedCurrentRate,omitempty"`
	CurrentDischargeRateMax            *uint32 `json:"currentDischargeRateMax,omitempty"`
	EstimateCycleCountDivisor          *uint32 `json:"estimateCycleCountDivisor,omitempty"`
	StartupDelayMs                     *int    `json:"startupDelayMs,omitempty"`
	FirstPollDelayMs                   *int    `json:"firstPollDelayMs,omitempty"`
	StandardPollIntervalMs             *int    `json:"standardPollIntervalMs,omitempty"`
	PollTimeoutMs                      *int    `json:"pollTimeoutMs,omitempty"`
	Firmware                           *string `json:"firmware,omitempty"`
	FixturePath                        *string `json:"fixturePath,omitempty"`
	DBus                               *bool   `json:"dbus,omitempty"`
	AllowNonRootAccess                 *bool   `json:"allowNonRootAccess,omitempty"`
	// RefreshSchedule is a cron expression for forced full polls.
	RefreshSchedule *string `json:"refreshSchedule,omitempty"`
	// AdapterCheckIntervalMs is how often _PSR is re-read. 0 disables the
	// re-read.
	AdapterCheckIntervalMs *int `json:"adapterCheckIntervalMs,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		UseExtendedInformation:             ptr.To(c.UseExtendedInformation()),
		UseExtraInformation:                ptr.To(c.UseExtraInformation()),
		UseDesignVoltageForDesignCapacity:  ptr.To(c.UseDesignVoltageForDesignCapacity()),
		UseDesignVoltageForMaxCapacity:     ptr.To(c.UseDesignVoltageForMaxCapacity()),
		UseDesignVoltageForCurrentCapacity: ptr.To(c.UseDesignVoltageForCurrentCapacity()),
		CorrectCorruptCapacities:           ptr.To(c.CorrectCorruptCapacities()),
		Correct16bitSignedCurrentRate:      ptr.To(c.Correct16bitSignedCurrentRate()),
		CurrentDischargeRateMax:            ptr.To(c.CurrentDischargeRateMax()),
		EstimateCycleCountDivisor:          ptr.To(c.EstimateCycleCountDivisor()),
		StartupDelayMs:                     ptr.To(int(c.StartupDelay().Milliseconds())),
		FirstPollDelayMs:                   ptr.To(int(c.FirstPollDelay().Milliseconds())),
		StandardPollIntervalMs:             ptr.To(int(c.StandardPollInterval().Milliseconds())),
		PollTimeoutMs:                      ptr.To(int(c.PollTimeout().Milliseconds())),
		Firmware:                           ptr.To(c.Firmware()),
		FixturePath:                        ptr.To(c.FixturePath()),
		DBus:                               ptr.To(c.DBus()),
		AllowNonRootAccess:                 ptr.To(c.AllowNonRootAccess()),
		RefreshSchedule:                    ptr.To(c.RefreshSchedule()),
		AdapterCheckIntervalMs:             ptr.To(int(c.AdapterCheckInterval().Milliseconds())),
	}
	if period, ok := c.PollingPeriodOverride(); ok {
		rawConfig.PollingPeriodOverride = ptr.To(int(period / time.Second))
	}

	return rawConfig, nil
}

// value returns the configured field, or the default when it is unset.
func value[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func millis(ms int) time.Duration {
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (f *File) PollingPeriodOverride() (time.Duration, bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.PollingPeriodOverride == nil || *f.c.PollingPeriodOverride < 0 {
		return 0, false
	}
	return time.Duration(*f.c.PollingPeriodOverride) * time.Second, true
}

func (f *File) UseExtendedInformation() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.UseExtendedInformation })
}

func (f *File) UseExtraInformation() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.UseExtraInformation })
}

func (f *File) UseDesignVoltageForDesignCapacity() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.UseDesignVoltageForDesignCapacity })
}

func (f *File) UseDesignVoltageForMaxCapacity() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.UseDesignVoltageForMaxCapacity })
}

func (f *File) UseDesignVoltageForCurrentCapacity() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.UseDesignVoltageForCurrentCapacity })
}

func (f *File) CorrectCorruptCapacities() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.CorrectCorruptCapacities })
}

func (f *File) Correct16bitSignedCurrentRate() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.Correct16bitSignedCurrentRate })
}

func (f *File) CurrentDischargeRateMax() uint32 {
	return value(f, func(c *RawFileConfig) *uint32 { return c.CurrentDischargeRateMax })
}

func (f *File) EstimateCycleCountDivisor() uint32 {
	return value(f, func(c *RawFileConfig) *uint32 { return c.EstimateCycleCountDivisor })
}

func (f *File) StartupDelay() time.Duration {
	return millis(value(f, func(c *RawFileConfig) *int { return c.StartupDelayMs }))
}

func (f *File) FirstPollDelay() time.Duration {
	return millis(value(f, func(c *RawFileConfig) *int { return c.FirstPollDelayMs }))
}

func (f *File) StandardPollInterval() time.Duration {
	d := millis(value(f, func(c *RawFileConfig) *int { return c.StandardPollIntervalMs }))
	if d <= 0 {
		return millis(*defaultFileConfig.StandardPollIntervalMs)
	}
	return d
}

func (f *File) PollTimeout() time.Duration {
	return millis(value(f, func(c *RawFileConfig) *int { return c.PollTimeoutMs }))
}

func (f *File) Firmware() string {
	return value(f, func(c *RawFileConfig) *string { return c.Firmware })
}

func (f *File) FixturePath() string {
	return value(f, func(c *RawFileConfig) *string { return c.FixturePath })
}

func (f *File) DBus() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.DBus })
}

func (f *File) AllowNonRootAccess() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) RefreshSchedule() string {
	return value(f, func(c *RawFileConfig) *string { return c.RefreshSchedule })
}

func (f *File) AdapterCheckInterval() time.Duration {
	return millis(value(f, func(c *RawFileConfig) *int { return c.AdapterCheckIntervalMs }))
}

func (f *File) SetStandardPollInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	if d <= 0 {
		panic("polling interval must be positive")
	}

	ms := int(d.Milliseconds())

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.StandardPollIntervalMs = &ms
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	fields := logrus.Fields{
		"useExtendedInformation":        f.UseExtendedInformation(),
		"useExtraInformation":           f.UseExtraInformation(),
		"correctCorruptCapacities":      f.CorrectCorruptCapacities(),
		"correct16bitSignedCurrentRate": f.Correct16bitSignedCurrentRate(),
		"currentDischargeRateMax":       f.CurrentDischargeRateMax(),
		"estimateCycleCountDivisor":     f.EstimateCycleCountDivisor(),
		"startupDelay":                  f.StartupDelay(),
		"firstPollDelay":                f.FirstPollDelay(),
		"standardPollInterval":          f.StandardPollInterval(),
		"firmware":                      f.Firmware(),
		"dbus":                          f.DBus(),
		"allowNonRootAccess":            f.AllowNonRootAccess(),
		"refreshSchedule":               f.RefreshSchedule(),
		"adapterCheckInterval":          f.AdapterCheckInterval(),
	}
	if period, ok := f.PollingPeriodOverride(); ok {
		fields["pollingPeriodOverride"] = period
	}
	return fields
}
