package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Battery is the immutable set of options a battery instance runs with.
// It is the file configuration with a firmware override table merged on
// top.
type Battery struct {
	PollingOverridden bool
	// PollingPeriod is only meaningful when PollingOverridden is set. Zero
	// means poll continuously.
	PollingPeriod time.Duration

	UseExtendedInformation             bool
	UseExtraInformation                bool
	UseDesignVoltageForDesignCapacity  bool
	UseDesignVoltageForMaxCapacity     bool
	UseDesignVoltageForCurrentCapacity bool
	CorrectCorruptCapacities           bool
	Correct16bitSignedCurrentRate      bool
	CurrentDischargeRateMax            uint32
	EstimateCycleCountDivisor          uint32

	StartupDelay         time.Duration
	FirstPollDelay       time.Duration
	StandardPollInterval time.Duration
	QuickPollInterval    time.Duration
	PollTimeout          time.Duration
}

// QuickPollInterval is the cadence used while the battery needs close
// tracking.
const QuickPollInterval = time.Second

// NewBattery builds battery options from c, applying any recognised keys
// of override. Values of the wrong type are ignored.
func NewBattery(c Config, override map[string]any) Battery {
	b := Battery{
		UseExtendedInformation:             c.UseExtendedInformation(),
		UseExtraInformation:                c.UseExtraInformation(),
		UseDesignVoltageForDesignCapacity:  c.UseDesignVoltageForDesignCapacity(),
		UseDesignVoltageForMaxCapacity:     c.UseDesignVoltageForMaxCapacity(),
		UseDesignVoltageForCurrentCapacity: c.UseDesignVoltageForCurrentCapacity(),
		CorrectCorruptCapacities:           c.CorrectCorruptCapacities(),
		Correct16bitSignedCurrentRate:      c.Correct16bitSignedCurrentRate(),
		CurrentDischargeRateMax:            c.CurrentDischargeRateMax(),
		EstimateCycleCountDivisor:          c.EstimateCycleCountDivisor(),
		StartupDelay:                       c.StartupDelay(),
		FirstPollDelay:                     c.FirstPollDelay(),
		StandardPollInterval:               c.StandardPollInterval(),
		QuickPollInterval:                  QuickPollInterval,
		PollTimeout:                        c.PollTimeout(),
	}
	b.PollingPeriod, b.PollingOverridden = c.PollingPeriodOverride()

	for k, v := range override {
		switch k {
		case KeyPollingPeriodOverride:
			if n, ok := v.(uint64); ok {
				b.PollingOverridden = true
				b.PollingPeriod = time.Duration(uint32(n)) * time.Second
			}
		case KeyUseExtendedInformation:
			setBool(&b.UseExtendedInformation, k, v)
		case KeyUseExtraInformation:
			setBool(&b.UseExtraInformation, k, v)
		case KeyUseDesignVoltageForDesignCapacity:
			setBool(&b.UseDesignVoltageForDesignCapacity, k, v)
		case KeyUseDesignVoltageForMaxCapacity:
			setBool(&b.UseDesignVoltageForMaxCapacity, k, v)
		case KeyUseDesignVoltageForCurrentCapacity:
			setBool(&b.UseDesignVoltageForCurrentCapacity, k, v)
		case KeyCorrectCorruptCapacities:
			setBool(&b.CorrectCorruptCapacities, k, v)
		case KeyCorrect16bitSignedCurrentRate:
			setBool(&b.Correct16bitSignedCurrentRate, k, v)
		case KeyCurrentDischargeRateMax:
			setUint(&b.CurrentDischargeRateMax, k, v)
		case KeyEstimateCycleCountDivisor:
			setUint(&b.EstimateCycleCountDivisor, k, v)
		case KeyStartupDelay:
			var ms uint32
			if setUint(&ms, k, v) {
				b.StartupDelay = time.Duration(ms) * time.Millisecond
			}
		case KeyFirstPollDelay:
			var ms uint32
			if setUint(&ms, k, v) {
				b.FirstPollDelay = time.Duration(ms) * time.Millisecond
			}
		default:
			logrus.WithField("key", k).Debug("ignoring unknown override key")
		}
	}

	return b
}

func setBool(dst *bool, key string, v any) {
	b, ok := v.(bool)
	if !ok {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("override is not a boolean")
		return
	}
	*dst = b
}

func setUint(dst *uint32, key string, v any) bool {
	n, ok := v.(uint64)
	if !ok {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("override is not a number")
		return false
	}
	*dst = uint32(n)
	return true
}

func (b Battery) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"pollingOverridden":         b.PollingOverridden,
		"pollingPeriod":             b.PollingPeriod,
		"useExtendedInformation":    b.UseExtendedInformation,
		"useExtraInformation":       b.UseExtraInformation,
		"correctCorruptCapacities":  b.CorrectCorruptCapacities,
		"correct16bitSignedRate":    b.Correct16bitSignedCurrentRate,
		"currentDischargeRateMax":   b.CurrentDischargeRateMax,
		"estimateCycleCountDivisor": b.EstimateCycleCountDivisor,
		"firstPollDelay":            b.FirstPollDelay,
		"standardPollInterval":      b.StandardPollInterval,
	}
}
