package battery

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/units"
)

// Readings is everything read from firmware during one poll, converted to
// mA and mAh. A fresh Readings is built for every poll.
type Readings struct {
	PowerUnit PowerUnit

	DesignCapacityRaw uint32
	MaxCapacityRaw    uint32
	WarningRaw        uint32
	LowRaw            uint32

	DesignCapacity  uint32
	MaxCapacity     uint32
	CurrentCapacity uint32
	Warning         uint32
	Low             uint32

	DesignVoltage  uint32
	CurrentVoltage uint32
	CurrentRate    uint32
	Status         uint32

	Technology uint32
	CycleCount uint32

	HasTemperature bool
	// Temperature is in 0.01°C.
	Temperature int

	Model        string
	Serial       string
	Type         string
	Manufacturer string

	Extra *ExtraInfo
}

// Normalizer applies the configured corrections to firmware records.
type Normalizer struct {
	cfg  config.Battery
	slot string
}

func NewNormalizer(slot string, cfg config.Battery) *Normalizer {
	return &Normalizer{cfg: cfg, slot: slot}
}

func (n *Normalizer) event(kind ErrorKind, format string, a ...any) ErrorEvent {
	e := newErrorEvent(kind, format, a...)
	e.Slot = n.slot
	return e
}

// ApplyInfo ingests a _BIF or _BIX record.
func (n *Normalizer) ApplyInfo(r *Readings, rec InfoRecord) []ErrorEvent {
	var events []ErrorEvent
	info := rec.info()

	r.PowerUnit = info.PowerUnit
	r.DesignCapacityRaw = info.DesignCapacity
	r.MaxCapacityRaw = info.LastFull
	r.WarningRaw = info.Warning
	r.LowRaw = info.Low
	r.Technology = info.Technology
	r.DesignVoltage = info.DesignVoltage
	r.Model = info.Model
	r.Serial = info.Serial
	r.Type = info.Type
	r.Manufacturer = info.OEM

	r.DesignCapacity = info.DesignCapacity
	r.MaxCapacity = info.LastFull
	r.Warning = info.Warning
	r.Low = info.Low

	if r.PowerUnit == UnitWatts && r.DesignVoltage != 0 {
		r.DesignCapacity = units.WattsToAmps(info.DesignCapacity, r.DesignVoltage)
		r.MaxCapacity = units.WattsToAmps(info.LastFull, r.DesignVoltage)
		r.Warning = units.WattsToAmps(info.Warning, r.DesignVoltage)
		r.Low = units.WattsToAmps(info.Low, r.DesignVoltage)
	}

	if r.DesignCapacity == 0 || r.MaxCapacity == 0 {
		e := n.event(ErrorZeroCapacity, "design %d, max %d", r.DesignCapacity, r.MaxCapacity)
		logrus.WithFields(logrus.Fields{
			"slot":   n.slot,
			"design": r.DesignCapacity,
			"max":    r.MaxCapacity,
		}).Error(string(ErrorZeroCapacity))
		events = append(events, e)
	}

	switch {
	case info.HasCycleCount:
		r.CycleCount = info.CycleCount
	case n.cfg.EstimateCycleCountDivisor != 0 && r.DesignCapacity > r.MaxCapacity:
		r.CycleCount = (r.DesignCapacity - r.MaxCapacity) / n.cfg.EstimateCycleCountDivisor
	default:
		r.CycleCount = 0
	}

	if info.HasTemperature && info.Temperature != 0 && info.Temperature != units.Unknown {
		r.HasTemperature = true
		r.Temperature = units.DeciKelvinToCentiCelsius(info.Temperature)
	}

	logrus.WithFields(logrus.Fields{
		"slot":       n.slot,
		"format":     rec.Kind(),
		"unit":       r.PowerUnit,
		"design":     r.DesignCapacity,
		"max":        r.MaxCapacity,
		"voltage":    r.DesignVoltage,
		"cycleCount": r.CycleCount,
	}).Trace("battery information ingested")

	return events
}

// ApplyExtra ingests a BBIX record. It only fills in extra fields and does
// not affect charge state classification.
func (n *Normalizer) ApplyExtra(r *Readings, rec ExtraInfo) {
	r.Extra = &rec
	if rec.Temperature != 0 && rec.Temperature != units.Unknown {
		r.HasTemperature = true
		r.Temperature = units.DeciKelvinToCentiCelsius(rec.Temperature)
	}
}

// ApplyStatus ingests a _BST record: it converts energy readings using the
// configured voltage basis and applies the rate and capacity corrections.
func (n *Normalizer) ApplyStatus(r *Readings, st Status) []ErrorEvent {
	var events []ErrorEvent

	r.Status = st.State
	r.CurrentRate = st.Rate
	r.CurrentCapacity = st.Capacity
	r.CurrentVoltage = st.Voltage

	if r.DesignCapacityRaw == units.Unknown {
		r.DesignCapacityRaw = 0
		r.DesignCapacity = 0
	}

	if r.CurrentRate == units.Unknown {
		logrus.WithField("slot", n.slot).Debug("firmware reports unknown rate, skipping unit conversion")
	} else if r.PowerUnit == UnitWatts {
		r.CurrentRate = n.toAmps(r, st.Rate, n.cfg.UseDesignVoltageForCurrentCapacity)
		r.CurrentCapacity = n.toAmps(r, st.Capacity, n.cfg.UseDesignVoltageForCurrentCapacity)
		r.DesignCapacity = n.toAmps(r, r.DesignCapacityRaw, n.cfg.UseDesignVoltageForDesignCapacity)
		r.MaxCapacity = n.toAmps(r, r.MaxCapacityRaw, n.cfg.UseDesignVoltageForMaxCapacity)
		// Thresholds follow the design capacity basis.
		r.Warning = n.toAmps(r, r.WarningRaw, n.cfg.UseDesignVoltageForDesignCapacity)
		r.Low = n.toAmps(r, r.LowRaw, n.cfg.UseDesignVoltageForDesignCapacity)
	}

	if n.cfg.Correct16bitSignedCurrentRate {
		r.CurrentRate = correctSigned16(r.CurrentRate)
	}

	if n.cfg.CorrectCorruptCapacities {
		if r.DesignCapacity != 0 && r.MaxCapacity > r.DesignCapacity {
			logrus.WithFields(logrus.Fields{
				"slot":   n.slot,
				"from":   r.MaxCapacity,
				"to":     r.DesignCapacity,
				"design": r.DesignCapacity,
			}).Warn("max capacity above design capacity, clamping")
			events = append(events, n.event(ErrorCorruptCapacity, "max capacity %d clamped to %d", r.MaxCapacity, r.DesignCapacity))
			r.MaxCapacity = r.DesignCapacity
		}
		if (r.MaxCapacity != 0 || r.DesignCapacity != 0) && r.CurrentCapacity > r.MaxCapacity {
			logrus.WithFields(logrus.Fields{
				"slot": n.slot,
				"from": r.CurrentCapacity,
				"to":   r.MaxCapacity,
			}).Warn("current capacity above max capacity, clamping")
			events = append(events, n.event(ErrorCorruptCapacity, "current capacity %d clamped to %d", r.CurrentCapacity, r.MaxCapacity))
			r.CurrentCapacity = r.MaxCapacity
		}
	}

	return events
}

func (n *Normalizer) toAmps(r *Readings, v uint32, useDesignVoltage bool) uint32 {
	voltage := r.CurrentVoltage
	if useDesignVoltage {
		voltage = r.DesignVoltage
	}
	return units.WattsToAmps(v, voltage)
}

// correctSigned16 reads the low 16 bits of rate as two's complement and
// returns the magnitude.
func correctSigned16(rate uint32) uint32 {
	rate &= 0xFFFF
	if rate&0x8000 != 0 {
		rate = 0xFFFF - rate + 1
	}
	return rate
}
