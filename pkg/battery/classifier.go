package battery

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/units"
)

// Condition is the coarse state of a battery slot.
type Condition string

const (
	ConditionAbsent      Condition = "absent"
	ConditionUnpolled    Condition = "unpolled"
	ConditionCharging    Condition = "charging"
	ConditionDischarging Condition = "discharging"
	ConditionCharged     Condition = "charged"
	ConditionFault       Condition = "fault"
)

// Fixed wait hints published with every state.
const (
	InvalidWakeSeconds       = 30
	PostChargeWaitSeconds    = 120
	PostDischargeWaitSeconds = 120
)

// SmoothedState is carried from one poll to the next. It is only touched
// from the owning battery's gate.
type SmoothedState struct {
	PrevStatus        uint32
	AvgRate           uint32
	FastPollCount     int
	ReadErrors        int
	ExternalConnected bool
	FullyCharged      bool
	InFault           bool
}

// Environment is what the classifier needs to know about the world outside
// the battery.
type Environment struct {
	ACConnected bool
	// OthersDischarging reports whether a sibling battery is drawing down.
	OthersDischarging bool
	// Interval is the poll cadence the sample was taken at.
	Interval time.Duration
}

// State is the canonical power source state of one battery slot.
type State struct {
	Slot       string    `json:"slot"`
	DeviceName string    `json:"deviceName"`
	Condition  Condition `json:"condition"`
	Present    bool      `json:"present"`

	FullyCharged          bool `json:"fullyCharged"`
	IsCharging            bool `json:"isCharging"`
	ExternalConnected     bool `json:"externalConnected"`
	ExternalChargeCapable bool `json:"externalChargeCapable"`
	QuickPoll             bool `json:"quickPoll"`

	// Amperage is the averaged current in mA, negative while discharging.
	Amperage        int64 `json:"amperage"`
	InstantAmperage int64 `json:"instantAmperage"`

	// Times are in minutes. units.UnknownMinutes means unknown.
	TimeRemaining      uint32 `json:"timeRemaining"`
	AvgTimeToEmpty     uint32 `json:"avgTimeToEmpty"`
	InstantTimeToEmpty uint32 `json:"instantTimeToEmpty"`
	AvgTimeToFull      uint32 `json:"avgTimeToFull"`
	InstantTimeToFull  uint32 `json:"instantTimeToFull"`

	RelativeStateOfCharge uint32 `json:"relativeStateOfCharge"`
	AbsoluteStateOfCharge uint32 `json:"absoluteStateOfCharge"`
	Warning               bool   `json:"warning"`
	Critical              bool   `json:"critical"`

	PowerUnit       string                  `json:"powerUnit,omitempty"`
	DesignCapacity  uint32                  `json:"designCapacity"`
	MaxCapacity     uint32                  `json:"maxCapacity"`
	CurrentCapacity uint32                  `json:"currentCapacity"`
	Voltage         uint32                  `json:"voltage"`
	CellVoltage     [units.CellCount]uint32 `json:"cellVoltage"`
	HasTemperature  bool                    `json:"hasTemperature"`
	Temperature     int                     `json:"temperature"`
	CycleCount      uint32                  `json:"cycleCount"`
	Technology      uint32                  `json:"technology"`

	Model                 string `json:"model,omitempty"`
	Serial                string `json:"serial,omitempty"`
	BatteryType           string `json:"batteryType,omitempty"`
	Manufacturer          string `json:"manufacturer,omitempty"`
	ManufactureDate       uint32 `json:"manufactureDate"`
	ManufactureDateString string `json:"manufactureDateString,omitempty"`
	FirmwareSerialNumber  uint32 `json:"firmwareSerialNumber"`
	BatterySerialNumber   string `json:"batterySerialNumber,omitempty"`

	MaxErr                   uint32 `json:"maxErr"`
	PermanentFailureStatus   uint32 `json:"permanentFailureStatus"`
	InvalidWakeSeconds       uint32 `json:"invalidWakeSeconds"`
	PostChargeWaitSeconds    uint32 `json:"postChargeWaitSeconds"`
	PostDischargeWaitSeconds uint32 `json:"postDischargeWaitSeconds"`

	LatestErrorType ErrorKind `json:"latestErrorType,omitempty"`
	ErrorCondition  string    `json:"errorCondition,omitempty"`

	Extra *ExtraInfo `json:"extra,omitempty"`

	// AverageWindow is the poll interval the averaged figures were sampled
	// at. Each poll halves the weight of older samples.
	AverageWindow time.Duration `json:"averageWindow"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Discharging reports whether the slot holds a present battery that is
// currently drawing down.
func (s *State) Discharging() bool {
	return s != nil && s.Present && s.Condition == ConditionDischarging
}

// Legacy flags.
const (
	LegacyACInstalled      uint32 = 1
	LegacyBatteryCharging  uint32 = 2
	LegacyBatteryInstalled uint32 = 4
)

// Legacy is the flags plus five field summary some older consumers read.
type Legacy struct {
	Flags         uint32 `json:"flags"`
	CurrentCharge uint32 `json:"currentCharge"`
	Capacity      uint32 `json:"capacity"`
	Voltage       uint32 `json:"voltage"`
	Amperage      int64  `json:"amperage"`
	CycleCount    uint32 `json:"cycleCount"`
}

// Legacy builds the legacy summary of s.
func (s *State) Legacy() Legacy {
	l := Legacy{
		CurrentCharge: s.CurrentCapacity,
		Capacity:      s.MaxCapacity,
		Voltage:       s.Voltage,
		Amperage:      s.Amperage,
		CycleCount:    s.CycleCount,
	}
	if s.ExternalConnected {
		l.Flags |= LegacyACInstalled
	}
	if s.Present {
		l.Flags |= LegacyBatteryInstalled
	}
	if s.IsCharging {
		l.Flags |= LegacyBatteryCharging
	}
	return l
}

func baseState(slot, device string, acConnected bool) State {
	return State{
		Slot:                     slot,
		DeviceName:               device,
		ExternalConnected:        acConnected,
		TimeRemaining:            units.UnknownMinutes,
		AvgTimeToEmpty:           units.UnknownMinutes,
		InstantTimeToEmpty:       units.UnknownMinutes,
		AvgTimeToFull:            units.UnknownMinutes,
		InstantTimeToFull:        units.UnknownMinutes,
		InvalidWakeSeconds:       InvalidWakeSeconds,
		PostChargeWaitSeconds:    PostChargeWaitSeconds,
		PostDischargeWaitSeconds: PostDischargeWaitSeconds,
		UpdatedAt:                time.Now(),
	}
}

// AbsentState is published for an empty slot. Every derived field is
// cleared.
func AbsentState(slot, device string, acConnected bool) State {
	s := baseState(slot, device, acConnected)
	s.Condition = ConditionAbsent
	return s
}

// UnpolledState is published for a battery that is present but has not
// completed a poll yet.
func UnpolledState(slot, device string, acConnected bool) State {
	s := baseState(slot, device, acConnected)
	s.Condition = ConditionUnpolled
	s.Present = true
	return s
}

// Classify turns one poll worth of readings into the canonical state,
// updating the smoothed state carried across polls.
func Classify(slot, device string, r *Readings, s *SmoothedState, cfg config.Battery, env Environment) (State, []ErrorEvent) {
	var events []ErrorEvent

	status := r.Status
	rate := r.CurrentRate

	if status&StatusDischarging != 0 && rate == 0 {
		logrus.WithField("slot", slot).Debug("discharging with zero rate, clearing discharging bit")
		status &^= StatusDischarging
	}
	if rate == units.Unknown {
		rate = 0
	}

	if status != s.PrevStatus {
		logrus.WithFields(logrus.Fields{
			"slot": slot,
			"from": s.PrevStatus,
			"to":   status,
		}).Debug("status changed, resetting average rate")
		s.PrevStatus = status
		s.AvgRate = 0
	}

	discharging := status&StatusDischarging != 0
	charging := status&StatusCharging != 0

	rateMax := cfg.CurrentDischargeRateMax
	if rateMax != 0 {
		if discharging && rate > rateMax {
			logrus.WithFields(logrus.Fields{
				"slot": slot,
				"rate": rate,
				"max":  rateMax,
			}).Debug("discharge rate above cap")
			rate = rateMax + 1
			s.AvgRate = rateMax + 1
		}
		if s.AvgRate == rateMax+1 && rate != rateMax+1 {
			s.AvgRate = 0
		}
	}

	if s.AvgRate == 0 {
		s.AvgRate = rate
	} else {
		s.AvgRate = uint32((uint64(s.AvgRate) + uint64(rate)) / 2)
	}
	avg := s.AvgRate

	st := baseState(slot, device, env.ACConnected)
	st.Present = true
	st.PowerUnit = r.PowerUnit.String()
	st.DesignCapacity = r.DesignCapacity
	st.MaxCapacity = r.MaxCapacity
	st.CurrentCapacity = r.CurrentCapacity
	st.Voltage = r.CurrentVoltage
	st.CellVoltage = units.SplitCellVoltage(r.CurrentVoltage)
	st.HasTemperature = r.HasTemperature
	st.Temperature = r.Temperature
	st.CycleCount = r.CycleCount
	st.Technology = r.Technology
	st.Model = r.Model
	st.Serial = r.Serial
	if st.Serial == "" {
		st.Serial = unknownString
	}
	st.BatteryType = r.Type
	st.Manufacturer = r.Manufacturer
	st.FirmwareSerialNumber = units.ParseFirmwareSerial(r.Serial)
	st.BatterySerialNumber = units.BuildSerial(device, r.Serial)
	st.AverageWindow = env.Interval

	if r.MaxCapacity != 0 {
		st.RelativeStateOfCharge = uint32(100 * uint64(r.CurrentCapacity) / uint64(r.MaxCapacity))
	}
	if r.DesignCapacity != 0 {
		st.AbsoluteStateOfCharge = uint32(100 * uint64(r.CurrentCapacity) / uint64(r.DesignCapacity))
	}
	if r.Extra != nil {
		x := *r.Extra
		st.Extra = &x
		st.RelativeStateOfCharge = x.RelativeStateOfCharge
		st.AbsoluteStateOfCharge = x.AbsoluteStateOfCharge
		st.ManufactureDate = x.ManufactureDate
		st.ManufactureDateString = units.FormatDate(x.ManufactureDate)
	}

	switch {
	case charging && discharging:
		st.Condition = ConditionFault
		st.ErrorCondition = string(ErrorPermanentFailure)
		st.TimeRemaining = 0
		st.AvgTimeToEmpty = 0
		st.InstantTimeToEmpty = 0
		st.AvgTimeToFull = 0
		st.InstantTimeToFull = 0
		s.FullyCharged = false
		if !s.InFault {
			e := newErrorEvent(ErrorPermanentFailure, "status 0x%x", status)
			e.Slot = slot
			logrus.WithField("slot", slot).Error(string(ErrorPermanentFailure))
			events = append(events, e)
		}
		s.InFault = true

	case discharging:
		st.Condition = ConditionDischarging
		st.Amperage = -int64(avg)
		st.InstantAmperage = -int64(rate)
		st.AvgTimeToEmpty = minutes(r.CurrentCapacity, avg)
		st.InstantTimeToEmpty = minutes(r.CurrentCapacity, rate)
		st.TimeRemaining = st.AvgTimeToEmpty
		s.FullyCharged = false
		s.InFault = false

	case charging:
		st.Condition = ConditionCharging
		st.IsCharging = true
		st.ExternalChargeCapable = true
		st.Amperage = int64(avg)
		st.InstantAmperage = int64(rate)
		var toFull uint32
		if r.MaxCapacity > r.CurrentCapacity {
			toFull = r.MaxCapacity - r.CurrentCapacity
		}
		st.AvgTimeToFull = minutes(toFull, avg)
		st.InstantTimeToFull = minutes(toFull, rate)
		st.TimeRemaining = st.AvgTimeToFull
		s.FullyCharged = false
		s.InFault = false

	default:
		st.Condition = ConditionCharged
		st.FullyCharged = true
		st.ExternalChargeCapable = !env.OthersDischarging
		s.FullyCharged = true
		s.InFault = false
	}

	if !cfg.PollingOverridden && r.MaxCapacity != 0 {
		st.QuickPoll = 100*uint64(r.CurrentCapacity)/uint64(r.MaxCapacity) < 5 && env.ACConnected
	}

	st.Warning = r.WarningRaw != units.Unknown && r.CurrentCapacity <= r.Warning
	st.Critical = r.LowRaw != units.Unknown && r.CurrentCapacity <= r.Low

	logrus.WithFields(logrus.Fields{
		"slot":      slot,
		"condition": st.Condition,
		"capacity":  st.CurrentCapacity,
		"max":       st.MaxCapacity,
		"rate":      rate,
		"avg":       avg,
		"quickPoll": st.QuickPoll,
	}).Debug("battery classified")

	return st, events
}

// minutes returns 60*capacity/rate, or the unknown sentinel when rate is
// zero.
func minutes(capacity, rate uint32) uint32 {
	if rate == 0 {
		return units.UnknownMinutes
	}
	m := 60 * uint64(capacity) / uint64(rate)
	if m > units.UnknownMinutes {
		return units.UnknownMinutes
	}
	return uint32(m)
}
