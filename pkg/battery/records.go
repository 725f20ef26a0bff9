package battery

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/acpibatt/pkg/firmware"
)

// PowerUnit is the unit family a battery reports capacities in.
type PowerUnit uint32

const (
	// UnitWatts means capacities in mWh and rates in mW.
	UnitWatts PowerUnit = 0
	// UnitAmps means capacities in mAh and rates in mA.
	UnitAmps PowerUnit = 1
)

func (u PowerUnit) String() string {
	if u == UnitWatts {
		return "mWh"
	}
	return "mAh"
}

// _BST state bits.
const (
	StatusDischarging uint32 = 1 << 0
	StatusCharging    uint32 = 1 << 1
	StatusCritical    uint32 = 1 << 2
)

const unknownString = "Unknown"

// ErrNotPackage is returned when a record method did not return a package.
var ErrNotPackage = pkgerrors.New("firmware record is not a package")

// RecordKind tags the record variants.
type RecordKind int

const (
	KindBasicInfo RecordKind = iota
	KindExtendedInfo
	KindExtraInfo
	KindStatus
)

func (k RecordKind) String() string {
	switch k {
	case KindBasicInfo:
		return "basic"
	case KindExtendedInfo:
		return "extended"
	case KindExtraInfo:
		return "extra"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Record is one decoded firmware record.
type Record interface {
	Kind() RecordKind
}

// InfoRecord is implemented by the two static information formats.
type InfoRecord interface {
	Record
	info() Info
}

// Info holds the fields shared by _BIF and _BIX.
type Info struct {
	PowerUnit      PowerUnit
	DesignCapacity uint32
	LastFull       uint32
	Technology     uint32
	DesignVoltage  uint32
	Warning        uint32
	Low            uint32
	Model          string
	Serial         string
	Type           string
	OEM            string

	HasCycleCount  bool
	CycleCount     uint32
	HasTemperature bool
	// Temperature is in 0.1K.
	Temperature uint32
}

// BasicInfo is a _BIF record. Some firmware appends a cycle count and a
// temperature after the standard thirteen fields.
type BasicInfo struct {
	Info
}

func (BasicInfo) Kind() RecordKind { return KindBasicInfo }
func (b BasicInfo) info() Info     { return b.Info }

// ExtendedInfo is a _BIX record.
type ExtendedInfo struct {
	Info
	Revision uint32
	Accuracy uint32
}

func (ExtendedInfo) Kind() RecordKind { return KindExtendedInfo }
func (e ExtendedInfo) info() Info     { return e.Info }

// ExtraInfo is the vendor BBIX record mirroring smart battery registers.
type ExtraInfo struct {
	ManufacturerAccess uint32
	BatteryMode        uint32
	AtRateTimeToFull   uint32
	AtRateTimeToEmpty  uint32
	// Temperature is in 0.1K.
	Temperature           uint32
	Voltage               uint32
	Current               int32
	AverageCurrent        int32
	RelativeStateOfCharge uint32
	AbsoluteStateOfCharge uint32
	RemainingCapacity     uint32
	RunTimeToEmpty        uint32
	AverageTimeToEmpty    uint32
	AverageTimeToFull     uint32
	ManufactureDate       uint32
	ManufacturerData      []byte
}

func (ExtraInfo) Kind() RecordKind { return KindExtraInfo }

// Status is a _BST record.
type Status struct {
	State    uint32
	Rate     uint32
	Capacity uint32
	Voltage  uint32
}

func (Status) Kind() RecordKind { return KindStatus }

// _BIF offsets
const (
	bifPowerUnit = iota
	bifDesignCapacity
	bifLastFull
	bifTechnology
	bifDesignVoltage
	bifWarning
	bifLow
	bifGranularity1
	bifGranularity2
	bifModel
	bifSerial
	bifType
	bifOEM
	bifCycleCount
	bifTemperature
)

// _BIX offsets
const (
	bixRevision = iota
	bixPowerUnit
	bixDesignCapacity
	bixLastFull
	bixTechnology
	bixDesignVoltage
	bixWarning
	bixLow
	bixCycleCount
	bixAccuracy
	bixMaxSampling
	bixMinSampling
	bixMaxAveraging
	bixMinAveraging
	bixGranularity1
	bixGranularity2
	bixModel
	bixSerial
	bixType
	bixOEM
)

// BBIX offsets
const (
	bbixManufacturerAccess = iota
	bbixBatteryMode
	bbixAtRateTimeToFull
	bbixAtRateTimeToEmpty
	bbixTemperature
	bbixVoltage
	bbixCurrent
	bbixAverageCurrent
	bbixRelativeStateOfCharge
	bbixAbsoluteStateOfCharge
	bbixRemainingCapacity
	bbixRunTimeToEmpty
	bbixAverageTimeToEmpty
	bbixAverageTimeToFull
	bbixManufactureDate
	bbixManufacturerData
)

// _BST offsets
const (
	bstState = iota
	bstRate
	bstCapacity
	bstVoltage
)

func DecodeBasicInfo(o firmware.Object) (BasicInfo, error) {
	if o.Kind != firmware.KindPackage {
		return BasicInfo{}, pkgerrors.Wrapf(ErrNotPackage, "%s returned %s", firmware.MethodBasicInfo, o.Kind)
	}

	b := BasicInfo{Info: Info{
		PowerUnit:      PowerUnit(o.UintAt(bifPowerUnit)),
		DesignCapacity: o.UintAt(bifDesignCapacity),
		LastFull:       o.UintAt(bifLastFull),
		Technology:     o.UintAt(bifTechnology),
		DesignVoltage:  o.UintAt(bifDesignVoltage),
		Warning:        o.UintAt(bifWarning),
		Low:            o.UintAt(bifLow),
		Model:          o.StringAt(bifModel, unknownString),
		Serial:         o.StringAt(bifSerial, unknownString),
		Type:           o.StringAt(bifType, unknownString),
		OEM:            o.StringAt(bifOEM, unknownString),
	}}
	// Extensions are detected by length alone.
	if o.Len() > bifCycleCount {
		b.HasCycleCount = true
		b.CycleCount = o.UintAt(bifCycleCount)
	}
	if o.Len() > bifTemperature {
		b.HasTemperature = true
		b.Temperature = o.UintAt(bifTemperature)
	}
	return b, nil
}

func DecodeExtendedInfo(o firmware.Object) (ExtendedInfo, error) {
	if o.Kind != firmware.KindPackage {
		return ExtendedInfo{}, pkgerrors.Wrapf(ErrNotPackage, "%s returned %s", firmware.MethodExtendedInfo, o.Kind)
	}

	return ExtendedInfo{
		Revision: o.UintAt(bixRevision),
		Accuracy: o.UintAt(bixAccuracy),
		Info: Info{
			PowerUnit:      PowerUnit(o.UintAt(bixPowerUnit)),
			DesignCapacity: o.UintAt(bixDesignCapacity),
			LastFull:       o.UintAt(bixLastFull),
			Technology:     o.UintAt(bixTechnology),
			DesignVoltage:  o.UintAt(bixDesignVoltage),
			Warning:        o.UintAt(bixWarning),
			Low:            o.UintAt(bixLow),
			HasCycleCount:  true,
			CycleCount:     o.UintAt(bixCycleCount),
			Model:          o.StringAt(bixModel, unknownString),
			Serial:         o.StringAt(bixSerial, unknownString),
			Type:           o.StringAt(bixType, unknownString),
			OEM:            o.StringAt(bixOEM, unknownString),
		},
	}, nil
}

func DecodeExtraInfo(o firmware.Object) (ExtraInfo, error) {
	if o.Kind != firmware.KindPackage {
		return ExtraInfo{}, pkgerrors.Wrapf(ErrNotPackage, "%s returned %s", firmware.MethodExtraInfo, o.Kind)
	}

	return ExtraInfo{
		ManufacturerAccess:    o.UintAt(bbixManufacturerAccess),
		BatteryMode:           o.UintAt(bbixBatteryMode),
		AtRateTimeToFull:      o.UintAt(bbixAtRateTimeToFull),
		AtRateTimeToEmpty:     o.UintAt(bbixAtRateTimeToEmpty),
		Temperature:           o.UintAt(bbixTemperature),
		Voltage:               o.UintAt(bbixVoltage),
		Current:               int32(o.UintAt(bbixCurrent)),
		AverageCurrent:        int32(o.UintAt(bbixAverageCurrent)),
		RelativeStateOfCharge: o.UintAt(bbixRelativeStateOfCharge),
		AbsoluteStateOfCharge: o.UintAt(bbixAbsoluteStateOfCharge),
		RemainingCapacity:     o.UintAt(bbixRemainingCapacity),
		RunTimeToEmpty:        o.UintAt(bbixRunTimeToEmpty),
		AverageTimeToEmpty:    o.UintAt(bbixAverageTimeToEmpty),
		AverageTimeToFull:     o.UintAt(bbixAverageTimeToFull),
		ManufactureDate:       o.UintAt(bbixManufactureDate),
		ManufacturerData:      o.BufferAt(bbixManufacturerData),
	}, nil
}

func DecodeStatus(o firmware.Object) (Status, error) {
	if o.Kind != firmware.KindPackage {
		return Status{}, pkgerrors.Wrapf(ErrNotPackage, "%s returned %s", firmware.MethodBatteryState, o.Kind)
	}

	return Status{
		State:    o.UintAt(bstState),
		Rate:     o.UintAt(bstRate),
		Capacity: o.UintAt(bstCapacity),
		Voltage:  o.UintAt(bstVoltage),
	}, nil
}

// DecodeRecord decodes the result of one of the record methods.
func DecodeRecord(method string, o firmware.Object) (Record, error) {
	switch method {
	case firmware.MethodBasicInfo:
		return DecodeBasicInfo(o)
	case firmware.MethodExtendedInfo:
		return DecodeExtendedInfo(o)
	case firmware.MethodExtraInfo:
		return DecodeExtraInfo(o)
	case firmware.MethodBatteryState:
		return DecodeStatus(o)
	default:
		return nil, pkgerrors.Errorf("%s is not a battery record method", method)
	}
}
