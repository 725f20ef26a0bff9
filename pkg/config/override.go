package config

import (
	"github.com/charlie0129/acpibatt/pkg/firmware"
)

// Keys accepted in a firmware override table.
const (
	KeyPollingPeriodOverride              = "BatteryPollingPeriodOverride"
	KeyUseExtendedInformation             = "UseExtendedBatteryInformationMethod"
	KeyUseExtraInformation                = "UseExtraBatteryInformationMethod"
	KeyUseDesignVoltageForDesignCapacity  = "UseDesignVoltageForDesignCapacity"
	KeyUseDesignVoltageForMaxCapacity     = "UseDesignVoltageForMaxCapacity"
	KeyUseDesignVoltageForCurrentCapacity = "UseDesignVoltageForCurrentCapacity"
	KeyCorrectCorruptCapacities           = "CorrectCorruptCapacities"
	KeyCorrect16bitSignedCurrentRate      = "Correct16bitSignedCurrentRate"
	KeyCurrentDischargeRateMax            = "CurrentDischargeRateMax"
	KeyEstimateCycleCountDivisor          = "EstimateCycleCountDivisor"
	KeyStartupDelay                       = "StartupDelay"
	KeyFirstPollDelay                     = "FirstPollDelay"
)

// TranslateOverride converts a firmware override package into a key/value
// table.
//
// The package is either flat key/value pairs, or, when its first element is
// an empty package, a plain array. Strings ">y" and ">n" become booleans and
// ">>y" / ">>n" escape the literal strings ">y" / ">n". Only a table is
// accepted as the final result; anything else yields ok == false.
func TranslateOverride(obj firmware.Object) (table map[string]any, ok bool) {
	if obj.Kind != firmware.KindPackage {
		return nil, false
	}
	table, ok = translateArray(obj.Package).(map[string]any)
	return table, ok
}

func translateArray(items []firmware.Object) any {
	if len(items) == 0 {
		return nil
	}

	if first := items[0]; first.Kind == firmware.KindPackage && len(first.Package) == 0 {
		arr := make([]any, 0, len(items)-1)
		for _, it := range items[1:] {
			arr = append(arr, translateEntry(it))
		}
		return arr
	}

	// key/value pairs
	if len(items)%2 != 0 {
		return nil
	}
	table := make(map[string]any, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		if items[i].Kind != firmware.KindString {
			return nil
		}
		table[items[i].String] = translateEntry(items[i+1])
	}
	return table
}

func translateEntry(o firmware.Object) any {
	switch o.Kind {
	case firmware.KindPackage:
		if v := translateArray(o.Package); v != nil {
			return v
		}
		return plain(o)
	case firmware.KindString:
		switch o.String {
		case ">y":
			return true
		case ">n":
			return false
		case ">>y", ">>n":
			return o.String[1:]
		}
		return o.String
	default:
		return plain(o)
	}
}

// plain converts an object without any translation.
func plain(o firmware.Object) any {
	switch o.Kind {
	case firmware.KindInteger:
		return o.Integer
	case firmware.KindString:
		return o.String
	case firmware.KindBuffer:
		return o.Buffer
	default:
		arr := make([]any, 0, len(o.Package))
		for _, it := range o.Package {
			arr = append(arr, plain(it))
		}
		return arr
	}
}
