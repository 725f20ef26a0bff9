// Package units converts raw firmware quantities into the milliamp based
// model used by the rest of the daemon.
package units

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Unknown is the value firmware reports for a field it cannot measure.
	Unknown uint32 = 0xFFFFFFFF

	// UnknownMinutes is published for time estimates that cannot be computed.
	UnknownMinutes = 0xFFFF

	// MaxSerialLength is the longest serial string BuildSerial returns.
	MaxSerialLength = 63

	// CellCount is the number of cells a pack voltage is split across.
	CellCount = 4

	unknownText = "Unknown"
)

// WattsToAmps converts an energy based reading (mW or mWh) into a current
// based one (mA or mAh) using voltage in mV. A zero voltage leaves the value
// untouched.
func WattsToAmps(raw, voltage uint32) uint32 {
	if voltage == 0 {
		return raw
	}
	return uint32(uint64(raw) * 1000 / uint64(voltage))
}

// UnpackDate splits a smart battery packed date. Values are passed through
// as reported, even when the month or day is out of range.
func UnpackDate(packed uint32) (year, month, day int) {
	year = int(packed>>9) + 1980
	month = int((packed >> 5) & 0xF)
	day = int(packed & 0x1F)
	return
}

// FormatDate renders a packed date as YYYY-MM-DD.
func FormatDate(packed uint32) string {
	y, m, d := UnpackDate(packed)
	return fmt.Sprintf("%4d-%02d-%02d", y, m, d)
}

// BuildSerial joins the device name and serial number as "<device>-<serial>".
// Blank parts are replaced by "Unknown" and the result is cut to at most
// MaxSerialLength bytes without splitting a UTF-8 sequence.
func BuildSerial(deviceName, serialNumber string) string {
	s := orUnknown(deviceName) + "-" + orUnknown(serialNumber)
	if len(s) <= MaxSerialLength {
		return s
	}
	n := MaxSerialLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ParseFirmwareSerial reads the leading hexadecimal digits of a serial
// string. Anything that is not hex ends the number; no digits yields 0.
func ParseFirmwareSerial(serial string) uint32 {
	s := strings.TrimSpace(serial)
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	var v uint64
	for _, r := range s {
		var digit uint64
		switch {
		case r >= '0' && r <= '9':
			digit = uint64(r - '0')
		case r >= 'a' && r <= 'f':
			digit = uint64(r-'a') + 10
		case r >= 'A' && r <= 'F':
			digit = uint64(r-'A') + 10
		default:
			return uint32(v)
		}
		v = v<<4 | digit
		if v > 0xFFFFFFFF {
			return 0xFFFFFFFF
		}
	}
	return uint32(v)
}

// DeciKelvinToCentiCelsius converts a 0.1K temperature to 0.01°C.
func DeciKelvinToCentiCelsius(raw uint32) int {
	return (int(raw) - 2731) * 10
}

// SplitCellVoltage spreads a pack voltage evenly across CellCount cells.
// The last cell absorbs the rounding remainder.
func SplitCellVoltage(voltage uint32) [CellCount]uint32 {
	var cells [CellCount]uint32
	each := voltage / CellCount
	for i := 0; i < CellCount-1; i++ {
		cells[i] = each
	}
	cells[CellCount-1] = voltage - each*(CellCount-1)
	return cells
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownText
	}
	return s
}
