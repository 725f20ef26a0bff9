package units

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func packDate(year, month, day int) uint32 {
	return uint32(year-1980)<<9 | uint32(month)<<5 | uint32(day)
}

func TestWattsToAmps(t *testing.T) {
	tests := []struct {
		raw, voltage, want uint32
	}{
		{raw: 50000, voltage: 10000, want: 5000},
		{raw: 44400, voltage: 11100, want: 4000},
		{raw: 1234, voltage: 0, want: 1234},
		{raw: 0, voltage: 12000, want: 0},
		// must not overflow on large energy values
		{raw: 0xFFFFFFF0, voltage: 0xFFFFFFF0, want: 1000},
	}

	for _, tt := range tests {
		got := WattsToAmps(tt.raw, tt.voltage)
		if got != tt.want {
			t.Errorf("WattsToAmps(%d, %d) = %d, want %d", tt.raw, tt.voltage, got, tt.want)
		}
		if again := WattsToAmps(tt.raw, tt.voltage); again != got {
			t.Errorf("WattsToAmps(%d, %d) is not deterministic: %d vs %d", tt.raw, tt.voltage, got, again)
		}
	}
}

func TestUnpackDateRoundTrip(t *testing.T) {
	for year := 1980; year < 1980+128; year += 7 {
		for month := 0; month < 16; month++ {
			for day := 0; day < 32; day++ {
				y, m, d := UnpackDate(packDate(year, month, day))
				if y != year || m != month || d != day {
					t.Fatalf("UnpackDate(pack(%d,%d,%d)) = %d,%d,%d", year, month, day, y, m, d)
				}
			}
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(packDate(2019, 3, 7)); got != "2019-03-07" {
		t.Fatalf("unexpected date string %q", got)
	}
	// nonsense months are kept verbatim
	if got := FormatDate(packDate(2000, 15, 31)); got != "2000-15-31" {
		t.Fatalf("unexpected date string %q", got)
	}
}

func TestBuildSerial(t *testing.T) {
	tests := []struct {
		name, device, serial, want string
	}{
		{"both", "BAT0", "1234", "BAT0-1234"},
		{"blank serial", "BAT0", "   ", "BAT0-Unknown"},
		{"missing device", "", "42", "Unknown-42"},
		{"both missing", "", "", "Unknown-Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSerial(tt.device, tt.serial); got != tt.want {
				t.Errorf("BuildSerial(%q, %q) = %q, want %q", tt.device, tt.serial, got, tt.want)
			}
		})
	}

	long := BuildSerial("BAT0", strings.Repeat("9", 100))
	if len(long) != MaxSerialLength {
		t.Fatalf("expected serial to be cut to %d bytes, got %d", MaxSerialLength, len(long))
	}
	if !strings.HasPrefix(long, "BAT0-999") {
		t.Fatalf("unexpected truncated serial %q", long)
	}

	// A three byte rune straddles the cut.
	wide := BuildSerial("BAT0", strings.Repeat("9", MaxSerialLength-6)+"€€")
	if !utf8.ValidString(wide) {
		t.Fatalf("truncated serial is not valid UTF-8: %q", wide)
	}
	if len(wide) > MaxSerialLength {
		t.Fatalf("expected at most %d bytes, got %d", MaxSerialLength, len(wide))
	}
	if !strings.HasSuffix(wide, "9") {
		t.Fatalf("expected the partial rune to be dropped, got %q", wide)
	}
}

func TestParseFirmwareSerial(t *testing.T) {
	tests := map[string]uint32{
		"1A2b":     0x1a2b,
		"0x10":     0x10,
		" ff ":     0xff,
		"12zz":     0x12,
		"Unknown":  0,
		"":         0,
		"FFFFFFFF": 0xFFFFFFFF,
	}
	for in, want := range tests {
		if got := ParseFirmwareSerial(in); got != want {
			t.Errorf("ParseFirmwareSerial(%q) = %#x, want %#x", in, got, want)
		}
	}
}

func TestDeciKelvinToCentiCelsius(t *testing.T) {
	if got := DeciKelvinToCentiCelsius(2981); got != 2500 {
		t.Fatalf("expected 2500, got %d", got)
	}
	if got := DeciKelvinToCentiCelsius(2731); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestSplitCellVoltage(t *testing.T) {
	cells := SplitCellVoltage(12003)
	want := [CellCount]uint32{3000, 3000, 3000, 3003}
	if cells != want {
		t.Fatalf("expected %v, got %v", want, cells)
	}

	var sum uint32
	for _, c := range SplitCellVoltage(16801) {
		sum += c
	}
	if sum != 16801 {
		t.Fatalf("cell voltages must add up to the pack voltage, got %d", sum)
	}
}
