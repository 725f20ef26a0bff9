package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/firmware"
)

func TestTranslateOverride(t *testing.T) {
	s := firmware.String
	i := firmware.Integer
	p := firmware.Package

	tests := []struct {
		name string
		in   firmware.Object
		want map[string]any
		ok   bool
	}{
		{
			name: "pairs",
			in: p(
				s(KeyCorrectCorruptCapacities), s(">y"),
				s(KeyUseExtendedInformation), s(">n"),
				s(KeyCurrentDischargeRateMax), i(15000),
				s("Label"), s(">>y"),
			),
			want: map[string]any{
				KeyCorrectCorruptCapacities: true,
				KeyUseExtendedInformation:   false,
				KeyCurrentDischargeRateMax:  uint64(15000),
				"Label":                     ">y",
			},
			ok: true,
		},
		{
			name: "nested array value",
			in:   p(s("List"), p(p(), s(">n"), i(3))),
			want: map[string]any{"List": []any{false, uint64(3)}},
			ok:   true,
		},
		{
			name: "odd pair count",
			in:   p(s("a"), s(">y"), s("b")),
		},
		{
			name: "non-string key",
			in:   p(i(1), s(">y")),
		},
		{
			name: "array form is not a table",
			in:   p(p(), s(">y")),
		},
		{
			name: "empty",
			in:   p(),
		},
		{
			name: "not a package",
			in:   i(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TranslateOverride(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewBatteryMergesOverride(t *testing.T) {
	base := NewFileFromConfig(&RawFileConfig{}, "")

	b := NewBattery(base, nil)
	require.False(t, b.PollingOverridden)
	require.Equal(t, uint32(6), b.EstimateCycleCountDivisor)
	require.Equal(t, 30*time.Second, b.StandardPollInterval)
	require.Equal(t, QuickPollInterval, b.QuickPollInterval)

	b = NewBattery(base, map[string]any{
		KeyPollingPeriodOverride:              uint64(5),
		KeyUseDesignVoltageForCurrentCapacity: true,
		KeyCorrect16bitSignedCurrentRate:      true,
		KeyEstimateCycleCountDivisor:          uint64(0),
		KeyFirstPollDelay:                     uint64(250),
		KeyCorrectCorruptCapacities:           uint64(1), // wrong type, ignored
		"SomethingElse":                       true,
	})
	require.True(t, b.PollingOverridden)
	require.Equal(t, 5*time.Second, b.PollingPeriod)
	require.True(t, b.UseDesignVoltageForCurrentCapacity)
	require.True(t, b.Correct16bitSignedCurrentRate)
	require.Zero(t, b.EstimateCycleCountDivisor)
	require.Equal(t, 250*time.Millisecond, b.FirstPollDelay)
	require.False(t, b.CorrectCorruptCapacities)
}
