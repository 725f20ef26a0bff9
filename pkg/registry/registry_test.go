package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBattery struct {
	slot        string
	discharging bool
}

func (f *fakeBattery) Slot() string      { return f.slot }
func (f *fakeBattery) Discharging() bool { return f.discharging }

func TestAddRemove(t *testing.T) {
	r := New[*fakeBattery]()

	require.True(t, r.Add(&fakeBattery{slot: "BAT0"}))
	require.False(t, r.Add(&fakeBattery{slot: "BAT0"}))
	require.True(t, r.Add(&fakeBattery{slot: "BAT1"}))
	require.Equal(t, 2, r.Len())

	m, ok := r.Remove("BAT0")
	require.True(t, ok)
	require.Equal(t, "BAT0", m.Slot())

	_, ok = r.Remove("BAT0")
	require.False(t, ok)

	_, ok = r.Get("BAT1")
	require.True(t, ok)
}

func TestVisitEachMemberOnce(t *testing.T) {
	r := New[*fakeBattery]()
	for _, s := range []string{"BAT2", "BAT0", "BAT1"} {
		r.Add(&fakeBattery{slot: s})
	}

	seen := map[string]int{}
	r.Visit(func(m *fakeBattery) {
		seen[m.Slot()]++
		// Membership changes during a visit must not affect it.
		r.Remove("BAT2")
		r.Add(&fakeBattery{slot: "BAT9"})
	})

	require.Equal(t, map[string]int{"BAT0": 1, "BAT1": 1, "BAT2": 1}, seen)
	require.Equal(t, 3, r.Len())
}

func TestAnyOtherDischarging(t *testing.T) {
	tests := []struct {
		name    string
		members []*fakeBattery
		except  string
		want    bool
	}{
		{
			name:   "empty",
			except: "BAT0",
			want:   false,
		},
		{
			name:    "only self discharging",
			members: []*fakeBattery{{slot: "BAT0", discharging: true}, {slot: "BAT1"}},
			except:  "BAT0",
			want:    false,
		},
		{
			name:    "sibling discharging",
			members: []*fakeBattery{{slot: "BAT0"}, {slot: "BAT1", discharging: true}},
			except:  "BAT0",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[*fakeBattery]()
			for _, m := range tt.members {
				r.Add(m)
			}
			require.Equal(t, tt.want, r.AnyOtherDischarging(tt.except))
		})
	}
}
