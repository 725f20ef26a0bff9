package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	require.Equal(t, 1, h.Subscribers())

	h.Publish(AdapterState, AdapterStateEvent{Connected: true, Ts: 42})

	ev := <-ch
	require.Equal(t, AdapterState, ev.Name)
	payload, err := DecodeAs[AdapterStateEvent](ev)
	require.NoError(t, err)
	require.Equal(t, AdapterStateEvent{Connected: true, Ts: 42}, payload)

	h.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, h.Subscribers())

	// A second unsubscribe is a no-op.
	h.Unsubscribe(ch)
}

func TestBatteryPayloads(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	h.Publish(BatteryState, battery.AbsentState("BAT0", "BAT0", false))
	st, err := DecodeAs[BatteryStateEvent](<-ch)
	require.NoError(t, err)
	require.Equal(t, "BAT0", st.Slot)
	require.Equal(t, battery.ConditionAbsent, st.Condition)

	h.Publish(BatteryError, battery.ErrorEvent{Kind: battery.ErrorZeroCapacity, Slot: "BAT1"})
	e, err := DecodeAs[BatteryErrorEvent](<-ch)
	require.NoError(t, err)
	require.Equal(t, battery.ErrorZeroCapacity, e.Kind)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(AdapterState, AdapterStateEvent{Ts: int64(i)})
	}
	require.Len(t, ch, subscriberBuffer)
}

func TestClose(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	h.Close()

	_, ok := <-ch
	require.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late
	require.False(t, ok)

	h.Publish(AdapterState, AdapterStateEvent{})
}

func TestDecodeEmpty(t *testing.T) {
	v, err := DecodeAs[AdapterStateEvent](Event{Name: AdapterState})
	require.NoError(t, err)
	require.Zero(t, v)
}
