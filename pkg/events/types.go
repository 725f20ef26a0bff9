package events

import (
	"encoding/json"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

// Event names
const (
	BatteryState = "battery.state"
	BatteryError = "battery.error"
	AdapterState = "adapter.state"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// BatteryStateEvent is the payload of battery.state.
type BatteryStateEvent = battery.State

// BatteryErrorEvent is the payload of battery.error.
type BatteryErrorEvent = battery.ErrorEvent

// AdapterStateEvent is the payload of adapter.state.
type AdapterStateEvent struct {
	Connected bool  `json:"connected"`
	Ts        int64 `json:"ts"`
}

// DecodeAs decodes the event payload into T. The event name is not
// checked. Empty data yields the zero value.
//
// Example:
//
//	st, err := events.DecodeAs[events.BatteryStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(st.Slot, st.Condition)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
