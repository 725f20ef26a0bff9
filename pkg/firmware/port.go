// Package firmware abstracts the platform firmware methods a battery or AC
// adapter device exposes.
package firmware

import (
	"context"
	"errors"
)

// Method names evaluated on battery and adapter devices.
const (
	MethodStatus       = "_STA"
	MethodBasicInfo    = "_BIF"
	MethodExtendedInfo = "_BIX"
	MethodExtraInfo    = "BBIX"
	MethodBatteryState = "_BST"
	MethodPowerSource  = "_PSR"
	MethodOverrides    = "RMCF"
)

// StatusPresent is the device-present bit of _STA.
const StatusPresent = 0x10

var (
	// ErrMethodNotFound is returned when a device does not implement a method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrWrongType is returned when a method evaluates to an unexpected type.
	ErrWrongType = errors.New("method returned unexpected type")
)

// Port evaluates firmware methods on a single device.
type Port interface {
	// EvaluateInteger evaluates a method that returns an integer.
	EvaluateInteger(ctx context.Context, method string) (uint32, error)
	// EvaluateObject evaluates a method and returns its raw result.
	EvaluateObject(ctx context.Context, method string) (Object, error)
	// ValidateObject reports whether the device implements a method.
	ValidateObject(ctx context.Context, method string) bool
}
