package battery

import (
	"fmt"
	"time"
)

// ErrorKind names a data quality or read problem.
type ErrorKind string

const (
	ErrorZeroCapacity      ErrorKind = "Capacity Read Zero"
	ErrorPermanentFailure  ErrorKind = "Permanent Battery Failure"
	ErrorCorruptCapacity   ErrorKind = "Corrupt Capacity Corrected"
	ErrorReadFailed        ErrorKind = "Read Retry Attempts Exceeded"
	ErrorOverallTimeout    ErrorKind = "Overall Read Timeout Expired"
	ErrorFormatUnsupported ErrorKind = "Information Method Unsupported"
)

// ErrorEvent is emitted whenever a poll hits one of the ErrorKind
// conditions. None of them stop polling.
type ErrorEvent struct {
	Kind   ErrorKind `json:"kind"`
	Slot   string    `json:"slot"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

func (e ErrorEvent) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Slot, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Slot, e.Kind, e.Detail)
}

func newErrorEvent(kind ErrorKind, format string, a ...any) ErrorEvent {
	return ErrorEvent{
		Kind:   kind,
		Detail: fmt.Sprintf(format, a...),
		Time:   time.Now(),
	}
}
