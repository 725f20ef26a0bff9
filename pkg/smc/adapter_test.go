//go:build darwin

package smc

import (
	"context"
	"testing"

	"github.com/charlie0129/acpibatt/pkg/firmware"
)

func TestAdapterPort(t *testing.T) {
	tests := []struct {
		name string
		val  []byte
		want uint32
	}{
		{"plugged", []byte{0x1}, 1},
		{"unplugged", []byte{0x0}, 0},
		{"negative", []byte{0xFF}, 0},
		{"malformed", []byte{0x1, 0x1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAdapterPort(NewMock(map[string][]byte{ACPowerKey: tt.val}))
			got, err := p.EvaluateInteger(context.Background(), firmware.MethodPowerSource)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAdapterPortUnknownMethod(t *testing.T) {
	p := NewAdapterPort(NewMock(nil))
	if p.ValidateObject(context.Background(), firmware.MethodBatteryState) {
		t.Fatalf("adapter must not implement %s", firmware.MethodBatteryState)
	}
	if _, err := p.EvaluateObject(context.Background(), firmware.MethodBatteryState); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
