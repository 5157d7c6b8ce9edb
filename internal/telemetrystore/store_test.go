package telemetrystore

import (
	"testing"

	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/model"
)

func TestDisabledStoreIsANoOp(t *testing.T) {
	s, err := New(config.TelemetryStoreConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error constructing a disabled store: %v", err)
	}

	// Write must not dereference the (nil) writeAPI for a disabled store,
	// and must tolerate a packet with an empty performance history.
	s.Write(model.TelemetryPacket{})

	if err := s.HealthCheck(); err != nil {
		t.Fatalf("expected a disabled store to report healthy, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected a disabled store to close cleanly, got %v", err)
	}
}
