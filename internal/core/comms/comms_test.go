package comms

import (
	"testing"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

func newTestSubsystem(t *testing.T) *Subsystem {
	t.Helper()
	return New(zap.NewNop())
}

func TestNewBootState(t *testing.T) {
	s := newTestSubsystem(t)
	snap := s.Snapshot()
	if !snap.LinkUp {
		t.Fatalf("expected link up at boot")
	}
	if snap.TxPowerDBm != 10 {
		t.Fatalf("expected 10 dBm tx power at boot, got %d", snap.TxPowerDBm)
	}
}

func TestExecuteTxPowerRangeValidation(t *testing.T) {
	s := newTestSubsystem(t)
	tooHigh := int8(maxTxPowerDBm + 1)
	if reason := s.Execute(nil, &tooHigh, nil); reason == "" {
		t.Fatalf("expected out-of-range tx power to be rejected")
	}
	valid := int8(15)
	if reason := s.Execute(nil, &valid, nil); reason != "" {
		t.Fatalf("unexpected rejection of valid tx power: %q", reason)
	}
	if s.Snapshot().TxPowerDBm != 15 {
		t.Fatalf("expected tx power applied, got %d", s.Snapshot().TxPowerDBm)
	}
}

func TestOutboundQueueBoundedByCapacity(t *testing.T) {
	s := newTestSubsystem(t)
	msg := make([]byte, 8)
	for i := 0; i < model.OutboundQueueCapacity; i++ {
		if reason := s.Execute(nil, nil, msg); reason != "" {
			t.Fatalf("unexpected rejection at queue depth %d: %q", i, reason)
		}
	}
	if reason := s.Execute(nil, nil, msg); reason == "" {
		t.Fatalf("expected queue-full rejection once capacity is reached")
	}
}

func TestTransmitMessageMaxLengthEnforced(t *testing.T) {
	s := newTestSubsystem(t)
	tooLong := make([]byte, model.OutboundMessageMaxBytes+1)
	if reason := s.Execute(nil, nil, tooLong); reason == "" {
		t.Fatalf("expected oversized message to be rejected")
	}
}

func TestQueueDrainsOverTicks(t *testing.T) {
	s := newTestSubsystem(t)
	for i := 0; i < 5; i++ {
		s.Execute(nil, nil, []byte("hello"))
	}
	if s.Snapshot().TxQueueDepth != 5 {
		t.Fatalf("expected queue depth 5 before any update, got %d", s.Snapshot().TxQueueDepth)
	}
	s.Update(1000)
	if s.Snapshot().TxQueueDepth >= 5 {
		t.Fatalf("expected queue to drain after an update, got depth %d", s.Snapshot().TxQueueDepth)
	}
}

func TestFailedFaultPinsSignalToNoise(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultFailed)
	s.Update(1000)
	if s.Snapshot().HealthScore != 0 {
		t.Fatalf("expected a failed comms subsystem to have zero health, got %d", s.Snapshot().HealthScore)
	}
}

func TestLinkLostRequiresGracePeriod(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultFailed)
	s.Update(100)
	if s.LinkLost() {
		t.Fatalf("expected link-lost to require the grace period to elapse first")
	}
	for i := 0; i < 40; i++ {
		s.Update(100)
	}
	if !s.LinkLost() {
		t.Fatalf("expected link-lost after sustained below-margin signal exceeds the grace period")
	}
}

func TestLinkLostClearsWhenLinkCommandedDown(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultFailed)
	for i := 0; i < 40; i++ {
		s.Update(100)
	}
	if !s.LinkLost() {
		t.Fatalf("expected link-lost before commanding the link down")
	}
	down := false
	s.Execute(&down, nil, nil)
	s.Update(100)
	if s.LinkLost() {
		t.Fatalf("expected LinkLost to report false once the link is deliberately down, §4.3")
	}
}

func TestForceTxOffZeroesPower(t *testing.T) {
	s := newTestSubsystem(t)
	s.ForceTxOff()
	if s.Snapshot().TxPowerDBm != 0 {
		t.Fatalf("expected ForceTxOff to zero tx power, got %d", s.Snapshot().TxPowerDBm)
	}
}

func TestIsHealthyReflectsLinkState(t *testing.T) {
	s := newTestSubsystem(t)
	if !s.IsHealthy() {
		t.Fatalf("expected a freshly booted subsystem to be healthy")
	}
	down := false
	s.Execute(&down, nil, nil)
	if s.IsHealthy() {
		t.Fatalf("expected IsHealthy false when the link is commanded down")
	}
}
