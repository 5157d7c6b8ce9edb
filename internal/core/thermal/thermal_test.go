package thermal

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
	if snap.Mode != model.ThermalPassive {
		t.Fatalf("expected passive mode at boot, got %v", snap.Mode)
	}
	if snap.CoreTempC != 20 {
		t.Fatalf("expected 20C core temp at boot, got %v", snap.CoreTempC)
	}
}

func TestCoreTempStaysWithinHardBounds(t *testing.T) {
	s := newTestSubsystem(t)
	for i := 0; i < 100_000; i++ {
		s.Update(100, 0, false)
		core := s.Snapshot().CoreTempC
		if core < -50 || core > 125 {
			t.Fatalf("core temp escaped hard bounds at step %d: %v", i, core)
		}
	}
}

func TestLargeStepDoesNotEscapeBounds(t *testing.T) {
	s := newTestSubsystem(t)
	s.Update(10_000_000, 0, false)
	core := s.Snapshot().CoreTempC
	if core < -50 || core > 125 {
		t.Fatalf("core temp escaped bounds under large step: %v", core)
	}
}

func TestEmergencyModeLatchesUntilCleared(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultDegraded)
	for i := 0; i < 10_000; i++ {
		s.Update(1000, 30, false)
	}
	if s.Snapshot().Mode != model.ThermalEmergency {
		t.Fatalf("expected thermal emergency to latch under a sustained degraded fault, got mode %v", s.Snapshot().Mode)
	}

	// Even after conditions would recover, mode stays latched without an
	// explicit clear.
	s.ClearFaults()
	before := s.Snapshot().Mode
	if before == model.ThermalEmergency {
		t.Fatalf("expected ClearFaults to also clear the emergency latch")
	}
}

func TestEmergencyLatchRequiresExplicitClear(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultDegraded)
	for i := 0; i < 10_000; i++ {
		s.Update(1000, 30, false)
	}
	if s.Snapshot().Mode != model.ThermalEmergency {
		t.Fatalf("expected emergency latch")
	}

	// Updates alone, without a clear, must not un-latch emergency.
	for i := 0; i < 100; i++ {
		s.Update(1000, 0, false)
	}
	if s.Snapshot().Mode != model.ThermalEmergency {
		t.Fatalf("expected emergency mode to remain latched across further updates")
	}

	s.ClearEmergencyLatch()
	if s.Snapshot().Mode == model.ThermalEmergency {
		t.Fatalf("expected explicit clear to un-latch emergency mode")
	}
}

func TestHeaterCommandTransitionsToActive(t *testing.T) {
	s := newTestSubsystem(t)
	on := true
	if reason := s.Execute(&on); reason != "" {
		t.Fatalf("unexpected failure reason: %q", reason)
	}
	if s.Snapshot().Mode != model.ThermalActive {
		t.Fatalf("expected heater-on command to move out of passive mode, got %v", s.Snapshot().Mode)
	}
	if s.Snapshot().HeaterPowerW <= 0 {
		t.Fatalf("expected nonzero heater power after heater-on command")
	}
}

func TestFailedHeaterCircuitProducesNoHeat(t *testing.T) {
	control := newTestSubsystem(t)
	failed := newTestSubsystem(t)

	on := true
	control.Execute(&on)
	failed.Execute(&on)
	failed.InjectFault(model.FaultFailed)

	for i := 0; i < 200; i++ {
		control.Update(1000, 0, false)
		failed.Update(1000, 0, false)
	}

	if failed.Snapshot().CoreTempC > control.Snapshot().CoreTempC {
		t.Fatalf("expected a failed heater circuit to run cooler than a working one: failed=%v control=%v",
			failed.Snapshot().CoreTempC, control.Snapshot().CoreTempC)
	}
}

func TestIsHealthyReflectsEmergencyMode(t *testing.T) {
	s := newTestSubsystem(t)
	if !s.IsHealthy() {
		t.Fatalf("expected a freshly booted subsystem to be healthy")
	}
	s.InjectFault(model.FaultDegraded)
	for i := 0; i < 10_000; i++ {
		s.Update(1000, 30, false)
	}
	if s.IsHealthy() {
		t.Fatalf("expected latched emergency mode to be unhealthy")
	}
}
