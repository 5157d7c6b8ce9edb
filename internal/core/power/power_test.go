package power

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
	if snap.BatteryVoltageMV != 4200 {
		t.Fatalf("expected boot voltage 4200mV, got %d", snap.BatteryVoltageMV)
	}
	if !snap.SolarEnabled {
		t.Fatalf("expected solar enabled at boot")
	}
	if snap.HealthScore != 255 {
		t.Fatalf("expected full health score at boot, got %d", snap.HealthScore)
	}
}

func TestVoltageStaysWithinBounds(t *testing.T) {
	s := newTestSubsystem(t)
	for i := 0; i < 100_000; i++ {
		s.Update(100, 0)
		v := s.Snapshot().BatteryVoltageMV
		if v < batteryMinMV || v > batteryMaxMV {
			t.Fatalf("voltage escaped bounds at step %d: %d", i, v)
		}
	}
}

func TestVoltageStableUnderLargeStep(t *testing.T) {
	s := newTestSubsystem(t)
	// A single very large dt must not blow past the clamp, regardless of step size.
	s.Update(10_000_000, 0)
	v := s.Snapshot().BatteryVoltageMV
	if v < batteryMinMV || v > batteryMaxMV {
		t.Fatalf("voltage escaped bounds under large step: %d", v)
	}
}

func TestFaultFailedDrainsBattery(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultFailed)
	start := s.Snapshot().BatteryVoltageMV
	for i := 0; i < 500; i++ {
		s.Update(1000, 0)
	}
	end := s.Snapshot().BatteryVoltageMV
	if end >= start {
		t.Fatalf("expected a failed power subsystem to drain, start=%d end=%d", start, end)
	}
}

func TestClearFaultsRestoresNominalTrend(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultFailed)
	s.Update(1000, 0)
	s.ClearFaults()
	snap := s.Snapshot()
	if snap.FaultSet {
		t.Fatalf("expected FaultSet cleared")
	}
	if snap.Fault != "" {
		t.Fatalf("expected Fault kind cleared, got %q", snap.Fault)
	}
}

func TestExecuteSolarAndPowerSave(t *testing.T) {
	s := newTestSubsystem(t)
	off := false
	if reason := s.Execute(&off, nil); reason != "" {
		t.Fatalf("unexpected failure reason: %q", reason)
	}
	if s.Snapshot().SolarEnabled {
		t.Fatalf("expected solar disabled after command")
	}

	on := true
	if reason := s.Execute(nil, &on); reason != "" {
		t.Fatalf("unexpected failure reason: %q", reason)
	}
	if !s.Snapshot().PowerSave {
		t.Fatalf("expected power-save enabled after command")
	}
}

func TestLevelFromVoltageMonotone(t *testing.T) {
	prev := uint8(0)
	for mv := int16(0); mv <= 5000; mv += 50 {
		lvl := levelFromVoltage(mv)
		if lvl < prev {
			t.Fatalf("levelFromVoltage not monotone at %dmV: %d < %d", mv, lvl, prev)
		}
		prev = lvl
	}
	if levelFromVoltage(3000) != 0 {
		t.Fatalf("expected 0%% at 3000mV floor")
	}
	if levelFromVoltage(4200) != 100 {
		t.Fatalf("expected 100%% at 4200mV ceiling")
	}
}

func TestIntermittentFaultDoesNotEscapeBounds(t *testing.T) {
	s := newTestSubsystem(t)
	s.InjectFault(model.FaultIntermittent)
	for i := 0; i < 10_000; i++ {
		s.Update(100, 0)
		v := s.Snapshot().BatteryVoltageMV
		if v < batteryMinMV || v > batteryMaxMV {
			t.Fatalf("voltage escaped bounds with intermittent fault at step %d: %d", i, v)
		}
	}
}

func TestCommsLoadIncreasesDischarge(t *testing.T) {
	light := newTestSubsystem(t)
	heavy := newTestSubsystem(t)
	for i := 0; i < 50; i++ {
		light.Update(1000, 0)
		heavy.Update(1000, 5000)
	}
	if heavy.Snapshot().BatteryVoltageMV > light.Snapshot().BatteryVoltageMV {
		t.Fatalf("expected heavier comms load to not out-charge a lighter load: heavy=%d light=%d",
			heavy.Snapshot().BatteryVoltageMV, light.Snapshot().BatteryVoltageMV)
	}
}

func TestIsHealthyReflectsLowVoltage(t *testing.T) {
	s := newTestSubsystem(t)
	if !s.IsHealthy() {
		t.Fatalf("expected a freshly booted subsystem to be healthy")
	}
	s.InjectFault(model.FaultFailed)
	for i := 0; i < 2000; i++ {
		s.Update(1000, 0)
	}
	if s.IsHealthy() {
		t.Fatalf("expected a drained battery to be unhealthy")
	}
}
