// Package thermal implements the §4.2 thermal subsystem: a lumped thermal
// mass integrated under solar heating, radiative loss, internal dissipation
// and commanded heater power, with Passive/Active/Emergency mode hysteresis.
package thermal

import (
	"math"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

const (
	tSinkC        = -10.0
	thermalMassC  = 500.0 // J/K, lumped
	kLossWPerK    = 3.0
	qSunW         = 40.0
	qRadW         = 15.0
	activeLowC    = 10.0
	activeHighC   = 40.0
	emergencyLowC = -30.0
	emergencyHighC = 65.0
	healthZeroLowC  = -30.0
	healthZeroHighC = 65.0
	healthFullLowC  = -20.0
	healthFullHighC = 50.0
	batteryTauS   = 120.0
	panelTauS     = 30.0
	orbitPeriodMS = 90 * 60 * 1000
)

// Subsystem is the thermal subsystem model, §4.2.
type Subsystem struct {
	state model.ThermalState
	log   *zap.Logger

	uptimeMS int64
	heaterOn bool
}

// New creates a thermal subsystem at a nominal boot state.
func New(logger *zap.Logger) *Subsystem {
	return &Subsystem{
		state: model.ThermalState{
			CoreTempC:      20,
			BatteryTempC:   18,
			PanelTempC:     15,
			Mode:           model.ThermalPassive,
			HeaterSetpoint: 15,
			HealthScore:    255,
		},
		log: logger.With(zap.String("component", "thermal")),
	}
}

// Execute applies a heater command, §4.2.
func (s *Subsystem) Execute(heaterOn *bool) string {
	if heaterOn == nil {
		return ""
	}
	s.heaterOn = *heaterOn
	if *heaterOn {
		s.state.HeaterPowerW = 25
		if s.state.Mode == model.ThermalPassive {
			s.state.Mode = model.ThermalActive
		}
	} else {
		s.state.HeaterPowerW = 0
	}
	s.log.Info("heater command applied", zap.Bool("on", *heaterOn))
	return ""
}

func solarFraction(uptimeMS int64) float64 {
	phase := 2 * math.Pi * float64(uptimeMS) / float64(orbitPeriodMS)
	v := math.Sin(phase)
	if v < 0 {
		return 0
	}
	return v
}

// Update integrates core/battery/panel temperatures forward by dt_ms and
// transitions thermal mode, §4.2. txPowerDBm and powerSave are read from the
// comms/power snapshots by the agent.
func (s *Subsystem) Update(dtMS int64, txPowerDBm int8, powerSave bool) {
	s.uptimeMS += dtMS
	dtS := float64(dtMS) / 1000.0

	qExt := qSunW*solarFraction(s.uptimeMS) - qRadW
	qInt := 2.0 + float64(txPowerDBm)*0.3
	if powerSave {
		qInt *= 0.5
	}

	qHeater := float64(s.state.HeaterPowerW)
	if s.state.FaultSet && s.state.Fault == model.FaultFailed {
		qHeater = 0 // heater circuit failed
	}

	dT := (qExt + qInt + qHeater - kLossWPerK*(float64(s.state.CoreTempC)-tSinkC)) / thermalMassC
	core := float64(s.state.CoreTempC) + dT*dtS

	if s.state.FaultSet && s.state.Fault == model.FaultIntermittent {
		core += 2 * math.Sin(float64(s.uptimeMS)/1000.0*5)
	}
	if s.state.FaultSet && s.state.Fault == model.FaultDegraded {
		core -= 0.05 * dtS * 10 // degraded insulation: extra 0.5 C/s cooling, past the sink toward the -50 C floor
	}

	if core > 125 {
		core = 125
	}
	if core < -50 {
		core = -50
	}
	s.state.CoreTempC = float32(core)

	s.state.BatteryTempC += float32((core - float64(s.state.BatteryTempC)) / batteryTauS * dtS)
	s.state.PanelTempC += float32((core - float64(s.state.PanelTempC)) / panelTauS * dtS)

	s.transitionMode(core)
	s.state.HealthScore = computeHealth(core)
}

func (s *Subsystem) transitionMode(core float64) {
	if s.state.Mode == model.ThermalEmergency {
		return // latched until operator clears, §4.2
	}
	switch s.state.Mode {
	case model.ThermalPassive:
		if core < activeLowC || core > activeHighC {
			s.state.Mode = model.ThermalActive
		}
	case model.ThermalActive:
		if core < emergencyLowC || core > emergencyHighC {
			s.state.Mode = model.ThermalEmergency
			s.log.Error("thermal emergency latched", zap.Float64("core_temp_c", core))
		}
	}
}

func computeHealth(core float64) uint8 {
	switch {
	case core >= healthFullLowC && core <= healthFullHighC:
		return 255
	case core <= healthZeroLowC || core >= healthZeroHighC:
		return 0
	case core < healthFullLowC:
		frac := (core - healthZeroLowC) / (healthFullLowC - healthZeroLowC)
		return uint8(frac * 255)
	default:
		frac := (healthZeroHighC - core) / (healthZeroHighC - healthFullHighC)
		return uint8(frac * 255)
	}
}

// ClearEmergencyLatch lets an operator clear a latched Emergency mode, §4.2.
func (s *Subsystem) ClearEmergencyLatch() {
	if s.state.Mode == model.ThermalEmergency {
		s.state.Mode = model.ThermalActive
		s.log.Info("thermal emergency latch cleared")
	}
}

// InjectFault drives the subsystem into a named fault mode, §4.2.
func (s *Subsystem) InjectFault(kind model.FaultKind) {
	s.state.Fault = kind
	s.state.FaultSet = true
	s.log.Warn("fault injected", zap.String("kind", string(kind)))
}

// ClearFaults removes any injected fault and any latched emergency mode.
func (s *Subsystem) ClearFaults() {
	s.state.Fault = ""
	s.state.FaultSet = false
	s.ClearEmergencyLatch()
	s.log.Info("faults cleared")
}

// IsHealthy reports whether the subsystem is outside the emergency bands.
func (s *Subsystem) IsHealthy() bool {
	return s.state.Mode != model.ThermalEmergency
}

// Snapshot returns a copy of the current state.
func (s *Subsystem) Snapshot() model.ThermalState {
	return s.state
}
