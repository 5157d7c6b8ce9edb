// Package power implements the §4.1 power subsystem: battery voltage
// integration under a solar-availability model, fault injection, and the
// BatteryLow/BatteryUnstable fail conditions the safety manager watches for.
package power

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

const (
	batteryMaxMV   = 5000
	batteryMinMV   = 0
	lowVoltageMV   = 3200
	unstableVarMV  = 120 // variance threshold, millivolts, raises BatteryUnstable
	orbitPeriodMS  = 90 * 60 * 1000
	solarMaxMA     = 8000
	loadBaselineMA = 600
	loadPowerSaveMA = 400
	internalResistOhm = 0.08
	lagAlpha       = 0.02 // per-second lag coefficient toward equilibrium
	voltageHistLen = 16
)

// Subsystem is the power subsystem model, §4.1.
type Subsystem struct {
	state model.PowerState
	log   *zap.Logger

	uptimeMS       int64
	faultNoiseAcc  float64
	voltageHistory []int16
}

// New creates a power subsystem at a nominal boot state.
func New(logger *zap.Logger) *Subsystem {
	return &Subsystem{
		state: model.PowerState{
			BatteryVoltageMV: 4200,
			SolarEnabled:     true,
			SystemVoltageMV:  3300,
			BootCount:        1,
			FirmwareHash:     0xA5A5A5A5,
			HealthScore:      255,
		},
		log: logger.With(zap.String("component", "power")),
	}
}

// Execute applies a parsed power command, §4.1. Returns a failure reason
// string (empty on success) per the §7 subsystem-layer error contract.
func (s *Subsystem) Execute(setSolarPanel *bool, setPowerSave *bool) string {
	if setSolarPanel != nil {
		s.state.SolarEnabled = *setSolarPanel
		s.log.Info("solar panel command applied", zap.Bool("enabled", *setSolarPanel))
	}
	if setPowerSave != nil {
		s.state.PowerSave = *setPowerSave
		s.log.Info("power-save command applied", zap.Bool("power_save", *setPowerSave))
	}
	return ""
}

// solarCoefficient is a clipped sinusoid of uptime with a ~90 minute period.
func solarCoefficient(uptimeMS int64) float64 {
	phase := 2 * math.Pi * float64(uptimeMS) / float64(orbitPeriodMS)
	v := math.Sin(phase)
	if v < 0 {
		return 0
	}
	return v
}

// Update integrates the power state forward by dt_ms, §4.1. commsLoadMA is
// the comms-driven load component, read from the comms snapshot by the
// agent and passed in explicitly to keep this package free of cross-package
// coupling.
func (s *Subsystem) Update(dtMS int64, commsLoadMA int32) {
	s.uptimeMS += dtMS
	dtS := float64(dtMS) / 1000.0

	eff := 1.0
	switch {
	case s.state.FaultSet && s.state.Fault == model.FaultDegraded:
		eff = 0.5
	case s.state.FaultSet && s.state.Fault == model.FaultFailed:
		eff = 0
	}

	solarMA := 0.0
	if s.state.SolarEnabled {
		solarMA = solarCoefficient(s.uptimeMS) * solarMaxMA * eff
	}
	s.state.SolarInputMA = int32(solarMA)

	loadMA := float64(loadBaselineMA)
	if !s.state.PowerSave {
		loadMA += loadPowerSaveMA
	}
	loadMA += float64(commsLoadMA)

	netMA := solarMA - loadMA
	if s.state.FaultSet && s.state.Fault == model.FaultFailed {
		netMA -= 300 // pinned decline
	}

	vEq := 3700.0 + netMA*internalResistOhm
	if vEq > batteryMaxMV {
		vEq = batteryMaxMV
	}
	if vEq < batteryMinMV {
		vEq = batteryMinMV
	}
	if s.state.FaultSet && s.state.Fault == model.FaultFailed {
		vEq = batteryMinMV // pinned decline: no equilibrium above the floor
	}

	alpha := lagAlpha
	if s.state.FaultSet && s.state.Fault == model.FaultFailed {
		alpha *= 3 // accelerated discharge
	}

	v := float64(s.state.BatteryVoltageMV)
	v += alpha * (vEq - v) * dtS

	if s.state.FaultSet && s.state.Fault == model.FaultIntermittent {
		s.faultNoiseAcc += dtS
		v += 80 * math.Sin(s.faultNoiseAcc*7)
	}

	if v > batteryMaxMV {
		v = batteryMaxMV
	}
	if v < batteryMinMV {
		v = batteryMinMV
	}

	s.state.BatteryVoltageMV = int16(v)
	s.state.Charging = netMA > 0
	if netMA > 0 {
		s.state.ChargeCurrentMA = int32(netMA)
		s.state.DischargeCurrentMA = 0
	} else {
		s.state.ChargeCurrentMA = 0
		s.state.DischargeCurrentMA = int32(-netMA)
	}

	s.pushVoltageHistory(s.state.BatteryVoltageMV)
	s.state.BatteryLevelPct = levelFromVoltage(s.state.BatteryVoltageMV)
	s.state.HealthScore = s.computeHealth()
}

func (s *Subsystem) pushVoltageHistory(v int16) {
	s.voltageHistory = append(s.voltageHistory, v)
	if len(s.voltageHistory) > voltageHistLen {
		s.voltageHistory = s.voltageHistory[len(s.voltageHistory)-voltageHistLen:]
	}
}

// levelFromVoltage is the monotone piecewise mapping from voltage to level%, §4.1.
func levelFromVoltage(mv int16) uint8 {
	switch {
	case mv <= 3000:
		return 0
	case mv >= 4200:
		return 100
	default:
		return uint8((int(mv) - 3000) * 100 / (4200 - 3000))
	}
}

func (s *Subsystem) computeHealth() uint8 {
	v := s.state.BatteryVoltageMV
	if v >= lowVoltageMV {
		return 255
	}
	if v <= batteryMinMV {
		return 0
	}
	return uint8(int(v) * 255 / lowVoltageMV)
}

// VoltageVariance returns a crude variance estimate (max-min over the ring)
// used by BatteryUnstable detection.
func (s *Subsystem) VoltageVariance() int16 {
	hist := s.voltageHistory
	if len(hist) < 2 {
		return 0
	}
	lo, hi := hist[0], hist[0]
	for _, v := range hist {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// InjectFault drives the subsystem into a named fault mode, §4.1.
func (s *Subsystem) InjectFault(kind model.FaultKind) {
	s.state.Fault = kind
	s.state.FaultSet = true
	s.log.Warn("fault injected", zap.String("kind", string(kind)))
}

// ClearFaults removes any injected fault, §4.1.
func (s *Subsystem) ClearFaults() {
	s.state.Fault = ""
	s.state.FaultSet = false
	s.faultNoiseAcc = 0
	s.log.Info("faults cleared")
}

// IsHealthy reports whether the subsystem is free of BatteryLow/Unstable conditions.
func (s *Subsystem) IsHealthy() bool {
	return s.state.BatteryVoltageMV > lowVoltageMV && s.VoltageVariance() < unstableVarMV
}

// Snapshot returns a copy of the current state.
func (s *Subsystem) Snapshot() model.PowerState {
	return s.state
}

// LoadCurrentMA is the load current the comms subsystem should be billed
// against when calculating its own internal dissipation, exposed so the
// agent can wire cross-subsystem coupling explicitly rather than via shared
// mutable state.
func (s *Subsystem) LoadCurrentMA() int32 {
	loadMA := int32(loadBaselineMA)
	if !s.state.PowerSave {
		loadMA += loadPowerSaveMA
	}
	return loadMA
}

func (s *Subsystem) String() string {
	return fmt.Sprintf("power{v=%dmV level=%d%% fault=%v}", s.state.BatteryVoltageMV, s.state.BatteryLevelPct, s.state.Fault)
}
