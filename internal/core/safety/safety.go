// Package safety implements the §4.4 safety manager: threshold monitoring
// with hysteresis, the safe-mode FSM, the watchdog, and the bounded event
// history ring.
package safety

import (
	"go.uber.org/zap"

	"satbus/internal/core/model"
)

// Absolute thresholds, §4.4.
const (
	batteryCriticalMV = 3200
	batteryWarningMV  = 3400

	tempCriticalLowC  = -40.0
	tempWarningLowC   = -30.0
	tempWarningHighC  = 65.0
	tempCriticalHighC = 75.0

	commsCriticalDownMS = 5000

	raiseHoldMS  = 500
	lowerHoldMS  = 2000
	exitQuietMS  = 2000

	defaultWatchdogIntervalMS = 2000
)

// PowerSnapshot, ThermalSnapshot and CommsSnapshot are the minimal subsystem
// views the safety manager reads, decoupling it from the subsystem packages.
type PowerSnapshot struct {
	BatteryVoltageMV int16
	VoltageVariance  int16
}

type ThermalSnapshot struct {
	CoreTempC float32
}

type CommsSnapshot struct {
	LinkLost bool
}

// condition tracks one hysteresis-gated predicate: how long it has been
// continuously true or false.
type condition struct {
	kind       model.SafetyEventKind
	level      model.SafetyLevel
	active     bool // predicate currently true
	trueForMS  int64
	falseForMS int64
	raised     bool // has an unresolved event for this condition
}

// Manager is the safety manager, §4.4.
type Manager struct {
	state model.SafetyState
	log   *zap.Logger

	watchdogIntervalMS int64
	lastWatchdogAtMS    int64
	watchdogPrimed      bool

	conditions      map[model.SafetyEventKind]*condition
	exitQuietForMS  int64
	missedWatchdogs int
}

// New creates a safety manager; the watchdog is primed by the first Update.
func New(logger *zap.Logger, nowMS int64) *Manager {
	m := &Manager{
		state: model.SafetyState{
			Level:              model.LevelNormal,
			LastTransitionMS:   nowMS,
			Events:             make([]model.SafetyEvent, 0, model.SafetyEventHistoryCapacity),
			WatchdogDeadlineMS: nowMS + defaultWatchdogIntervalMS,
		},
		log:                logger.With(zap.String("component", "safety")),
		watchdogIntervalMS: defaultWatchdogIntervalMS,
		lastWatchdogAtMS:   nowMS,
	}
	m.conditions = map[model.SafetyEventKind]*condition{
		model.EventBatteryLow:      {kind: model.EventBatteryLow, level: model.LevelCritical},
		model.EventBatteryUnstable: {kind: model.EventBatteryUnstable, level: model.LevelWarning},
		model.EventTemperatureLow:  {kind: model.EventTemperatureLow, level: model.LevelWarning},
		model.EventTemperatureHigh: {kind: model.EventTemperatureHigh, level: model.LevelWarning},
		model.EventCommsLinkLost:   {kind: model.EventCommsLinkLost, level: model.LevelCritical},
	}
	return m
}

// Update reads subsystem snapshots, advances the FSM, and returns the
// Actions the agent should apply this tick, §4.4.
func (m *Manager) Update(nowMS int64, dtMS int64, power PowerSnapshot, thermal ThermalSnapshot, comms CommsSnapshot) model.Actions {
	m.feedWatchdog(nowMS)

	m.evaluate(model.EventBatteryLow, power.BatteryVoltageMV <= batteryCriticalMV, dtMS, nowMS)
	m.evaluate(model.EventBatteryUnstable, power.VoltageVariance > 120, dtMS, nowMS)
	m.evaluateTempLow(thermal.CoreTempC, dtMS, nowMS)
	m.evaluateTempHigh(thermal.CoreTempC, dtMS, nowMS)
	m.evaluate(model.EventCommsLinkLost, comms.LinkLost, dtMS, nowMS)

	newLevel := m.maxActiveLevel()
	m.stepLevel(newLevel, nowMS)

	m.updateSafeMode(nowMS, dtMS, newLevel)

	return m.computeActions()
}

func (m *Manager) evaluateTempLow(coreC float32, dtMS, nowMS int64) {
	critical := coreC <= tempCriticalLowC
	warning := coreC <= tempWarningLowC
	c := m.conditions[model.EventTemperatureLow]
	if critical {
		c.level = model.LevelCritical
	} else if warning {
		c.level = model.LevelWarning
	}
	m.evaluate(model.EventTemperatureLow, warning || critical, dtMS, nowMS)
}

func (m *Manager) evaluateTempHigh(coreC float32, dtMS, nowMS int64) {
	critical := coreC >= tempCriticalHighC
	warning := coreC >= tempWarningHighC
	c := m.conditions[model.EventTemperatureHigh]
	if critical {
		c.level = model.LevelCritical
	} else if warning {
		c.level = model.LevelWarning
	}
	m.evaluate(model.EventTemperatureHigh, warning || critical, dtMS, nowMS)
}

// evaluate runs one predicate through the hysteresis gate: it must be
// continuously true for >= raiseHoldMS before raising an event, and
// continuously false for >= lowerHoldMS before the event resolves, §4.4.
func (m *Manager) evaluate(kind model.SafetyEventKind, predicateTrue bool, dtMS, nowMS int64) {
	c := m.conditions[kind]
	if predicateTrue {
		c.trueForMS += dtMS
		c.falseForMS = 0
	} else {
		c.falseForMS += dtMS
		c.trueForMS = 0
	}

	if !c.raised && predicateTrue && c.trueForMS >= raiseHoldMS {
		c.raised = true
		m.appendEvent(model.SafetyEvent{Kind: kind, Level: c.level, TimestampMS: nowMS, Resolved: false})
		if c.level.Rank() >= model.LevelCritical.Rank() {
			m.exitQuietForMS = 0
		}
		m.log.Warn("safety event raised", zap.String("kind", string(kind)), zap.String("level", string(c.level)))
	}

	if c.raised && !predicateTrue && c.falseForMS >= lowerHoldMS {
		c.raised = false
		m.resolveEvent(kind)
		m.log.Info("safety event resolved", zap.String("kind", string(kind)))
	}
}

func (m *Manager) appendEvent(e model.SafetyEvent) {
	if len(m.state.Events) >= model.SafetyEventHistoryCapacity {
		m.dropOldestEvent()
	}
	m.state.Events = append(m.state.Events, e)
}

func (m *Manager) dropOldestEvent() {
	for i, e := range m.state.Events {
		if e.Resolved {
			m.state.Events = append(m.state.Events[:i], m.state.Events[i+1:]...)
			return
		}
	}
	m.state.Events = m.state.Events[1:]
}

func (m *Manager) resolveEvent(kind model.SafetyEventKind) {
	for i := len(m.state.Events) - 1; i >= 0; i-- {
		if m.state.Events[i].Kind == kind && !m.state.Events[i].Resolved {
			m.state.Events[i].Resolved = true
			return
		}
	}
}

func (m *Manager) maxActiveLevel() model.SafetyLevel {
	best := model.LevelNormal
	for _, c := range m.conditions {
		if c.raised && c.level.Rank() > best.Rank() {
			best = c.level
		}
	}
	if m.missedWatchdogs >= 2 {
		if model.LevelCritical.Rank() > best.Rank() {
			best = model.LevelCritical
		}
	}
	return best
}

// stepLevel moves the reported level by at most one rank per tick, §8.
func (m *Manager) stepLevel(target model.SafetyLevel, nowMS int64) {
	cur := m.state.Level.Rank()
	tgt := target.Rank()
	if cur == tgt {
		return
	}
	if tgt > cur {
		cur++
	} else {
		cur--
	}
	newLevel := model.LevelFromRank(cur)
	if newLevel != m.state.Level {
		m.state.Level = newLevel
		m.state.LastTransitionMS = nowMS
		m.log.Info("safety level changed", zap.String("level", string(newLevel)))
	}
}

// updateSafeMode gates entry on activeLevel, the safety manager's immediate
// maxActiveLevel() for this tick, not on m.state.Level: stepLevel only moves
// the reported level one rank per tick, so gating entry on the reported
// level would delay safe-mode activation by however many ticks it takes the
// report to catch up to a Critical/Emergency condition, §4.4 scenario 4
// ("safe-mode active on the following tick" after the raise hold elapses).
// Exit eligibility in DisableSafeMode intentionally still reads the
// reported, hysteresis-stepped level: that is a distinct, slower-to-relax
// guard against flapping back out of safe mode.
func (m *Manager) updateSafeMode(nowMS int64, dtMS int64, activeLevel model.SafetyLevel) {
	if m.state.Level.Rank() >= model.LevelCritical.Rank() {
		m.exitQuietForMS = 0
	} else {
		m.exitQuietForMS += dtMS
	}

	shouldEnter := activeLevel.Rank() >= model.LevelCritical.Rank() || m.state.ManualSafeMode
	if shouldEnter && !m.state.SafeModeActive {
		m.state.SafeModeActive = true
		m.log.Warn("safe mode entered", zap.String("level", string(activeLevel)))
	}
}

// ForceSafeMode asserts manual safe mode, §4.4.
func (m *Manager) ForceSafeMode(nowMS int64) {
	m.state.ManualSafeMode = true
	if !m.state.SafeModeActive {
		m.state.SafeModeActive = true
		m.log.Warn("safe mode forced by operator")
	}
}

// DisableSafeMode exits safe mode, honoring the hysteresis/override rules
// of §4.4: either the level has been <= Warning with no Critical/Emergency
// event in the preceding exitQuietMS, or force is true (operator override).
func (m *Manager) DisableSafeMode(nowMS int64, force bool) bool {
	if !m.state.SafeModeActive {
		return true
	}
	eligible := m.state.Level.Rank() <= model.LevelWarning.Rank() && m.exitQuietForMS >= exitQuietMS
	if !force && !eligible {
		return false
	}
	m.state.SafeModeActive = false
	m.state.ManualSafeMode = false
	m.state.LastTransitionMS = nowMS
	m.log.Info("safe mode exited", zap.Bool("forced", force))
	return true
}

func (m *Manager) computeActions() model.Actions {
	if !m.state.SafeModeActive {
		return model.Actions{RestoreNormalOperations: true}
	}
	return model.Actions{
		EnableEmergencyPowerSave: true,
		DisableHeaters:           m.state.Level.Rank() >= model.LevelEmergency.Rank(),
		DisableCommsTx:           true,
		ForceSolarOn:             true,
		EnableSurvivalMode:       m.state.Level.Rank() >= model.LevelEmergency.Rank(),
	}
}

// feedWatchdog must be invoked at least every watchdog_interval_ms; two
// consecutive misses append a WatchdogTimeout event at Critical, §4.4.
func (m *Manager) feedWatchdog(nowMS int64) {
	if !m.watchdogPrimed {
		m.lastWatchdogAtMS = nowMS
		m.watchdogPrimed = true
		return
	}
	elapsed := nowMS - m.lastWatchdogAtMS
	m.lastWatchdogAtMS = nowMS
	m.state.WatchdogDeadlineMS = nowMS + m.watchdogIntervalMS

	if elapsed > m.watchdogIntervalMS {
		m.missedWatchdogs++
		if m.missedWatchdogs == 2 {
			m.appendEvent(model.SafetyEvent{Kind: model.EventWatchdogTimeout, Level: model.LevelCritical, TimestampMS: nowMS, Resolved: false})
			m.log.Error("watchdog timeout: two consecutive missed deadlines")
		}
	} else {
		m.missedWatchdogs = 0
	}
}

// EventHistory returns a copy of the event ring, §4.4.
func (m *Manager) EventHistory() []model.SafetyEvent {
	out := make([]model.SafetyEvent, len(m.state.Events))
	copy(out, m.state.Events)
	return out
}

// ClearResolved drops resolved events from the ring, §4.4.
func (m *Manager) ClearResolved() {
	kept := m.state.Events[:0]
	for _, e := range m.state.Events {
		if !e.Resolved {
			kept = append(kept, e)
		}
	}
	m.state.Events = kept
}

// Snapshot returns a copy of the current safety state.
func (m *Manager) Snapshot() model.SafetyState {
	return m.state
}
