// Package agent is the single-owner composite that funnels every mutation
// through one tick loop, §9: it is the only actor that mutates subsystem,
// safety, scheduler, tracker or telemetry state within a tick.
package agent

import (
	"fmt"

	"go.uber.org/zap"

	"satbus/internal/core/comms"
	"satbus/internal/core/model"
	"satbus/internal/core/power"
	"satbus/internal/core/protocol"
	"satbus/internal/core/safety"
	"satbus/internal/core/scheduler"
	"satbus/internal/core/telemetry"
	"satbus/internal/core/thermal"
)

// PerformanceSource is re-exported so callers need only import this package.
type PerformanceSource = telemetry.PerformanceSource

// EventRecorder is the optional write-only audit sink for terminal commands
// and resolved safety events, §4.4/§4.5. A nil EventRecorder is a no-op: the
// agent works identically whether or not a flight recorder is wired in.
type EventRecorder interface {
	RecordCommand(model.TrackedCommand)
	RecordSafetyEvent(model.SafetyEvent)
}

type safetyEventKey struct {
	kind        model.SafetyEventKind
	timestampMS int64
}

// Agent is the §2/§9 single-threaded tick-loop composition.
type Agent struct {
	power   *power.Subsystem
	thermal *thermal.Subsystem
	comms   *comms.Subsystem
	safety  *safety.Manager
	sched   *scheduler.Scheduler
	proto   *protocol.Handler
	packer  *telemetry.Packer
	perf    PerformanceSource
	rec     EventRecorder

	faultInjectionEnabled bool
	lastTelemetry         model.TelemetryPacket
	recordedCmdIDs        map[uint32]struct{}
	recordedEventKeys     map[safetyEventKey]struct{}

	log *zap.Logger
}

// New creates an Agent with every subsystem at its nominal boot state.
func New(logger *zap.Logger, nowMS int64, perf PerformanceSource) *Agent {
	return &Agent{
		power:                 power.New(logger),
		thermal:               thermal.New(logger),
		comms:                 comms.New(logger),
		safety:                safety.New(logger, nowMS),
		sched:                 scheduler.New(logger),
		proto:                 protocol.New(logger),
		packer:                telemetry.New(logger),
		perf:                  perf,
		faultInjectionEnabled: true,
		recordedCmdIDs:        make(map[uint32]struct{}),
		recordedEventKeys:     make(map[safetyEventKey]struct{}),
		log:                   logger.With(zap.String("component", "agent")),
	}
}

// SetRecorder attaches the flight recorder after construction: the
// recorder's own DB lifecycle is wired independently by Fx, and the agent
// must exist before it can be handed to the recorder's wiring step.
func (a *Agent) SetRecorder(rec EventRecorder) { a.rec = rec }

// safeModeBlocked commands, §6: rejected while safe mode is active.
func (a *Agent) safeModeBlocked(cmd model.Command) bool {
	switch cmd.Type.Kind {
	case model.CmdSetSolarPanel:
		return cmd.Type.Params.Enabled != nil && !*cmd.Type.Params.Enabled
	case model.CmdSetCommsLink:
		return cmd.Type.Params.Enabled != nil && *cmd.Type.Params.Enabled
	case model.CmdSetHeaterState:
		return true
	case model.CmdSetTxPower:
		return true
	case model.CmdTransmitMessage:
		return true
	case model.CmdSimulateFault:
		return true
	default:
		return false
	}
}

// HandleLine parses, validates and accepts one inbound NDJSON line, §4.5/§6.
// Read-only queries (Ping, SystemStatus, GetFaultInjectionStatus) are
// answered at once; every other command is only scheduled at acceptance for
// the tick loop to dispatch, keeping all mutation inside Tick.
func (a *Agent) HandleLine(line []byte, nowMS int64) []byte {
	cmd, perr := a.proto.Parse(line)
	if perr != nil {
		resp := model.Response{TimestampMS: uint64(nowMS), Status: model.RespError, Message: perr.Error()}
		out, serr := a.proto.Serialize(resp)
		if serr != nil {
			return fallbackErrorLine(serr)
		}
		return out
	}
	return a.handleCommand(cmd, nowMS)
}

func (a *Agent) handleCommand(cmd model.Command, nowMS int64) []byte {
	resp := a.acceptCommand(cmd, nowMS)
	out, serr := a.proto.Serialize(resp)
	if serr != nil {
		return fallbackErrorLine(serr)
	}
	return out
}

func (a *Agent) acceptCommand(cmd model.Command, nowMS int64) model.Response {
	if perr := a.proto.Validate(cmd, uint64(nowMS)); perr != nil {
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespNegativeAck, Message: perr.Error()}
	}

	if resp, handled := a.tryImmediate(cmd, nowMS); handled {
		return resp
	}

	if a.safety.Snapshot().SafeModeActive && a.safeModeBlocked(cmd) {
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespSafeModeActive, Message: "rejected: safe mode active"}
	}

	if perr := a.proto.Tracker().Track(cmd.ID, nowMS, 0); perr != nil {
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespError, Message: perr.Error()}
	}

	if err := a.sched.Schedule(cmd, nowMS); err != nil {
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespError, Message: err.Error()}
	}

	if cmd.ExecutionTimeMS != nil && *cmd.ExecutionTimeMS > uint64(nowMS) {
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespScheduled}
	}
	return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespAcknowledged}
}

// tryImmediate answers read-only queries synchronously at accept time,
// without a scheduler/tracker round trip: Ping, SystemStatus and
// GetFaultInjectionStatus never mutate state, so there is nothing for the
// tick loop to do on their behalf.
func (a *Agent) tryImmediate(cmd model.Command, nowMS int64) (model.Response, bool) {
	switch cmd.Type.Kind {
	case model.CmdPing:
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespSuccess, Message: "pong"}, true
	case model.CmdSystemStatus:
		s := a.safety.Snapshot()
		stats := a.sched.GetStats()
		msg := fmt.Sprintf("level=%s safe_mode=%v tracked=%d scheduled=%d", s.Level, s.SafeModeActive, a.proto.Tracker().Count(), stats.Pending)
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespSuccess, Message: msg}, true
	case model.CmdGetFaultInjectionStatus:
		msg := fmt.Sprintf("fault_injection_enabled=%v", a.faultInjectionEnabled)
		return model.Response{ID: cmd.ID, TimestampMS: uint64(nowMS), Status: model.RespSuccess, Message: msg}, true
	default:
		return model.Response{}, false
	}
}

func fallbackErrorLine(perr *model.ProtocolError) []byte {
	return []byte(fmt.Sprintf(`{"status":"Error","message":%q}`, perr.Error()))
}

// Tick advances the whole simulation by dt_ms at time now_ms, §2/§5. The
// ordering here is part of the contract: scheduler drain, command
// execution, subsystem update, safety update, tracker aging, telemetry
// build — reordering changes observable safety decisions.
func (a *Agent) Tick(nowMS int64, dtMS int64) model.TelemetryPacket {
	ready := a.sched.Ready(nowMS)
	for _, cmd := range ready {
		a.dispatch(cmd, nowMS)
	}
	a.sched.CleanupExpired(nowMS)

	a.power.Update(dtMS, a.comms.LoadCurrentMA())
	a.thermal.Update(dtMS, a.comms.Snapshot().TxPowerDBm, a.power.Snapshot().PowerSave)
	a.comms.Update(dtMS)

	actions := a.safety.Update(nowMS, dtMS,
		safety.PowerSnapshot{BatteryVoltageMV: a.power.Snapshot().BatteryVoltageMV, VoltageVariance: a.power.VoltageVariance()},
		safety.ThermalSnapshot{CoreTempC: a.thermal.Snapshot().CoreTempC},
		safety.CommsSnapshot{LinkLost: a.comms.LinkLost()},
	)
	a.applyActions(actions)
	a.recordResolvedSafetyEvents()

	a.proto.Tracker().CleanupExpired(nowMS)
	a.recordTerminalCommands()

	pkt, _, err := a.packer.Build(nowMS, a.power, a.thermal, a.comms, a.safety, a.perf)
	if err != nil {
		a.log.Error("telemetry build failed", zap.Error(err))
	}
	a.lastTelemetry = pkt
	return pkt
}

// applyActions applies the safety manager's output best-effort, §4.4/§7: a
// failure to apply one action never aborts the tick.
func (a *Agent) applyActions(actions model.Actions) {
	if actions.EnableEmergencyPowerSave {
		a.power.Execute(nil, boolPtr(true))
	}
	if actions.DisableHeaters {
		a.thermal.Execute(boolPtr(false))
	}
	if actions.DisableCommsTx {
		a.comms.ForceTxOff()
	}
	if actions.ForceSolarOn {
		a.power.Execute(boolPtr(true), nil)
	}
	if actions.RestoreNormalOperations {
		// best-effort no-op marker; normal operations simply means no
		// override is currently forced.
		_ = actions
	}
}

func boolPtr(b bool) *bool { return &b }

// dispatch routes one ready command to its subsystem, §4.1-4.3/§4.5,
// advancing its tracked status through Started -> terminal.
func (a *Agent) dispatch(cmd model.Command, nowMS int64) {
	_ = a.proto.Tracker().UpdateStatus(cmd.ID, model.StatusStarted, nowMS)

	reason := a.execute(cmd)

	if reason == "" {
		_ = a.proto.Tracker().UpdateStatus(cmd.ID, model.StatusSuccess, nowMS)
	} else {
		a.log.Warn("command execution failed", zap.Uint32("id", cmd.ID), zap.String("reason", reason))
		_ = a.proto.Tracker().UpdateStatus(cmd.ID, model.StatusFailed, nowMS)
	}
}

func (a *Agent) execute(cmd model.Command) string {
	p := cmd.Type.Params
	switch cmd.Type.Kind {
	case model.CmdPing, model.CmdSystemStatus, model.CmdGetFaultInjectionStatus:
		return ""
	case model.CmdSystemReboot:
		a.reboot()
		return ""
	case model.CmdSetSolarPanel:
		return a.power.Execute(p.Enabled, nil)
	case model.CmdSetHeaterState:
		return a.thermal.Execute(p.On)
	case model.CmdSetCommsLink:
		return a.comms.Execute(p.Enabled, nil, nil)
	case model.CmdSetTxPower:
		return a.comms.Execute(nil, p.PowerDBm, nil)
	case model.CmdTransmitMessage:
		return a.comms.Execute(nil, nil, []byte(p.Message))
	case model.CmdSetSafeMode:
		if p.Enabled != nil && *p.Enabled {
			a.safety.ForceSafeMode(0)
		} else {
			if !a.safety.DisableSafeMode(0, true) {
				return "safe mode exit conditions not yet met"
			}
		}
		return ""
	case model.CmdSimulateFault:
		if !a.faultInjectionEnabled {
			return "fault injection disabled"
		}
		return a.injectFault(*p.Target, *p.FaultType)
	case model.CmdClearFaults:
		a.clearFaults(p.Target)
		return ""
	case model.CmdSetFaultInjection:
		if p.Enabled != nil {
			a.faultInjectionEnabled = *p.Enabled
		}
		return ""
	default:
		return "unhandled command kind"
	}
}

func (a *Agent) injectFault(target model.SubsystemID, kind model.FaultKind) string {
	switch target {
	case model.SubsystemPower:
		a.power.InjectFault(kind)
	case model.SubsystemThermal:
		a.thermal.InjectFault(kind)
	case model.SubsystemComms:
		a.comms.InjectFault(kind)
	default:
		return "unknown subsystem target"
	}
	return ""
}

func (a *Agent) clearFaults(target *model.SubsystemID) {
	if target == nil {
		a.power.ClearFaults()
		a.thermal.ClearFaults()
		a.comms.ClearFaults()
		return
	}
	switch *target {
	case model.SubsystemPower:
		a.power.ClearFaults()
	case model.SubsystemThermal:
		a.thermal.ClearFaults()
	case model.SubsystemComms:
		a.comms.ClearFaults()
	}
}

func (a *Agent) reboot() {
	a.log.Warn("system reboot requested; core state is not reset (no persistence across restarts, §1 non-goals applies to process lifetime not in-tick reboot)")
}

// LastTelemetry returns the most recently built telemetry packet, for the
// ground bridge / HTTP API / telemetry store to read without re-ticking.
func (a *Agent) LastTelemetry() model.TelemetryPacket { return a.lastTelemetry }

// SafetyEvents returns the current safety event history.
func (a *Agent) SafetyEvents() []model.SafetyEvent { return a.safety.EventHistory() }

// TrackedCommands returns a snapshot of in-flight and recently-terminal commands.
func (a *Agent) TrackedCommands() []model.TrackedCommand { return a.proto.Tracker().Snapshot() }

// SafetySnapshot returns the current safety FSM state.
func (a *Agent) SafetySnapshot() model.SafetyState { return a.safety.Snapshot() }

// recordTerminalCommands hands each newly-terminal tracked command to the
// flight recorder exactly once, §4.5. The dedup set is pruned against the
// tracker's live snapshot so it never outgrows TrackerCapacity.
func (a *Agent) recordTerminalCommands() {
	if a.rec == nil {
		return
	}
	present := make(map[uint32]struct{})
	for _, tc := range a.proto.Tracker().Snapshot() {
		present[tc.ID] = struct{}{}
		if !tc.Status.IsTerminal() {
			continue
		}
		if _, done := a.recordedCmdIDs[tc.ID]; done {
			continue
		}
		a.rec.RecordCommand(tc)
		a.recordedCmdIDs[tc.ID] = struct{}{}
	}
	for id := range a.recordedCmdIDs {
		if _, ok := present[id]; !ok {
			delete(a.recordedCmdIDs, id)
		}
	}
}

// recordResolvedSafetyEvents hands each newly-resolved safety event to the
// flight recorder exactly once, §4.4. Keyed by (kind, onset timestamp)
// since that pair uniquely identifies one occurrence in the event ring.
func (a *Agent) recordResolvedSafetyEvents() {
	if a.rec == nil {
		return
	}
	present := make(map[safetyEventKey]struct{})
	for _, e := range a.safety.EventHistory() {
		key := safetyEventKey{kind: e.Kind, timestampMS: e.TimestampMS}
		present[key] = struct{}{}
		if !e.Resolved {
			continue
		}
		if _, done := a.recordedEventKeys[key]; done {
			continue
		}
		a.rec.RecordSafetyEvent(e)
		a.recordedEventKeys[key] = struct{}{}
	}
	for key := range a.recordedEventKeys {
		if _, ok := present[key]; !ok {
			delete(a.recordedEventKeys, key)
		}
	}
}
