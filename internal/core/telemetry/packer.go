// Package telemetry implements the §4.7 telemetry packer: it builds a
// TelemetryPacket from subsystem/safety snapshots, bit-packs the fields
// that are semantic pairs rather than raw representation, and pads the
// serialized output to land inside the [1800, 2200] byte budget.
package telemetry

import (
	"encoding/json"

	"go.uber.org/zap"

	"satbus/internal/core/model"
	"satbus/internal/core/power"
	"satbus/internal/core/safety"
	"satbus/internal/core/thermal"

	commspkg "satbus/internal/core/comms"
)

// PerformanceSource supplies host-process figures for the performance
// history ring without coupling the packer to a concrete metrics library.
type PerformanceSource interface {
	UptimeSeconds() uint32
	LoopTimeMicros() uint16
	FreeMemoryKB() uint16
}

// Packer is the §4.7 telemetry packer.
type Packer struct {
	seq     uint64
	history [model.PerformanceHistoryCapacity]model.PerformanceSnapshot
	histLen int
	histPos int
	log     *zap.Logger
}

// New creates a telemetry packer with sequence numbering starting at 0.
func New(logger *zap.Logger) *Packer {
	return &Packer{log: logger.With(zap.String("component", "telemetry"))}
}

// Build assembles and serializes one telemetry packet for the current tick,
// §4.7. It returns the packet (for in-process consumers such as the API/
// ground bridge) and its serialized bytes (for the wire).
func (p *Packer) Build(
	nowMS int64,
	pw *power.Subsystem,
	th *thermal.Subsystem,
	co *commspkg.Subsystem,
	sm *safety.Manager,
	perf PerformanceSource,
) (model.TelemetryPacket, []byte, error) {
	powerState := pw.Snapshot()
	thermalState := th.Snapshot()
	commsState := co.Snapshot()
	safetyState := sm.Snapshot()

	p.pushPerformance(perf)

	pkt := model.TelemetryPacket{
		TimestampMS:    nowMS,
		SequenceNumber: p.seq,
		Power: model.PowerTelemetry{
			BatteryVoltageMV: powerState.BatteryVoltageMV,
			BatteryLevelPct:  powerState.BatteryLevelPct,
			SolarEnabled:     powerState.SolarEnabled,
			PowerSave:        powerState.PowerSave,
			Charging:         powerState.Charging,
			BootVoltageWord:  model.PackBootVoltage(powerState.BootCount, powerState.SystemVoltageMV),
		},
		Thermal: model.ThermalTelemetry{
			CoreTempC:    int16(thermalState.CoreTempC * 100),
			BatteryTempC: int16(thermalState.BatteryTempC * 100),
			PanelTempC:   int16(thermalState.PanelTempC * 100),
			HeaterOn:     thermalState.HeaterPowerW > 0,
			Mode:         thermalState.Mode,
		},
		Comms: model.CommsTelemetry{
			LinkUp:         commsState.LinkUp,
			SignalTxWord:   model.PackSignalTx(commsState.SignalDBm, commsState.TxPowerDBm),
			RxPackets:      commsState.RxPackets,
			TxPackets:      commsState.TxPackets,
			BitErrorRateX6: uint32(commsState.BitErrorRate * 1e6),
		},
		HealthScoresWord: model.PackHealthScores(powerState.HealthScore, thermalState.HealthScore, commsState.HealthScore, 0),
		// Quaternion has no attitude simulator behind it, §9 Open Questions:
		// held at identity (x=y=z=0, w recovered as 1) for size parity only.
		QuaternionX:        0,
		QuaternionY:        0,
		QuaternionZ:        0,
		PerformanceHistory: p.orderedHistory(),
		SafetyLevel:        safetyState.Level,
		SafeModeActive:     safetyState.SafeModeActive,
		SafetyEvents:       summarizeEvents(safetyState.Events),
		Orbital: model.OrbitalScalars{
			AltitudeKM:  550,
			MagneticXNT: 0,
			MagneticYNT: 0,
			MagneticZNT: 0,
		},
	}

	body, err := json.Marshal(pkt)
	if err != nil {
		return pkt, nil, err
	}

	pkt, out := p.applyPadding(pkt, body)
	p.seq++
	return pkt, out, nil
}

func summarizeEvents(events []model.SafetyEvent) []model.SafetyEventSummary {
	out := make([]model.SafetyEventSummary, 0, len(events))
	for _, e := range events {
		out = append(out, model.SafetyEventSummary{Kind: e.Kind, Level: e.Level, TimestampMS: e.TimestampMS, Resolved: e.Resolved})
	}
	return out
}

func (p *Packer) pushPerformance(perf PerformanceSource) {
	if perf == nil {
		return
	}
	snap := model.PerformanceSnapshot{
		UptimeSeconds: perf.UptimeSeconds(),
		LoopTimeUS:    perf.LoopTimeMicros(),
		FreeMemoryKB:  perf.FreeMemoryKB(),
	}
	p.history[p.histPos] = snap
	p.histPos = (p.histPos + 1) % model.PerformanceHistoryCapacity
	if p.histLen < model.PerformanceHistoryCapacity {
		p.histLen++
	}
}

// orderedHistory returns the ring oldest-first, zero-filled until full.
func (p *Packer) orderedHistory() [model.PerformanceHistoryCapacity]model.PerformanceSnapshot {
	var out [model.PerformanceHistoryCapacity]model.PerformanceSnapshot
	if p.histLen < model.PerformanceHistoryCapacity {
		copy(out[:], p.history[:p.histLen])
		return out
	}
	for i := 0; i < model.PerformanceHistoryCapacity; i++ {
		out[i] = p.history[(p.histPos+i)%model.PerformanceHistoryCapacity]
	}
	return out
}

// applyPadding implements the §4.7 sizing contract: pad with a fixed debug
// byte to land in [1800, 2200]; if the unpadded body already exceeds 2200,
// emit it unpadded with the truncation flag set rather than silently drop
// data. The returned packet carries whatever Padding/Truncated state
// actually went out on the wire, so callers never hold a packet that
// disagrees with its own serialized bytes.
func (p *Packer) applyPadding(pkt model.TelemetryPacket, body []byte) (model.TelemetryPacket, []byte) {
	l := len(body)
	if l > model.TelemetryMaxBytes {
		p.log.Warn("telemetry packet exceeds budget unpadded", zap.Int("bytes", l))
		pkt.Truncated = true
		return pkt, body
	}

	// Padding is JSON-encoded as a base64 string (encoding/json's []byte
	// convention), which expands raw bytes by 4/3; convert the desired
	// on-wire contribution back to a raw byte count before filling it.
	wireBudget := model.TelemetrySoftTarget - l - model.TelemetryFieldMargin
	padLen := wireBudget * 3 / 4
	if padLen > model.TelemetryPadMax {
		padLen = model.TelemetryPadMax
	}
	if padLen < 1 {
		padLen = 1
	}
	// The cap must not leave the packet under the minimum size: the padded
	// output swaps the body's "null" (4 bytes) for a quoted base64 string.
	if short := model.TelemetryMinBytes - (l - 4 + 2 + (padLen+2)/3*4); short > 0 {
		padLen += (short + 3) / 4 * 3
	}

	pkt.Padding = make([]byte, padLen)
	for i := range pkt.Padding {
		pkt.Padding[i] = model.TelemetryPadByte
	}
	pkt.Truncated = false

	out, err := json.Marshal(pkt)
	if err != nil {
		pkt.Truncated = true
		return pkt, body
	}
	return pkt, out
}
