// Package protocol implements the §4.5 protocol handler: parsing,
// validation, serialization, and the in-flight command tracker.
package protocol

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

// Wire framing limits, §5/§7.
const (
	MaxInboundBytes  = 512
	MaxOutboundBytes = 1024
)

const (
	minExecutionSkewMS uint64 = 24 * 60 * 60 * 1000 // 24h
)

// Handler is the §4.5 protocol handler: stateless parse/validate/serialize
// plus the stateful tracker.
type Handler struct {
	tracker *Tracker
	log     *zap.Logger
}

// New creates a protocol handler with a fresh tracker.
func New(logger *zap.Logger) *Handler {
	return &Handler{
		tracker: NewTracker(logger),
		log:     logger.With(zap.String("component", "protocol")),
	}
}

// Tracker exposes the handler's command tracker.
func (h *Handler) Tracker() *Tracker { return h.tracker }

// Parse decodes one inbound line into a Command, §4.5. Oversized or
// malformed input is rejected before touching any subsystem.
func (h *Handler) Parse(line []byte) (model.Command, *model.ProtocolError) {
	if len(line) > MaxInboundBytes {
		return model.Command{}, model.NewProtocolError(model.ErrMessageTooLarge, fmt.Sprintf("inbound frame %d bytes exceeds %d", len(line), MaxInboundBytes))
	}
	var cmd model.Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return model.Command{}, model.NewProtocolError(model.ErrInvalidJSON, err.Error())
	}
	return cmd, nil
}

// Validate checks command parameters against §4.5's rules, returning a
// ProtocolError describing the first violation found.
func (h *Handler) Validate(cmd model.Command, nowMS uint64) *model.ProtocolError {
	if !validKind(cmd.Type.Kind) {
		return model.NewProtocolError(model.ErrInvalidCommandKnd, fmt.Sprintf("unknown kind %q", cmd.Type.Kind))
	}

	if cmd.ExecutionTimeMS != nil {
		et := *cmd.ExecutionTimeMS
		if et+minExecutionSkewMS < nowMS || et > nowMS+minExecutionSkewMS {
			return model.NewProtocolError(model.ErrInvalidParameter, "execution_time outside +/-24h window")
		}
	}

	switch cmd.Type.Kind {
	case model.CmdSetTxPower:
		if cmd.Type.Params.PowerDBm == nil {
			return model.NewProtocolError(model.ErrInvalidParameter, "power_dbm required")
		}
		p := *cmd.Type.Params.PowerDBm
		if p < 0 || p > 30 {
			return model.NewProtocolError(model.ErrInvalidParameter, fmt.Sprintf("power_dbm %d out of range [0,30]", p))
		}
	case model.CmdTransmitMessage:
		if len(cmd.Type.Params.Message) > model.OutboundMessageMaxBytes {
			return model.NewProtocolError(model.ErrInvalidParameter, "message exceeds 256 bytes")
		}
	case model.CmdSimulateFault:
		if cmd.Type.Params.Target == nil || !validSubsystem(*cmd.Type.Params.Target) {
			return model.NewProtocolError(model.ErrInvalidParameter, "target must be Power, Thermal or Comms")
		}
		if cmd.Type.Params.FaultType == nil || !validFault(*cmd.Type.Params.FaultType) {
			return model.NewProtocolError(model.ErrInvalidParameter, "fault_type must be Degraded, Failed or Intermittent")
		}
	case model.CmdClearFaults:
		if cmd.Type.Params.Target != nil && !validSubsystem(*cmd.Type.Params.Target) {
			return model.NewProtocolError(model.ErrInvalidParameter, "target must be Power, Thermal or Comms")
		}
	case model.CmdSetSolarPanel, model.CmdSetCommsLink, model.CmdSetSafeMode, model.CmdSetFaultInjection:
		if cmd.Type.Params.Enabled == nil {
			return model.NewProtocolError(model.ErrInvalidParameter, "enabled required")
		}
	case model.CmdSetHeaterState:
		if cmd.Type.Params.On == nil {
			return model.NewProtocolError(model.ErrInvalidParameter, "on required")
		}
	}
	return nil
}

func validKind(k model.CommandKind) bool {
	switch k {
	case model.CmdPing, model.CmdSystemStatus, model.CmdSystemReboot, model.CmdSetSolarPanel,
		model.CmdSetHeaterState, model.CmdSetCommsLink, model.CmdSetTxPower, model.CmdTransmitMessage,
		model.CmdSetSafeMode, model.CmdSimulateFault, model.CmdClearFaults, model.CmdSetFaultInjection,
		model.CmdGetFaultInjectionStatus:
		return true
	default:
		return false
	}
}

func validSubsystem(s model.SubsystemID) bool {
	switch s {
	case model.SubsystemPower, model.SubsystemThermal, model.SubsystemComms:
		return true
	default:
		return false
	}
}

func validFault(f model.FaultKind) bool {
	switch f {
	case model.FaultDegraded, model.FaultFailed, model.FaultIntermittent:
		return true
	default:
		return false
	}
}

// Serialize encodes a Response as one outbound NDJSON line, §4.5. Oversized
// output is reported rather than silently truncated.
func (h *Handler) Serialize(resp model.Response) ([]byte, *model.ProtocolError) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, model.NewProtocolError(model.ErrSerialization, err.Error())
	}
	if len(out) > MaxOutboundBytes {
		return nil, model.NewProtocolError(model.ErrMessageTooLarge, fmt.Sprintf("outbound frame %d bytes exceeds %d", len(out), MaxOutboundBytes))
	}
	return out, nil
}
