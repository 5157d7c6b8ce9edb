package model

import (
	"encoding/json"
	"fmt"
)

// CommandKind is the closed set of command tags accepted over the wire, §6.
type CommandKind string

const (
	CmdPing                     CommandKind = "Ping"
	CmdSystemStatus             CommandKind = "SystemStatus"
	CmdSystemReboot             CommandKind = "SystemReboot"
	CmdSetSolarPanel            CommandKind = "SetSolarPanel"
	CmdSetHeaterState           CommandKind = "SetHeaterState"
	CmdSetCommsLink             CommandKind = "SetCommsLink"
	CmdSetTxPower               CommandKind = "SetTxPower"
	CmdTransmitMessage          CommandKind = "TransmitMessage"
	CmdSetSafeMode              CommandKind = "SetSafeMode"
	CmdSimulateFault            CommandKind = "SimulateFault"
	CmdClearFaults              CommandKind = "ClearFaults"
	CmdSetFaultInjection        CommandKind = "SetFaultInjection"
	CmdGetFaultInjectionStatus  CommandKind = "GetFaultInjectionStatus"
)

// CommandParams holds the union of every kind's parameters; only the fields
// relevant to Kind are populated. This is the tagged-variant-over-a-struct
// idiom: a closed sum type enumerated exhaustively by Kind, never dispatched
// ad hoc by field presence alone.
type CommandParams struct {
	Enabled   *bool        `json:"enabled,omitempty"`
	On        *bool        `json:"on,omitempty"`
	PowerDBm  *int8        `json:"power_dbm,omitempty"`
	Message   string       `json:"message,omitempty"`
	Target    *SubsystemID `json:"target,omitempty"`
	FaultType *FaultKind   `json:"fault_type,omitempty"`
}

// CommandType is the tagged variant `{"<kind>": {...}}` from §6.
type CommandType struct {
	Kind   CommandKind
	Params CommandParams
}

// MarshalJSON emits the `{"<kind>": {...}}` wire shape.
func (c CommandType) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(c.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{string(c.Kind): inner})
}

// UnmarshalJSON parses the `{"<kind>": {...}}` wire shape, rejecting unknown
// tags and more-or-less-than-one tag per the closed-set rule in §9.
func (c *CommandType) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("command_type must carry exactly one tag, got %d", len(raw))
	}
	for k, v := range raw {
		kind := CommandKind(k)
		if !validCommandKind(kind) {
			return fmt.Errorf("unknown command kind %q", k)
		}
		var params CommandParams
		if len(v) > 0 && string(v) != "null" {
			if err := json.Unmarshal(v, &params); err != nil {
				return fmt.Errorf("invalid parameters for %q: %w", k, err)
			}
		}
		c.Kind = kind
		c.Params = params
	}
	return nil
}

func validCommandKind(k CommandKind) bool {
	switch k {
	case CmdPing, CmdSystemStatus, CmdSystemReboot, CmdSetSolarPanel, CmdSetHeaterState,
		CmdSetCommsLink, CmdSetTxPower, CmdTransmitMessage, CmdSetSafeMode, CmdSimulateFault,
		CmdClearFaults, CmdSetFaultInjection, CmdGetFaultInjectionStatus:
		return true
	default:
		return false
	}
}

// Command is a parsed, time-tagged instruction, §3.
type Command struct {
	ID              uint32      `json:"id"`
	TimestampMS     uint64      `json:"timestamp"`
	ExecutionTimeMS *uint64     `json:"execution_time"`
	Type            CommandType `json:"command_type"`
}

// Response is the wire-level reply to a Command, §6.
type Response struct {
	ID          uint32         `json:"id"`
	TimestampMS uint64         `json:"timestamp"`
	Status      ResponseStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
}

// TrackedCommand is the tracker's lifecycle record for one Command, §3.
type TrackedCommand struct {
	ID            uint32
	Status        CommandStatus
	SubmittedAtMS int64
	DeadlineMS    int64
}
