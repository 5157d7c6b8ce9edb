package protocol

import (
	"testing"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return New(zap.NewNop())
}

func TestParseRejectsOversizedLine(t *testing.T) {
	h := newTestHandler(t)
	line := make([]byte, MaxInboundBytes+1)
	_, perr := h.Parse(line)
	if perr == nil || perr.Kind != model.ErrMessageTooLarge {
		t.Fatalf("expected ErrMessageTooLarge, got %v", perr)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(t)
	_, perr := h.Parse([]byte(`{not json`))
	if perr == nil || perr.Kind != model.ErrInvalidJSON {
		t.Fatalf("expected ErrInvalidJSON, got %v", perr)
	}
}

func TestParseRoundTripsValidCommand(t *testing.T) {
	h := newTestHandler(t)
	line := []byte(`{"id":1,"timestamp":1000,"execution_time":null,"command_type":{"Ping":{}}}`)
	cmd, perr := h.Parse(line)
	if perr != nil {
		t.Fatalf("unexpected parse error: %v", perr)
	}
	if cmd.ID != 1 || cmd.Type.Kind != model.CmdPing {
		t.Fatalf("unexpected parsed command: %+v", cmd)
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	h := newTestHandler(t)
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: "Bogus"}}
	perr := h.Validate(cmd, 0)
	if perr == nil || perr.Kind != model.ErrInvalidCommandKnd {
		t.Fatalf("expected ErrInvalidCommandKnd, got %v", perr)
	}
}

func TestValidateRejectsExecutionTimeOutsideWindow(t *testing.T) {
	h := newTestHandler(t)
	farFuture := uint64(100 * 24 * 60 * 60 * 1000)
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: model.CmdPing}, ExecutionTimeMS: &farFuture}
	perr := h.Validate(cmd, 0)
	if perr == nil || perr.Kind != model.ErrInvalidParameter {
		t.Fatalf("expected ErrInvalidParameter for out-of-window execution_time, got %v", perr)
	}
}

func TestValidateAcceptsExecutionTimeWithinWindow(t *testing.T) {
	h := newTestHandler(t)
	soon := uint64(1000)
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: model.CmdPing}, ExecutionTimeMS: &soon}
	if perr := h.Validate(cmd, 0); perr != nil {
		t.Fatalf("unexpected rejection of in-window execution_time: %v", perr)
	}
}

func TestValidateSetTxPowerRequiresRange(t *testing.T) {
	h := newTestHandler(t)
	tooHigh := int8(100)
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: model.CmdSetTxPower, Params: model.CommandParams{PowerDBm: &tooHigh}}}
	if perr := h.Validate(cmd, 0); perr == nil {
		t.Fatalf("expected rejection of out-of-range tx power")
	}

	missing := model.Command{ID: 2, Type: model.CommandType{Kind: model.CmdSetTxPower}}
	if perr := h.Validate(missing, 0); perr == nil {
		t.Fatalf("expected rejection when power_dbm is missing")
	}
}

func TestValidateSimulateFaultRequiresTargetAndKind(t *testing.T) {
	h := newTestHandler(t)
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: model.CmdSimulateFault}}
	if perr := h.Validate(cmd, 0); perr == nil {
		t.Fatalf("expected rejection when target/fault_type are missing")
	}

	target := model.SubsystemPower
	kind := model.FaultDegraded
	valid := model.Command{ID: 2, Type: model.CommandType{Kind: model.CmdSimulateFault, Params: model.CommandParams{Target: &target, FaultType: &kind}}}
	if perr := h.Validate(valid, 0); perr != nil {
		t.Fatalf("unexpected rejection of a valid SimulateFault command: %v", perr)
	}
}

func TestValidateTransmitMessageLengthLimit(t *testing.T) {
	h := newTestHandler(t)
	msg := make([]byte, model.OutboundMessageMaxBytes+1)
	for i := range msg {
		msg[i] = 'a'
	}
	cmd := model.Command{ID: 1, Type: model.CommandType{Kind: model.CmdTransmitMessage, Params: model.CommandParams{Message: string(msg)}}}
	if perr := h.Validate(cmd, 0); perr == nil {
		t.Fatalf("expected rejection of an oversized transmit message")
	}
}

func TestSerializeRejectsOversizedResponse(t *testing.T) {
	h := newTestHandler(t)
	huge := make([]byte, MaxOutboundBytes*2)
	for i := range huge {
		huge[i] = 'x'
	}
	resp := model.Response{ID: 1, Status: model.RespError, Message: string(huge)}
	_, perr := h.Serialize(resp)
	if perr == nil || perr.Kind != model.ErrMessageTooLarge {
		t.Fatalf("expected ErrMessageTooLarge for an oversized response, got %v", perr)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	resp := model.Response{ID: 1, TimestampMS: 1000, Status: model.RespSuccess}
	out, perr := h.Serialize(resp)
	if perr != nil {
		t.Fatalf("unexpected serialize error: %v", perr)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty serialized output")
	}
}

func TestTrackerAccessibleFromHandler(t *testing.T) {
	h := newTestHandler(t)
	if h.Tracker() == nil {
		t.Fatalf("expected a non-nil tracker")
	}
}
