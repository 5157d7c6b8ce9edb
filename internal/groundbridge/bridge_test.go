package groundbridge

import (
	"testing"

	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/model"
)

type fakeTelemetrySource struct {
	pkt model.TelemetryPacket
}

func (f fakeTelemetrySource) LastTelemetry() model.TelemetryPacket { return f.pkt }

func TestHandlerReadSplitsWordsAcrossRegisters(t *testing.T) {
	pkt := model.TelemetryPacket{
		SequenceNumber:   0x0000000100000002,
		SafetyLevel:      model.LevelWarning,
		SafeModeActive:   true,
		HealthScoresWord: 0xAABBCCDD,
	}
	pkt.Power.BootVoltageWord = 0x00010CE4
	pkt.Power.BatteryLevelPct = 77
	pkt.Comms.SignalTxWord = 0x1234
	pkt.Thermal.CoreTempC = 2550

	h := &handler{source: fakeTelemetrySource{pkt: pkt}, log: zap.NewNop()}

	words, err := h.read(0, RegisterCount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := words[RegBootVoltageHi]; got != uint16(pkt.Power.BootVoltageWord>>16) {
		t.Fatalf("expected boot voltage high word %d, got %d", uint16(pkt.Power.BootVoltageWord>>16), got)
	}
	if got := words[RegBootVoltageLo]; got != uint16(pkt.Power.BootVoltageWord) {
		t.Fatalf("expected boot voltage low word %d, got %d", uint16(pkt.Power.BootVoltageWord), got)
	}
	if words[RegSignalTxWord] != pkt.Comms.SignalTxWord {
		t.Fatalf("expected signal/tx word to pass through unchanged")
	}
	if words[RegSafetyLevel] != uint16(model.LevelWarning.Rank()) {
		t.Fatalf("expected safety level register to carry the rank, got %d", words[RegSafetyLevel])
	}
	if words[RegSafeModeActive] != 1 {
		t.Fatalf("expected safe mode active register to be 1, got %d", words[RegSafeModeActive])
	}
	if words[RegBatteryLevelPct] != uint16(pkt.Power.BatteryLevelPct) {
		t.Fatalf("expected battery level to pass through, got %d", words[RegBatteryLevelPct])
	}
	if words[RegSeqNumberHi] != uint16(pkt.SequenceNumber>>16) || words[RegSeqNumberLo] != uint16(pkt.SequenceNumber) {
		t.Fatalf("expected sequence number split across hi/lo registers")
	}
}

func TestHandlerReadRejectsOutOfRangeAddress(t *testing.T) {
	h := &handler{source: fakeTelemetrySource{}, log: zap.NewNop()}
	if _, err := h.read(RegisterCount, 1); err == nil {
		t.Fatalf("expected an error reading past the last register")
	}
	if _, err := h.read(RegSeqNumberLo, 2); err == nil {
		t.Fatalf("expected an error when quantity overruns the register block")
	}
}

func TestHandlerReadSubsetStartsAtRequestedAddress(t *testing.T) {
	pkt := model.TelemetryPacket{SafetyLevel: model.LevelCritical}
	h := &handler{source: fakeTelemetrySource{pkt: pkt}, log: zap.NewNop()}

	words, err := h.read(RegSafetyLevel, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(words) != 1 || words[0] != uint16(model.LevelCritical.Rank()) {
		t.Fatalf("expected a single-register read starting at the requested address, got %+v", words)
	}
}

func TestDisabledBridgeReportsConnected(t *testing.T) {
	b, err := New(config.GroundBridgeConfig{Enabled: false}, fakeTelemetrySource{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error constructing a disabled bridge: %v", err)
	}
	if !b.IsConnected() {
		t.Fatalf("expected a disabled bridge to report connected (nothing to fail at)")
	}
}
