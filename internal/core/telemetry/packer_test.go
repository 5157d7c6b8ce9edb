package telemetry

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"satbus/internal/core/comms"
	"satbus/internal/core/model"
	"satbus/internal/core/power"
	"satbus/internal/core/safety"
	"satbus/internal/core/thermal"
)

type fakePerformanceSource struct {
	uptime   uint32
	loopUS   uint16
	freeKB   uint16
}

func (f fakePerformanceSource) UptimeSeconds() uint32  { return f.uptime }
func (f fakePerformanceSource) LoopTimeMicros() uint16 { return f.loopUS }
func (f fakePerformanceSource) FreeMemoryKB() uint16   { return f.freeKB }

func newTestRig(t *testing.T) (*Packer, *power.Subsystem, *thermal.Subsystem, *comms.Subsystem, *safety.Manager) {
	t.Helper()
	log := zap.NewNop()
	return New(log), power.New(log), thermal.New(log), comms.New(log), safety.New(log, 0)
}

func TestBuildPacketWithinSizeBudget(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)
	perf := fakePerformanceSource{uptime: 100, loopUS: 500, freeKB: 2048}

	_, out, err := p.Build(1000, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if len(out) < model.TelemetryMinBytes || len(out) > model.TelemetryMaxBytes {
		t.Fatalf("expected packet within [%d, %d] bytes, got %d", model.TelemetryMinBytes, model.TelemetryMaxBytes, len(out))
	}
}

func TestBuildReturnsThePacketItActuallySerialized(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)
	perf := fakePerformanceSource{uptime: 100, loopUS: 500, freeKB: 2048}

	pkt, out, err := p.Build(1000, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if len(pkt.Padding) == 0 {
		t.Fatalf("expected the returned packet to carry the padding actually sent on the wire")
	}

	reEncoded, err := json.Marshal(pkt)
	if err != nil {
		t.Fatalf("unexpected marshal error re-encoding the returned packet: %v", err)
	}
	if string(reEncoded) != string(out) {
		t.Fatalf("expected the returned packet to re-marshal identically to the wire bytes; a caller re-marshaling LastTelemetry() must reproduce Build()'s own output")
	}
}

func TestBuildPacketSequenceNumberIncrements(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)
	perf := fakePerformanceSource{}

	pkt1, _, err := p.Build(1000, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	pkt2, _, err := p.Build(1100, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if pkt2.SequenceNumber != pkt1.SequenceNumber+1 {
		t.Fatalf("expected sequence number to increment, got %d then %d", pkt1.SequenceNumber, pkt2.SequenceNumber)
	}
}

func TestBuildPacketRoundTripsJSON(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)
	perf := fakePerformanceSource{uptime: 5, loopUS: 10, freeKB: 100}

	_, out, err := p.Build(0, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	var decoded model.TelemetryPacket
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("expected the padded output to remain valid JSON: %v", err)
	}
	if decoded.SequenceNumber != 0 {
		t.Fatalf("expected sequence number 0 on first build, got %d", decoded.SequenceNumber)
	}
}

func TestPerformanceHistoryFillsThenRotates(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)

	for i := 0; i < model.PerformanceHistoryCapacity; i++ {
		perf := fakePerformanceSource{uptime: uint32(i), loopUS: uint16(i), freeKB: uint16(i)}
		pkt, _, err := p.Build(int64(i)*100, pw, th, co, sm, perf)
		if err != nil {
			t.Fatalf("unexpected build error at step %d: %v", i, err)
		}
		if i == model.PerformanceHistoryCapacity-1 {
			if pkt.PerformanceHistory[0].UptimeSeconds != 0 {
				t.Fatalf("expected oldest-first ordering once full, got first entry uptime %d", pkt.PerformanceHistory[0].UptimeSeconds)
			}
		}
	}

	// One more push should evict the oldest (uptime=0) entry.
	perf := fakePerformanceSource{uptime: 999}
	pkt, _, err := p.Build(999000, pw, th, co, sm, perf)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if pkt.PerformanceHistory[0].UptimeSeconds != 1 {
		t.Fatalf("expected the ring to rotate out the oldest entry, got first entry uptime %d", pkt.PerformanceHistory[0].UptimeSeconds)
	}
	last := pkt.PerformanceHistory[model.PerformanceHistoryCapacity-1]
	if last.UptimeSeconds != 999 {
		t.Fatalf("expected the newest push last in oldest-first ordering, got %d", last.UptimeSeconds)
	}
}

func TestBuildWithNilPerformanceSource(t *testing.T) {
	p, pw, th, co, sm := newTestRig(t)
	_, out, err := p.Build(0, pw, th, co, sm, nil)
	if err != nil {
		t.Fatalf("expected Build to tolerate a nil performance source, got %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty output with a nil performance source")
	}
}
