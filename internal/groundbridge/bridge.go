// Package groundbridge mirrors telemetry as Modbus holding/input registers
// for ground support equipment that speaks Modbus rather than NDJSON, §9
// supplemented feature: the wire protocol itself stays NDJSON (§4.5/§6); this
// is an optional read-only export, never a control surface.
package groundbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/model"
)

// Register layout: every packed word the telemetry packer already produces
// gets a fixed address, served alike as holding and input registers, read-only.
const (
	RegBootVoltageHi   = 0 // PackBootVoltage, high 16 bits
	RegBootVoltageLo   = 1
	RegSignalTxWord    = 2
	RegHealthScoresHi  = 3
	RegHealthScoresLo  = 4
	RegSafetyLevel     = 5
	RegSafeModeActive  = 6
	RegCoreTempCx100   = 7
	RegBatteryLevelPct = 8
	RegSeqNumberHi     = 9
	RegSeqNumberLo     = 10

	RegisterCount = 11
)

// TelemetrySource supplies the most recently built packet without coupling
// this package to the agent's concrete type.
type TelemetrySource interface {
	LastTelemetry() model.TelemetryPacket
}

// handler implements modbus.RequestHandler, answering every read from the
// live telemetry packet and refusing every write: this bridge is read-only.
type handler struct {
	source TelemetrySource
	log    *zap.Logger
}

func (h *handler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *handler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	return h.read(req.Addr, req.Quantity)
}

func (h *handler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return h.read(req.Addr, req.Quantity)
}

func (h *handler) read(addr uint16, quantity uint16) ([]uint16, error) {
	if addr >= RegisterCount || uint32(addr)+uint32(quantity) > RegisterCount {
		return nil, modbus.ErrIllegalDataAddress
	}
	pkt := h.source.LastTelemetry()
	words := [RegisterCount]uint16{
		RegBootVoltageHi:   uint16(pkt.Power.BootVoltageWord >> 16),
		RegBootVoltageLo:   uint16(pkt.Power.BootVoltageWord),
		RegSignalTxWord:    pkt.Comms.SignalTxWord,
		RegHealthScoresHi:  uint16(pkt.HealthScoresWord >> 16),
		RegHealthScoresLo:  uint16(pkt.HealthScoresWord),
		RegSafetyLevel:     uint16(pkt.SafetyLevel.Rank()),
		RegSafeModeActive:  boolWord(pkt.SafeModeActive),
		RegCoreTempCx100:   uint16(pkt.Thermal.CoreTempC),
		RegBatteryLevelPct: uint16(pkt.Power.BatteryLevelPct),
		RegSeqNumberHi:     uint16(pkt.SequenceNumber >> 16),
		RegSeqNumberLo:     uint16(pkt.SequenceNumber),
	}
	return words[addr : addr+quantity], nil
}

func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// Bridge is the Modbus TCP slave, started/stopped from the fx lifecycle.
type Bridge struct {
	server *modbus.ModbusServer
	cfg    config.GroundBridgeConfig
	log    *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a ground bridge against the given telemetry source. It is a
// no-op bridge (Start/Stop return immediately) when the config disables it.
func New(cfg config.GroundBridgeConfig, source TelemetrySource, logger *zap.Logger) (*Bridge, error) {
	log := logger.With(zap.String("component", "groundbridge"))
	if !cfg.Enabled {
		return &Bridge{cfg: cfg, log: log}, nil
	}

	serverConfig := &modbus.ServerConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		Timeout: cfg.Timeout,
	}
	srv, err := modbus.NewServer(serverConfig, &handler{source: source, log: log})
	if err != nil {
		return nil, fmt.Errorf("create modbus ground bridge: %w", err)
	}
	return &Bridge{server: srv, cfg: cfg, log: log}, nil
}

// Start begins serving Modbus requests, §9.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.cfg.Enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.log.Info("starting ground bridge", zap.String("host", b.cfg.Host), zap.Int("port", b.cfg.Port))
	if err := b.server.Start(); err != nil {
		return fmt.Errorf("start ground bridge: %w", err)
	}
	b.running = true
	return nil
}

// IsConnected reports whether the bridge is currently serving, satisfying
// the health package's ServiceChecker interface. A disabled bridge reports
// connected: there is nothing for it to fail at.
func (b *Bridge) IsConnected() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stop halts the Modbus server.
func (b *Bridge) Stop(ctx context.Context) error {
	if !b.cfg.Enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.server.Stop()
	b.running = false
	b.log.Info("ground bridge stopped")
	return nil
}
