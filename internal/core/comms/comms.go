// Package comms implements the §4.3 comms subsystem: a link budget model,
// adaptive rate selection, and a bounded outbound transmit queue.
package comms

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

const (
	pathLossDBm   = 90.0
	antennaGainDB = 12.0
	signalMarginThresholdDBm = -5.0
	linkLostGraceMS          = 3000
	ratePacketsPerTick       = 2
	maxTxPowerDBm            = 30
	minTxPowerDBm            = 0
)

// adaptiveRates are fixed rate tiers selected to keep BER below 1e-4, §4.3.
var adaptiveRates = []struct {
	minMarginDB float64
	rate        uint8
}{
	{20, 4},
	{10, 3},
	{0, 2},
	{-1000, 1},
}

// Subsystem is the comms subsystem model, §4.3.
type Subsystem struct {
	state model.CommsState
	log   *zap.Logger

	uptimeMS      int64
	linkDownSince int64
	linkDownActive bool
}

// New creates a comms subsystem at a nominal boot state.
func New(logger *zap.Logger) *Subsystem {
	return &Subsystem{
		state: model.CommsState{
			LinkUp:        true,
			TxPowerDBm:    10,
			HealthScore:   255,
			OutboundQueue: make([]model.OutboundMessage, 0, model.OutboundQueueCapacity),
		},
		log: logger.With(zap.String("component", "comms")),
	}
}

// Execute applies a parsed comms command, §4.3. Returns a failure reason
// string (empty on success).
func (s *Subsystem) Execute(setLink *bool, setTxPowerDBm *int8, transmit []byte) string {
	if setLink != nil {
		s.state.LinkUp = *setLink
		s.log.Info("link command applied", zap.Bool("up", *setLink))
	}
	if setTxPowerDBm != nil {
		p := *setTxPowerDBm
		if p < minTxPowerDBm || p > maxTxPowerDBm {
			return fmt.Sprintf("tx power %d dBm out of range", p)
		}
		s.state.TxPowerDBm = p
		s.log.Info("tx power command applied", zap.Int8("dbm", p))
	}
	if transmit != nil {
		if len(transmit) > model.OutboundMessageMaxBytes {
			return "message exceeds maximum length"
		}
		if len(s.state.OutboundQueue) >= model.OutboundQueueCapacity {
			return "outbound queue full"
		}
		s.state.OutboundQueue = append(s.state.OutboundQueue, model.OutboundMessage{Payload: transmit})
		s.state.TxQueueDepth = uint16(len(s.state.OutboundQueue))
	}
	return ""
}

// Update evolves the link budget and drains the outbound queue, §4.3.
func (s *Subsystem) Update(dtMS int64) {
	s.uptimeMS += dtMS

	ionoPerturbationDB := 3 * math.Sin(float64(s.uptimeMS)/1000.0*0.2)
	eff := 1.0
	if s.state.FaultSet && s.state.Fault == model.FaultDegraded {
		eff = 0.5
	}

	signal := float64(s.state.TxPowerDBm)*eff - pathLossDBm + antennaGainDB + ionoPerturbationDB
	if s.state.FaultSet && s.state.Fault == model.FaultIntermittent {
		signal += 8 * math.Sin(float64(s.uptimeMS)/1000.0*3)
	}
	if s.state.FaultSet && s.state.Fault == model.FaultFailed {
		signal = -200
	}

	s.state.SignalDBm = clampInt8(signal)
	s.state.BitErrorRate = berFromSignal(signal)
	s.state.AdaptiveRate = rateFromMargin(signal - signalMarginThresholdDBm)

	s.updateLinkLostTracking(dtMS, signal)
	s.drainQueue()
	s.state.TxQueueDepth = uint16(len(s.state.OutboundQueue))
	s.state.HealthScore = computeHealth(signal, s.linkDownActive)
}

func (s *Subsystem) updateLinkLostTracking(dtMS int64, signal float64) {
	if !s.state.LinkUp {
		s.linkDownSince = 0
		s.linkDownActive = false
		return
	}
	if signal < signalMarginThresholdDBm {
		s.linkDownSince += dtMS
	} else {
		s.linkDownSince = 0
	}
	s.linkDownActive = s.linkDownSince > linkLostGraceMS
}

// LinkLost reports whether the link has been nominally up but below margin
// for longer than the grace period, the CommsLinkLost trigger, §4.3/§4.4.
func (s *Subsystem) LinkLost() bool {
	return s.state.LinkUp && s.linkDownActive
}

func (s *Subsystem) drainQueue() {
	n := ratePacketsPerTick
	if n > len(s.state.OutboundQueue) {
		n = len(s.state.OutboundQueue)
	}
	if n == 0 {
		return
	}
	s.state.OutboundQueue = s.state.OutboundQueue[n:]
	s.state.TxPackets += uint32(n)
}

func berFromSignal(signal float64) float32 {
	// monotone decreasing in signal; anchored so BER crosses 1e-4 near the
	// threshold margin used for adaptive rate selection.
	x := (signalMarginThresholdDBm - signal) / 10.0
	ber := math.Pow(10, -4+x)
	if ber > 1 {
		ber = 1
	}
	if ber < 1e-9 {
		ber = 1e-9
	}
	return float32(ber)
}

func rateFromMargin(marginDB float64) uint8 {
	for _, r := range adaptiveRates {
		if marginDB >= r.minMarginDB {
			return r.rate
		}
	}
	return 1
}

func computeHealth(signal float64, linkDown bool) uint8 {
	if linkDown {
		return 0
	}
	if signal >= 10 {
		return 255
	}
	if signal <= -40 {
		return 0
	}
	return uint8((signal + 40) / 50 * 255)
}

func clampInt8(v float64) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

// InjectFault drives the subsystem into a named fault mode, §4.3.
func (s *Subsystem) InjectFault(kind model.FaultKind) {
	s.state.Fault = kind
	s.state.FaultSet = true
	s.log.Warn("fault injected", zap.String("kind", string(kind)))
}

// ClearFaults removes any injected fault, §4.3.
func (s *Subsystem) ClearFaults() {
	s.state.Fault = ""
	s.state.FaultSet = false
	s.log.Info("faults cleared")
}

// IsHealthy reports whether the link is up and not in a lost-link condition.
func (s *Subsystem) IsHealthy() bool {
	return s.state.LinkUp && !s.linkDownActive
}

// Snapshot returns a copy of the current state.
func (s *Subsystem) Snapshot() model.CommsState {
	return s.state
}

// ForceTxOff zeroes transmit power, the safety manager's DisableCommsTx
// action, §4.4.
func (s *Subsystem) ForceTxOff() {
	s.state.TxPowerDBm = 0
}

// LoadCurrentMA estimates the comms subsystem's draw on the power bus, a
// function of TX power, for the power subsystem's load model.
func (s *Subsystem) LoadCurrentMA() int32 {
	return int32(50 + int(s.state.TxPowerDBm)*8)
}
