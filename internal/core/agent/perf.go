package agent

import (
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// hostPerformanceSource backs the telemetry performance-history ring with
// real host-process figures rather than synthetic ones.
type hostPerformanceSource struct {
	start         time.Time
	lastLoopStart time.Time
}

// NewHostPerformanceSource creates a PerformanceSource reading real uptime
// and free memory from the host process.
func NewHostPerformanceSource() PerformanceSource {
	now := time.Now()
	return &hostPerformanceSource{start: now, lastLoopStart: now}
}

func (h *hostPerformanceSource) UptimeSeconds() uint32 {
	return uint32(time.Since(h.start).Seconds())
}

func (h *hostPerformanceSource) LoopTimeMicros() uint16 {
	now := time.Now()
	elapsed := now.Sub(h.lastLoopStart)
	h.lastLoopStart = now
	us := elapsed.Microseconds()
	if us > 65535 {
		us = 65535
	}
	if us < 0 {
		us = 0
	}
	return uint16(us)
}

func (h *hostPerformanceSource) FreeMemoryKB() uint16 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	kb := vm.Available / 1024
	if kb > 65535 {
		kb = 65535
	}
	return uint16(kb)
}
