// Package scheduler implements the §4.6 time-tagged scheduler: bounded
// capacity, chronological readiness, and independent expiry-based GC.
package scheduler

import (
	"sort"

	"go.uber.org/zap"

	"satbus/internal/core/model"
)

// Capacity and default expiry, §4.6.
const (
	Capacity              = 32
	DefaultTimeoutSeconds = 3600
)

type entry struct {
	cmd         model.Command
	submittedMS int64
}

// Stats reports scheduler occupancy and lifetime expiry counts, §4.6.
type Stats struct {
	Pending      int
	TotalExpired uint64
}

// Scheduler is the §4.6 time-tagged scheduler.
type Scheduler struct {
	entries       []entry
	timeoutMS     int64
	totalExpired  uint64
	log           *zap.Logger
}

// New creates a scheduler with the default expiry timeout.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timeoutMS: DefaultTimeoutSeconds * 1000,
		log:       logger.With(zap.String("component", "scheduler")),
	}
}

// Schedule enqueues a command, §4.6. Immediate commands (no execution_time)
// are returned by the next Ready call; scheduled commands wait until their
// execution_time elapses. Duplicate ids are rejected.
func (s *Scheduler) Schedule(cmd model.Command, nowMS int64) error {
	if len(s.entries) >= Capacity {
		return model.ErrBufferFull
	}
	for _, e := range s.entries {
		if e.cmd.ID == cmd.ID {
			return model.ErrDuplicateID
		}
	}
	s.entries = append(s.entries, entry{cmd: cmd, submittedMS: nowMS})
	s.sortEntries()
	return nil
}

func (s *Scheduler) sortEntries() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		ei, ej := s.entries[i], s.entries[j]
		ti, tj := execTime(ei.cmd), execTime(ej.cmd)
		if ti != tj {
			return ti < tj
		}
		return ei.cmd.ID < ej.cmd.ID
	})
}

func execTime(cmd model.Command) uint64 {
	if cmd.ExecutionTimeMS == nil {
		return 0
	}
	return *cmd.ExecutionTimeMS
}

// Ready returns, in non-decreasing execution-time order (ties by id), every
// command whose execution_time <= now (or which has none), removing them
// from the scheduler, §4.6.
func (s *Scheduler) Ready(nowMS int64) []model.Command {
	var ready []model.Command
	var remaining []entry
	for _, e := range s.entries {
		if e.cmd.ExecutionTimeMS == nil || *e.cmd.ExecutionTimeMS <= uint64(nowMS) {
			ready = append(ready, e.cmd)
		} else {
			remaining = append(remaining, e)
		}
	}
	s.entries = remaining
	sort.SliceStable(ready, func(i, j int) bool {
		ti, tj := execTime(ready[i]), execTime(ready[j])
		if ti != tj {
			return ti < tj
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// CleanupExpired drops commands that have sat unready longer than the
// scheduler's own timeout, counting them in TotalExpired, §4.6. This is
// independent of tracker-side command timeout (§9 Open Questions): a
// command can expire here without ever having been dispatched at all.
func (s *Scheduler) CleanupExpired(nowMS int64) int {
	var remaining []entry
	dropped := 0
	for _, e := range s.entries {
		if nowMS-e.submittedMS > s.timeoutMS {
			dropped++
			continue
		}
		remaining = append(remaining, e)
	}
	s.entries = remaining
	s.totalExpired += uint64(dropped)
	if dropped > 0 {
		s.log.Warn("scheduler entries expired", zap.Int("count", dropped))
	}
	return dropped
}

// ClearAll empties the scheduler, §4.6.
func (s *Scheduler) ClearAll() {
	s.entries = nil
}

// GetStats reports current occupancy and lifetime expiry count, §4.6.
func (s *Scheduler) GetStats() Stats {
	return Stats{Pending: len(s.entries), TotalExpired: s.totalExpired}
}
