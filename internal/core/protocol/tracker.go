package protocol

import (
	"go.uber.org/zap"

	"satbus/internal/core/model"
)

// TrackerCapacity bounds the number of in-flight (non-GC'd) commands, §4.5.
const TrackerCapacity = 16

// DefaultTimeoutMS and DefaultGraceMS are the tracker's per-command timeout
// and the post-terminal grace period before a sweep removes it, §4.5/§9.
const (
	DefaultTimeoutMS = 30_000
	DefaultGraceMS   = 5_000
)

// forwardTransitions enumerates the only legal status moves, §4.5/§5:
// status transitions are strictly forward, never backward or sideways into
// a different terminal state.
var forwardTransitions = map[model.CommandStatus][]model.CommandStatus{
	model.StatusAccepted:   {model.StatusNegativeAck, model.StatusStarted, model.StatusTimeout},
	model.StatusStarted:    {model.StatusInProgress, model.StatusSuccess, model.StatusFailed, model.StatusTimeout},
	model.StatusInProgress: {model.StatusSuccess, model.StatusFailed, model.StatusTimeout},
}

func canTransition(from, to model.CommandStatus) bool {
	if from == to {
		return false
	}
	for _, allowed := range forwardTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Tracker is the §4.5 in-flight command lifecycle tracker.
type Tracker struct {
	entries   map[uint32]*model.TrackedCommand
	timeoutMS int64
	graceMS   int64
	log       *zap.Logger
}

// NewTracker creates a tracker with the default timeout/grace.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		entries:   make(map[uint32]*model.TrackedCommand, TrackerCapacity),
		timeoutMS: DefaultTimeoutMS,
		graceMS:   DefaultGraceMS,
		log:       logger.With(zap.String("component", "tracker")),
	}
}

// Track begins tracking a command id, §4.5. A duplicate id, or a tracker at
// capacity, fails with BufferOverflow.
func (t *Tracker) Track(id uint32, nowMS int64, timeoutMS int64) *model.ProtocolError {
	if _, exists := t.entries[id]; exists {
		return model.NewProtocolError(model.ErrBufferOverflow, "duplicate command id")
	}
	if len(t.entries) >= TrackerCapacity {
		return model.NewProtocolError(model.ErrBufferOverflow, "tracker at capacity")
	}
	if timeoutMS <= 0 {
		timeoutMS = t.timeoutMS
	}
	t.entries[id] = &model.TrackedCommand{
		ID:            id,
		Status:        model.StatusAccepted,
		SubmittedAtMS: nowMS,
		DeadlineMS:    nowMS + timeoutMS,
	}
	return nil
}

// UpdateStatus advances a tracked command's lifecycle, §4.5. Expired
// commands are transitioned to Timeout first; otherwise only forward
// transitions are permitted.
func (t *Tracker) UpdateStatus(id uint32, status model.CommandStatus, nowMS int64) error {
	tc, ok := t.entries[id]
	if !ok {
		return model.ErrNotFound
	}
	if nowMS >= tc.DeadlineMS && !tc.Status.IsTerminal() {
		tc.Status = model.StatusTimeout
		if status == model.StatusTimeout {
			return nil
		}
		return model.ErrInvalidTransition
	}
	if !canTransition(tc.Status, status) {
		return model.ErrInvalidTransition
	}
	tc.Status = status
	return nil
}

// StatusOf returns the current tracked status for a command id, §4.5.
func (t *Tracker) StatusOf(id uint32) (model.CommandStatus, bool) {
	tc, ok := t.entries[id]
	if !ok {
		return "", false
	}
	return tc.Status, true
}

// CleanupExpired removes terminal entries older than the grace period, and
// times out entries whose deadline has passed, §4.5. This is independent of
// scheduler-side expiry (§9 Open Questions): the agent tracks a command from
// acceptance, so one still waiting in the scheduler can time out here too.
func (t *Tracker) CleanupExpired(nowMS int64) int {
	removed := 0
	for id, tc := range t.entries {
		if !tc.Status.IsTerminal() && nowMS >= tc.DeadlineMS {
			tc.Status = model.StatusTimeout
		}
		if tc.Status.IsTerminal() && nowMS-tc.SubmittedAtMS > t.graceMS {
			delete(t.entries, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.Info("tracker swept expired entries", zap.Int("count", removed))
	}
	return removed
}

// Count returns the number of currently tracked entries.
func (t *Tracker) Count() int { return len(t.entries) }

// NonTerminalCount returns the number of entries not yet in a terminal state.
func (t *Tracker) NonTerminalCount() int {
	n := 0
	for _, tc := range t.entries {
		if !tc.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all tracked commands, for telemetry/API use.
func (t *Tracker) Snapshot() []model.TrackedCommand {
	out := make([]model.TrackedCommand, 0, len(t.entries))
	for _, tc := range t.entries {
		out = append(out, *tc)
	}
	return out
}
