// File: internal/memory/short_term.go
package memory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
)

// Entry is a single short-term memory record: the action taken, whether it
// succeeded, and free-form context captured at that point. Entries are
// append-only; the only removal is oldest-first eviction at capacity.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    schemas.Action    `json:"action"`
	Success   bool              `json:"success"`
	Context   map[string]string `json:"context,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
}

// ShortTerm is the working memory for the current task: a bounded,
// insertion-ordered window of recent (action, result) pairs. One instance is
// owned by one task execution; it is not safe for concurrent use and does
// not need to be.
type ShortTerm struct {
	logger   *zap.Logger
	capacity int
	entries  []Entry

	task      string
	startTime time.Time
}

// DefaultCapacity is the short-term window size for the basic control loop.
const DefaultCapacity = 10

// NewShortTerm creates a short-term memory with the given capacity. A
// non-positive capacity falls back to DefaultCapacity.
func NewShortTerm(capacity int, logger *zap.Logger) *ShortTerm {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ShortTerm{
		logger:   logger.Named("stm"),
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// StartTask clears the window and records the new task name and start time.
// Short-term memory persists only for the duration of one task.
func (m *ShortTerm) StartTask(task string) {
	m.task = task
	m.startTime = time.Now()
	m.entries = m.entries[:0]
	m.logger.Info("Started new task", zap.String("task", task))
}

// Add appends an (action, result) pair, evicting the oldest entry when the
// window is full.
func (m *ShortTerm) Add(action schemas.Action, result schemas.ActionResult, context map[string]string) {
	outcome := "success"
	if !result.Success {
		outcome = result.Error
	}
	entry := Entry{
		Timestamp: time.Now(),
		Action:    action,
		Success:   result.Success,
		Context:   context,
		Outcome:   outcome,
	}

	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries[len(m.entries)-1] = entry
	} else {
		m.entries = append(m.entries, entry)
	}
	m.logger.Debug("Memory updated",
		zap.Int("entries", len(m.entries)),
		zap.Int("capacity", m.capacity))
}

// Len reports the current number of entries.
func (m *ShortTerm) Len() int { return len(m.entries) }

// Entries returns a copy of the current window in insertion order.
func (m *ShortTerm) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// LastAction returns the most recent action, or false when the window is
// empty.
func (m *ShortTerm) LastAction() (schemas.Action, bool) {
	if len(m.entries) == 0 {
		return schemas.Action{}, false
	}
	return m.entries[len(m.entries)-1].Action, true
}

// DetectLoop reports whether the last threshold entries all share an
// identical action type. Strict type equality only; any window containing
// two distinct types is not a loop.
func (m *ShortTerm) DetectLoop(threshold int) bool {
	if threshold <= 0 || len(m.entries) < threshold {
		return false
	}
	recent := m.entries[len(m.entries)-threshold:]
	first := recent[0].Action.Type
	for _, e := range recent[1:] {
		if e.Action.Type != first {
			return false
		}
	}
	m.logger.Warn("Loop detected",
		zap.String("action_type", string(first)),
		zap.Int("repetitions", threshold))
	return true
}

// Context assembles the perception context bundle fields derived from this
// window: the last five formatted history lines, the running success rate,
// the elapsed task duration, and a summary of the last action.
func (m *ShortTerm) Context() schemas.ContextBundle {
	bundle := schemas.ContextBundle{OverallTask: m.task}
	if !m.startTime.IsZero() {
		bundle.ElapsedSecs = time.Since(m.startTime).Seconds()
	}
	if len(m.entries) == 0 {
		return bundle
	}

	start := len(m.entries) - 5
	if start < 0 {
		start = 0
	}
	for _, e := range m.entries[start:] {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		bundle.History = append(bundle.History,
			fmt.Sprintf("[%s] %s: %s", status, e.Action.Type, e.Action.Reason))
	}

	successes := 0
	for _, e := range m.entries {
		if e.Success {
			successes++
		}
	}
	bundle.SuccessRate = float64(successes) / float64(len(m.entries))
	bundle.TotalSteps = len(m.entries)

	last := m.entries[len(m.entries)-1]
	bundle.LastAction = fmt.Sprintf("%s: %s", last.Action.Type, last.Action.Reason)
	return bundle
}

// Stats summarizes the window for reporting.
type Stats struct {
	Entries     int           `json:"entries"`
	SuccessRate float64       `json:"success_rate"`
	Duration    time.Duration `json:"duration"`
	Task        string        `json:"task,omitempty"`
}

// Stats returns the current window statistics.
func (m *ShortTerm) Stats() Stats {
	s := Stats{Entries: len(m.entries), Task: m.task}
	if !m.startTime.IsZero() {
		s.Duration = time.Since(m.startTime)
	}
	if len(m.entries) == 0 {
		return s
	}
	successes := 0
	for _, e := range m.entries {
		if e.Success {
			successes++
		}
	}
	s.SuccessRate = float64(successes) / float64(len(m.entries))
	return s
}
