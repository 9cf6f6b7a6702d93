package bootstrap

import (
	"fmt"
	"sort"

	"nofx/logger"
)

// Sequence is an ordered list of startup hooks, run in ascending Priority
// order (spec §4.11's start() steps: open gateway, load instruments, set
// hedge mode, open both WebSockets, reconcile, spawn traders, start the
// supervisor timer).
type Sequence struct {
	hooks []*Hook
}

// NewSequence builds an empty Sequence.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Add registers a hook and returns a HookBuilder for chained configuration
// (EnabledIf/OnError), matching the teacher's builder idiom.
func (s *Sequence) Add(name string, priority int, fn func(*Context) error) *HookBuilder {
	h := &Hook{Name: name, Priority: priority, Func: fn, ErrorPolicy: FailFast}
	s.hooks = append(s.hooks, h)
	return &HookBuilder{hook: h}
}

// Run executes every hook in priority order, skipping any whose Enabled
// function returns false. A FailFast hook's error aborts the sequence
// immediately; a LogAndContinue hook's error is logged and the sequence
// proceeds.
func (s *Sequence) Run(c *Context) error {
	ordered := append([]*Hook(nil), s.hooks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, h := range ordered {
		if h.Enabled != nil && !h.Enabled(c) {
			logger.Infof("[bootstrap] skipping %s (disabled)", h.Name)
			continue
		}

		logger.Infof("[bootstrap] running %s", h.Name)
		if err := h.Func(c); err != nil {
			if h.ErrorPolicy == LogAndContinue {
				logger.Warnf("[bootstrap] %s failed (continuing): %v", h.Name, err)
				continue
			}
			return fmt.Errorf("%s: %w", h.Name, err)
		}
	}

	return nil
}
