package logic

import (
	"sort"
	"time"
)

// FakeScheduler is a test double that records armed timers against a virtual
// clock. Advance returns the firings that became due, in deadline order.
type FakeScheduler struct {
	now     time.Duration
	pending []*fakeTimer
	// Scheduled counts every Schedule call.
	Scheduled int
}

type fakeTimer struct {
	fire     Fire
	deadline time.Duration
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeScheduler creates a FakeScheduler at virtual time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// Schedule records a timer due d after the current virtual time.
func (s *FakeScheduler) Schedule(d time.Duration, f Fire) Timer {
	s.Scheduled++
	t := &fakeTimer{fire: f, deadline: s.now + d}
	s.pending = append(s.pending, t)
	return t
}

// Advance moves the virtual clock forward by d and returns the firings that
// became due. Stopped timers never fire.
func (s *FakeScheduler) Advance(d time.Duration) []Fire {
	s.now += d
	var due []*fakeTimer
	var keep []*fakeTimer
	for _, t := range s.pending {
		switch {
		case t.stopped:
		case t.deadline <= s.now:
			t.fired = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	s.pending = keep
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })

	out := make([]Fire, len(due))
	for i, t := range due {
		out[i] = t.fire
	}
	return out
}

// Live returns the number of timers that are neither stopped nor fired.
func (s *FakeScheduler) Live() int {
	n := 0
	for _, t := range s.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}
