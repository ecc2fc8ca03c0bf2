package signal

import "sync"

// Command is a recorded call on FakeSource.
type Command struct {
	Name     string
	RegionID string
	Region   Region
}

// FakeSource is a test double that records commands and lets tests inject events.
type FakeSource struct {
	mu       sync.Mutex
	events   chan Event
	commands []Command

	// CommandError, if set, is returned by every command.
	CommandError error
	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource with a buffered event channel.
func NewFakeSource() *FakeSource {
	return &FakeSource{events: make(chan Event, 64)}
}

// Emit injects an event as if it came from the device.
func (f *FakeSource) Emit(e Event) {
	f.events <- e
}

// Events returns the injected event stream.
func (f *FakeSource) Events() <-chan Event {
	return f.events
}

func (f *FakeSource) record(c Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommandError != nil {
		return f.CommandError
	}
	f.commands = append(f.commands, c)
	return nil
}

// StartMonitoring records the command.
func (f *FakeSource) StartMonitoring(r Region) error {
	return f.record(Command{Name: CmdStartMonitoring, RegionID: r.ID, Region: r})
}

// StopMonitoring records the command.
func (f *FakeSource) StopMonitoring(regionID string) error {
	return f.record(Command{Name: CmdStopMonitoring, RegionID: regionID})
}

// RequestState records the command.
func (f *FakeSource) RequestState(regionID string) error {
	return f.record(Command{Name: CmdRequestState, RegionID: regionID})
}

// StartContinuousUpdates records the command.
func (f *FakeSource) StartContinuousUpdates() error {
	return f.record(Command{Name: CmdStartContinuous})
}

// StartSignificantChangeUpdates records the command.
func (f *FakeSource) StartSignificantChangeUpdates() error {
	return f.record(Command{Name: CmdStartSignificantChange})
}

// StartVisitMonitoring records the command.
func (f *FakeSource) StartVisitMonitoring() error {
	return f.record(Command{Name: CmdStartVisitMonitoring})
}

// StopAll records the command.
func (f *FakeSource) StopAll() error {
	return f.record(Command{Name: CmdStopAll})
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Commands returns a copy of the recorded commands.
func (f *FakeSource) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// CommandsNamed returns the recorded commands with the given name.
func (f *FakeSource) CommandsNamed(name string) []Command {
	var out []Command
	for _, c := range f.Commands() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded commands.
func (f *FakeSource) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
	f.CommandError = nil
	f.Closed = false
}
