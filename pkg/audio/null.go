package audio

import "sync/atomic"

// NullSink discards every event. It counts what it receives, which makes
// it useful for dry runs.
type NullSink struct {
	started  atomic.Int64
	stopped  atomic.Int64
	notesOn  atomic.Int64
	notesOff atomic.Int64
	programs atomic.Int64
}

// NullStats is a snapshot of a NullSink's counters.
type NullStats struct {
	Starts, Stops, NotesOn, NotesOff, Programs int64
}

func (n *NullSink) Start() error { n.started.Add(1); return nil }
func (n *NullSink) Stop() error  { n.stopped.Add(1); return nil }

func (n *NullSink) NoteOn(channel, key, velocity uint8) { n.notesOn.Add(1) }
func (n *NullSink) NoteOff(channel, key uint8)          { n.notesOff.Add(1) }
func (n *NullSink) ProgramChange(channel, program uint8) {
	n.programs.Add(1)
}

// Stats returns the counters.
func (n *NullSink) Stats() NullStats {
	return NullStats{
		Starts:   n.started.Load(),
		Stops:    n.stopped.Load(),
		NotesOn:  n.notesOn.Load(),
		NotesOff: n.notesOff.Load(),
		Programs: n.programs.Load(),
	}
}
