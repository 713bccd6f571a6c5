// Package playback replays a merged MIDI timeline in real time against a
// synthesis sink, scaling every wait by a fixed tempo factor and applying
// drum/accompaniment muting as events are dispatched.
package playback

import (
	"time"

	"github.com/zurustar/drumpractice/pkg/midifile"
)

// Sink receives the channel events of a playback session.
//
// Start is called once before the first event of a session and Stop exactly
// once after the last. Event methods may be called from the scheduler's
// worker goroutine while Stop runs on another goroutine, so implementations
// must be safe for concurrent use.
type Sink interface {
	Start() error
	Stop() error
	NoteOn(channel, key, velocity uint8)
	NoteOff(channel, key uint8)
	ProgramChange(channel, program uint8)
}

// Timer is a single-shot timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates timers for inter-event waits.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

type realClock struct{}

type realTimer struct {
	t *time.Timer
}

func (realClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// SystemClock uses the runtime timers.
var SystemClock Clock = realClock{}

// Suppressed reports whether an event on channel is silenced by the mute
// flags. Only note events are ever muted.
func Suppressed(kind midifile.Kind, channel uint8, muteDrums, muteOthers bool) bool {
	if kind != midifile.KindNoteOn && kind != midifile.KindNoteOff {
		return false
	}
	drum := channel == midifile.DrumChannel
	return (muteDrums && drum) || (muteOthers && !drum)
}
