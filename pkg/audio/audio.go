// Package audio provides the synthesis sinks that playback sessions send
// MIDI channel events to: a SoundFont software synthesizer played through
// Ebitengine/audio, a hardware or virtual MIDI output port, and a null sink.
package audio

import (
	"errors"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleRate is the audio sample rate used for MIDI synthesis.
const SampleRate = 44100

// ErrNoSoundFont is returned when no SoundFont file is configured.
var ErrNoSoundFont = errors.New("SoundFont file is required for MIDI playback")

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// ErrSoundFontInvalid is returned when the SoundFont file cannot be parsed.
var ErrSoundFontInvalid = errors.New("invalid SoundFont file")

// ErrPortNotFound is returned when no MIDI output port matches.
var ErrPortNotFound = errors.New("MIDI output port not found")

var (
	sharedCtx     *audio.Context
	sharedCtxOnce sync.Once
)

// SharedContext returns the process-wide Ebitengine audio context.
// Ebitengine allows only one context per process.
func SharedContext() *audio.Context {
	sharedCtxOnce.Do(func() {
		if ctx := audio.CurrentContext(); ctx != nil {
			sharedCtx = ctx
			return
		}
		sharedCtx = audio.NewContext(SampleRate)
	})
	return sharedCtx
}
