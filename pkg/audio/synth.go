package audio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/drumpractice/pkg/logger"
)

// streamPlayer is the part of *audio.Player the sink uses.
type streamPlayer interface {
	Play()
	Close() error
}

// SynthSink renders playback sessions with a SoundFont synthesizer.
// Each session gets a fresh synthesizer so instrument and controller state
// never leaks from one session into the next.
type SynthSink struct {
	soundFont *meltysynth.SoundFont
	newPlayer func(io.Reader) (streamPlayer, error)
	log       *slog.Logger

	mu     sync.Mutex
	stream *SynthStream
	player streamPlayer
}

// SynthSinkOption configures a SynthSink.
type SynthSinkOption func(*SynthSink)

// WithSynthLogger sets the logger.
func WithSynthLogger(log *slog.Logger) SynthSinkOption {
	return func(s *SynthSink) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSynthSink creates a sink for soundFont. The shared audio context is
// only created when the first session starts.
func NewSynthSink(soundFont *meltysynth.SoundFont, opts ...SynthSinkOption) *SynthSink {
	s := &SynthSink{
		soundFont: soundFont,
		log:       logger.GetLogger(),
		newPlayer: func(r io.Reader) (streamPlayer, error) {
			return SharedContext().NewPlayer(r)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSynthSink loads the SoundFont at path and creates a sink for it.
func OpenSynthSink(path string, opts ...SynthSinkOption) (*SynthSink, error) {
	sf, err := LoadSoundFont(path)
	if err != nil {
		return nil, err
	}
	return NewSynthSink(sf, opts...), nil
}

// Start creates the session's synthesizer and begins audio output.
func (s *SynthSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		s.releaseLocked()
	}

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(s.soundFont, settings)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}

	stream := NewSynthStream(synth)
	player, err := s.newPlayer(stream)
	if err != nil {
		return fmt.Errorf("failed to create audio player: %w", err)
	}
	player.Play()

	s.stream = stream
	s.player = player
	s.log.Debug("Synthesizer started", "sampleRate", SampleRate)
	return nil
}

// Stop silences all notes and closes the audio player.
func (s *SynthSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

// releaseLocked must be called with s.mu held.
func (s *SynthSink) releaseLocked() error {
	if s.stream == nil {
		return nil
	}
	s.stream.AllNotesOff()
	s.stream.Stop()

	var err error
	if s.player != nil {
		err = s.player.Close()
	}
	s.stream = nil
	s.player = nil
	s.log.Debug("Synthesizer released")
	return err
}

func (s *SynthSink) current() *SynthStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// NoteOn forwards a note-on to the current session.
func (s *SynthSink) NoteOn(channel, key, velocity uint8) {
	if st := s.current(); st != nil {
		st.NoteOn(channel, key, velocity)
	}
}

// NoteOff forwards a note-off to the current session.
func (s *SynthSink) NoteOff(channel, key uint8) {
	if st := s.current(); st != nil {
		st.NoteOff(channel, key)
	}
}

// ProgramChange forwards a program change to the current session.
func (s *SynthSink) ProgramChange(channel, program uint8) {
	if st := s.current(); st != nil {
		st.ProgramChange(channel, program)
	}
}
