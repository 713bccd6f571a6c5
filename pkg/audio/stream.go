package audio

import (
	"encoding/binary"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// MIDI status bytes understood by the synthesizer.
const (
	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusControlChange = 0xB0
	statusProgramChange = 0xC0

	controllerAllNotesOff = 123
)

// SynthStream implements io.Reader for Ebitengine/audio.
// It renders 16-bit interleaved stereo from a synthesizer that is driven
// event by event rather than by a sequencer.
type SynthStream struct {
	synth       *meltysynth.Synthesizer
	left, right []float32
	sampleCount int64
	stopped     bool
	mu          sync.Mutex
}

// NewSynthStream wraps synth. All access to synth must go through the
// stream afterwards.
func NewSynthStream(synth *meltysynth.Synthesizer) *SynthStream {
	return &SynthStream{synth: synth}
}

// Read implements io.Reader interface for SynthStream.
func (s *SynthStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.synth == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	// 16-bit stereo = 4 bytes per sample frame
	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	if cap(s.left) < samples {
		s.left = make([]float32, samples)
		s.right = make([]float32, samples)
	}
	left, right := s.left[:samples], s.right[:samples]

	s.synth.Render(left, right)
	s.sampleCount += int64(samples)

	for i := 0; i < samples; i++ {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}

	return samples * 4, nil
}

func (s *SynthStream) send(channel, command, data1, data2 uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.synth == nil {
		return
	}
	s.synth.ProcessMidiMessage(int32(channel&0x0F), int32(command), int32(data1&0x7F), int32(data2&0x7F))
}

// NoteOn starts a note.
func (s *SynthStream) NoteOn(channel, key, velocity uint8) {
	s.send(channel, statusNoteOn, key, velocity)
}

// NoteOff releases a note.
func (s *SynthStream) NoteOff(channel, key uint8) {
	s.send(channel, statusNoteOff, key, 0)
}

// ProgramChange selects the instrument of a channel.
func (s *SynthStream) ProgramChange(channel, program uint8) {
	s.send(channel, statusProgramChange, program, 0)
}

// AllNotesOff releases every sounding note on every channel.
func (s *SynthStream) AllNotesOff() {
	for ch := uint8(0); ch < 16; ch++ {
		s.send(ch, statusControlChange, controllerAllNotesOff, 0)
	}
}

// Stop marks the stream as stopped, causing Read to return silence and
// further events to be dropped.
func (s *SynthStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// SampleCount returns the number of sample frames rendered so far.
func (s *SynthStream) SampleCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleCount
}

// clamp restricts a value to the range [min, max].
func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
