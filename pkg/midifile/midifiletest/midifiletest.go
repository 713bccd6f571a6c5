// Package midifiletest builds small Standard MIDI Files for tests.
package midifiletest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Tempo returns a tempo meta event with the exact microseconds-per-quarter value.
func Tempo(delta uint32, micros uint32) smf.Event {
	return smf.Event{
		Delta:   delta,
		Message: smf.Message{0xFF, 0x51, 0x03, byte(micros >> 16), byte(micros >> 8), byte(micros)},
	}
}

// NoteOn returns a note on event.
func NoteOn(delta uint32, ch, key, vel uint8) smf.Event {
	return smf.Event{Delta: delta, Message: smf.Message{0x90 | ch&0x0F, key, vel}}
}

// NoteOff returns a note off event.
func NoteOff(delta uint32, ch, key uint8) smf.Event {
	return smf.Event{Delta: delta, Message: smf.Message{0x80 | ch&0x0F, key, 0}}
}

// Program returns a program change event.
func Program(delta uint32, ch, program uint8) smf.Event {
	return smf.Event{Delta: delta, Message: smf.Message{0xC0 | ch&0x0F, program}}
}

// Controller returns a control change event.
func Controller(delta uint32, ch, cc, value uint8) smf.Event {
	return smf.Event{Delta: delta, Message: smf.Message{0xB0 | ch&0x0F, cc, value}}
}

// Name returns a track name meta event with raw bytes.
func Name(delta uint32, raw []byte) smf.Event {
	msg := smf.Message{0xFF, 0x03, byte(len(raw))}
	msg = append(msg, raw...)
	return smf.Event{Delta: delta, Message: msg}
}

// EndOfTrack returns an end-of-track meta event.
func EndOfTrack(delta uint32) smf.Event {
	return smf.Event{Delta: delta, Message: smf.Message{0xFF, 0x2F, 0x00}}
}

// Track assembles events into a track, appending an end-of-track marker
// when the last event is not one already.
func Track(events ...smf.Event) smf.Track {
	tr := smf.Track(events)
	if n := len(tr); n == 0 || !isEOT(tr[n-1].Message) {
		tr = append(tr, EndOfTrack(0))
	}
	return tr
}

func isEOT(msg smf.Message) bool {
	return len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x2F
}

// Bytes encodes the tracks as an SMF with the given resolution.
func Bytes(t testing.TB, ppqn uint16, tracks ...smf.Track) []byte {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppqn)
	for _, tr := range tracks {
		if err := s.Add(tr); err != nil {
			t.Fatalf("failed to add track: %v", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to encode SMF: %v", err)
	}
	return buf.Bytes()
}

// Write stores the tracks as an SMF file in a temporary directory and
// returns its path.
func Write(t testing.TB, name string, ppqn uint16, tracks ...smf.Track) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Bytes(t, ppqn, tracks...), 0o644); err != nil {
		t.Fatalf("failed to write SMF: %v", err)
	}
	return path
}
