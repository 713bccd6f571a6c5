// Package midifile reads Standard MIDI Files into a single ordered event
// timeline suitable for tempo analysis and real-time playback.
//
// The file is decoded with gomidi's smf reader. All tracks are merged into
// one sequence ordered by absolute tick, and only the information the player
// needs is kept: note on/off, program change, tempo, and everything else as
// KindOther so that delta times stay exact.
package midifile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"unicode/utf8"

	"gitlab.com/gomidi/midi/v2/smf"
	"golang.org/x/text/encoding/japanese"
)

// DrumChannel is the zero-based General MIDI percussion channel (channel 10).
const DrumChannel uint8 = 9

// DefaultTempo is the MIDI default tempo in microseconds per quarter note
// (120 BPM), in force until the first tempo event.
const DefaultTempo uint32 = 500000

// ErrParse is returned when the bytes are not a usable MIDI stream.
var ErrParse = errors.New("invalid MIDI file")

// ErrNotFound is returned when the MIDI file does not exist.
var ErrNotFound = errors.New("MIDI file not found")

// Kind identifies the type of a timeline event.
type Kind uint8

const (
	KindOther Kind = iota
	KindNoteOn
	KindNoteOff
	KindProgramChange
	KindSetTempo
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "NoteOn"
	case KindNoteOff:
		return "NoteOff"
	case KindProgramChange:
		return "ProgramChange"
	case KindSetTempo:
		return "SetTempo"
	case KindOther:
		return "Other"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one entry of the merged timeline.
// Only the fields relevant to Kind are set.
type Event struct {
	Delta    uint32 // ticks since the previous event in the timeline
	Kind     Kind
	Channel  uint8
	Note     uint8
	Velocity uint8
	Program  uint8
	Tempo    uint32 // microseconds per quarter note, KindSetTempo only
}

// IsDrum reports whether the event is on the percussion channel.
func (e Event) IsDrum() bool {
	return e.Channel == DrumChannel
}

// BPM returns the tempo of a KindSetTempo event in beats per minute.
func (e Event) BPM() float64 {
	return TempoToBPM(e.Tempo)
}

// Track is a parsed MIDI file flattened to one timeline.
// It is never modified after parsing and may be shared between goroutines.
type Track struct {
	Events     []Event
	PPQN       uint16
	Name       string
	TrackCount int
}

// TotalTicks returns the length of the timeline in ticks.
func (t *Track) TotalTicks() uint64 {
	var total uint64
	for _, ev := range t.Events {
		total += uint64(ev.Delta)
	}
	return total
}

// TempoChanges counts the tempo events in the timeline.
func (t *Track) TempoChanges() int {
	n := 0
	for _, ev := range t.Events {
		if ev.Kind == KindSetTempo {
			n++
		}
	}
	return n
}

// TempoToBPM converts microseconds per quarter note to beats per minute.
func TempoToBPM(tempo uint32) float64 {
	return 60_000_000 / float64(tempo)
}

// ReadFile parses the MIDI file at path.
func ReadFile(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a Standard MIDI File from r.
func Parse(r io.Reader) (*Track, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: SMPTE time division is not supported", ErrParse)
	}
	if uint16(ticks) == 0 {
		return nil, fmt.Errorf("%w: zero ticks per quarter note", ErrParse)
	}
	if len(s.Tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks", ErrParse)
	}

	events, err := merge(s.Tracks)
	if err != nil {
		return nil, err
	}

	return &Track{
		Events:     events,
		PPQN:       uint16(ticks),
		Name:       trackName(s.Tracks[0]),
		TrackCount: len(s.Tracks),
	}, nil
}

// timed is a decoded event with its absolute position.
type timed struct {
	abs uint64
	ev  Event
}

// merge flattens all tracks into one timeline ordered by absolute tick.
// Events at the same tick keep track order, then in-track order.
// Per-track end-of-track markers are replaced by a single closing event at
// the latest end-of-track position.
func merge(tracks []smf.Track) ([]Event, error) {
	var all []timed
	var end uint64

	for _, tr := range tracks {
		var abs uint64
		for _, e := range tr {
			abs += uint64(e.Delta)
			if isEndOfTrack(e.Message) {
				if abs > end {
					end = abs
				}
				continue
			}
			ev, err := decode(e.Message)
			if err != nil {
				return nil, err
			}
			all = append(all, timed{abs: abs, ev: ev})
			if abs > end {
				end = abs
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].abs < all[j].abs
	})

	events := make([]Event, 0, len(all)+1)
	var prev uint64
	for _, t := range all {
		t.ev.Delta = uint32(t.abs - prev)
		prev = t.abs
		events = append(events, t.ev)
	}
	events = append(events, Event{Delta: uint32(end - prev), Kind: KindOther})
	return events, nil
}

func decode(msg smf.Message) (Event, error) {
	var bpm float64
	if msg.GetMetaTempo(&bpm) {
		if bpm <= 0 || math.IsInf(bpm, 0) || math.IsNaN(bpm) {
			return Event{}, fmt.Errorf("%w: tempo event with zero value", ErrParse)
		}
		return Event{Kind: KindSetTempo, Tempo: uint32(math.Round(60_000_000 / bpm))}, nil
	}

	// Channel messages are stored with their status byte expanded.
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return Event{Kind: KindOther}, nil
	}
	ch := msg[0] & 0x0F
	switch msg[0] & 0xF0 {
	case 0x90:
		if len(msg) < 3 {
			return Event{}, fmt.Errorf("%w: truncated note on", ErrParse)
		}
		return Event{Kind: KindNoteOn, Channel: ch, Note: msg[1], Velocity: msg[2]}, nil
	case 0x80:
		if len(msg) < 3 {
			return Event{}, fmt.Errorf("%w: truncated note off", ErrParse)
		}
		return Event{Kind: KindNoteOff, Channel: ch, Note: msg[1], Velocity: msg[2]}, nil
	case 0xC0:
		if len(msg) < 2 {
			return Event{}, fmt.Errorf("%w: truncated program change", ErrParse)
		}
		return Event{Kind: KindProgramChange, Channel: ch, Program: msg[1]}, nil
	}
	return Event{Kind: KindOther, Channel: ch}, nil
}

func isEndOfTrack(msg smf.Message) bool {
	return len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x2F
}

// trackName returns the first track name of tr. Names that are not valid
// UTF-8 are assumed to be Shift_JIS, which is common in Japanese SMF files.
func trackName(tr smf.Track) string {
	for _, e := range tr {
		var name string
		if !e.Message.GetMetaTrackName(&name) {
			continue
		}
		if utf8.ValidString(name) {
			return name
		}
		decoded, err := japanese.ShiftJIS.NewDecoder().String(name)
		if err != nil {
			return name
		}
		return decoded
	}
	return ""
}
