package tempo

import (
	"math"
	"testing"
	"time"

	"github.com/zurustar/drumpractice/pkg/midifile"
)

func TestMapSeconds(t *testing.T) {
	// 120 BPM for 4 beats, then 240 BPM for 4 beats.
	track := &midifile.Track{PPQN: 480, Events: []midifile.Event{
		tempoEvent(0, 500000),
		tempoEvent(1920, 250000),
		endEvent(1920),
	}}
	m := NewMap(track)

	tests := []struct {
		tick uint64
		want float64
	}{
		{0, 0},
		{480, 0.5},
		{1920, 2.0},
		{2400, 2.25},
		{3840, 3.0},
	}
	for _, tt := range tests {
		if got := m.Seconds(tt.tick); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Seconds(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestMapDefaultTempoBeforeFirstChange(t *testing.T) {
	track := &midifile.Track{PPQN: 96, Events: []midifile.Event{
		noteEvent(0),
		tempoEvent(96, 1000000),
		endEvent(96),
	}}
	m := NewMap(track)

	if got := m.TempoAt(0); got != midifile.DefaultTempo {
		t.Errorf("TempoAt(0) = %d, want default", got)
	}
	if got := m.TempoAt(100); got != 1000000 {
		t.Errorf("TempoAt(100) = %d, want 1000000", got)
	}
	if got := m.Seconds(192); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("Seconds(192) = %v, want 1.5", got)
	}
}

func TestDuration(t *testing.T) {
	track := &midifile.Track{PPQN: 480, Events: []midifile.Event{
		tempoEvent(0, 500000),
		tempoEvent(1920, 250000),
		endEvent(1920),
	}}
	if got := Duration(track); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
	if got := Scaled(Duration(track), 2.0); got != 6*time.Second {
		t.Errorf("Scaled() = %v, want 6s", got)
	}
	if got := Duration(&midifile.Track{PPQN: 480}); got != 0 {
		t.Errorf("empty track Duration() = %v, want 0", got)
	}
}
