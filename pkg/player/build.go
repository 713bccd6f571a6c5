package player

import (
	"fmt"

	"github.com/zurustar/drumpractice/pkg/audio"
	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/playback"
	"github.com/zurustar/drumpractice/pkg/settings"
)

// NewSink creates the sink selected by s.Output. The synth output needs a
// readable sound bank; a missing or invalid one is a configuration error.
func NewSink(s settings.Settings, opts ...Option) (playback.Sink, error) {
	o := options{log: logger.GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	output, err := settings.ParseOutput(s.Output)
	if err != nil {
		return nil, err
	}

	switch output {
	case settings.OutputNull:
		return &audio.NullSink{}, nil
	case settings.OutputPort:
		return audio.NewPortSink(s.Port, audio.WithPortLogger(o.log)), nil
	}

	bank, err := s.SoundBank()
	if err != nil {
		return nil, err
	}
	sink, err := audio.OpenSynthSink(bank, audio.WithSynthLogger(o.log))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", settings.ErrConfig, err)
	}
	o.log.Info("SoundFont loaded", "path", bank)
	return sink, nil
}

// NewFromSettings builds the sink described by s and a Player using it,
// with the stop timeout and initial mute flags from s.
func NewFromSettings(s settings.Settings, opts ...Option) (*Player, error) {
	sink, err := NewSink(s, opts...)
	if err != nil {
		return nil, err
	}
	if s.StopTimeout > 0 {
		opts = append([]Option{WithStopTimeout(s.StopTimeout)}, opts...)
	}
	p := New(sink, opts...)
	p.SetMuteDrums(s.MuteDrums)
	p.SetMuteOthers(s.MuteOthers)
	return p, nil
}
