package audio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/zurustar/drumpractice/pkg/logger"
)

// ListOutPorts returns the names of the available MIDI output ports.
// It is empty unless a driver has been registered.
func ListOutPorts() []string {
	outs := midi.GetOutPorts()
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}

// FindOutPort returns the output port called name. An exact match wins;
// otherwise the first port whose name contains name, ignoring case, is
// used. An empty name selects the first port.
func FindOutPort(name string) (drivers.Out, error) {
	return findOutPort(midi.GetOutPorts(), name)
}

func findOutPort(outs []drivers.Out, name string) (drivers.Out, error) {
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: no output ports available", ErrPortNotFound)
	}
	if name == "" {
		return outs[0], nil
	}
	for _, out := range outs {
		if out.String() == name {
			return out, nil
		}
	}
	lower := strings.ToLower(name)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
}

// PortSink sends playback events to an external MIDI output port, for
// players with a hardware or software synthesizer of their own.
type PortSink struct {
	name string
	open func(name string) (drivers.Out, error)
	log  *slog.Logger

	mu   sync.Mutex
	out  drivers.Out
	send func(midi.Message) error
}

// PortSinkOption configures a PortSink.
type PortSinkOption func(*PortSink)

// WithPortLogger sets the logger.
func WithPortLogger(log *slog.Logger) PortSinkOption {
	return func(p *PortSink) {
		if log != nil {
			p.log = log
		}
	}
}

// WithPortOpener replaces the port lookup, e.g. to supply a virtual port.
func WithPortOpener(open func(name string) (drivers.Out, error)) PortSinkOption {
	return func(p *PortSink) {
		if open != nil {
			p.open = open
		}
	}
}

// NewPortSink creates a sink for the output port matching name. The port
// is opened when a session starts.
func NewPortSink(name string, opts ...PortSinkOption) *PortSink {
	p := &PortSink{
		name: name,
		open: FindOutPort,
		log:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the output port.
func (p *PortSink) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out != nil {
		return nil
	}

	out, err := p.open(p.name)
	if err != nil {
		return err
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("failed to open MIDI output %s: %w", out.String(), err)
	}
	p.out = out
	p.send = send
	p.log.Info("MIDI output opened", "port", out.String())
	return nil
}

// Stop sends All Notes Off on every channel and closes the port.
func (p *PortSink) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		return nil
	}
	for ch := uint8(0); ch < 16; ch++ {
		if err := p.send(midi.ControlChange(ch, controllerAllNotesOff, 0)); err != nil {
			p.log.Warn("Failed to send All Notes Off", "channel", ch, "error", err)
			break
		}
	}
	err := p.out.Close()
	p.out = nil
	p.send = nil
	return err
}

func (p *PortSink) write(msg midi.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.send == nil {
		return
	}
	if err := p.send(msg); err != nil {
		p.log.Warn("Failed to send MIDI message", "message", msg.String(), "error", err)
	}
}

// NoteOn sends a note-on message.
func (p *PortSink) NoteOn(channel, key, velocity uint8) {
	p.write(midi.NoteOn(channel, key, velocity))
}

// NoteOff sends a note-off message.
func (p *PortSink) NoteOff(channel, key uint8) {
	p.write(midi.NoteOff(channel, key))
}

// ProgramChange sends a program change message.
func (p *PortSink) ProgramChange(channel, program uint8) {
	p.write(midi.ProgramChange(channel, program))
}
