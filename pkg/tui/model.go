// Package tui provides the Bubble Tea control surface of the drum practice
// player.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/zurustar/drumpractice/pkg/playback"
	"github.com/zurustar/drumpractice/pkg/player"
	"github.com/zurustar/drumpractice/pkg/tempo"
)

// TitleBase is the terminal window title without a file name.
const TitleBase = "Drum Practice MIDI Player"

// MIDIExtensions are the file types offered by the file picker.
var MIDIExtensions = []string{".mid", ".midi"}

// Controller is what the model drives. *player.Player implements it.
type Controller interface {
	Load(path string) (player.Info, error)
	ComputeTempoFactor(path, text string, mode tempo.Mode) (float64, error)
	Play(path string, factor float64) error
	Stop()
	SetMuteDrums(mute bool)
	SetMuteOthers(mute bool)
	State() playback.State
}

// EndedMsg reports that a playback session ended.
type EndedMsg struct {
	State playback.State
}

// Options configure a Model.
type Options struct {
	File       string                // loaded at start when set
	StartDir   string                // file picker directory; defaults to home
	Mode       tempo.Mode            // initial tempo mode
	MuteDrums  bool                  // initial checkbox states
	MuteOthers bool
	Ended      <-chan playback.State // session ends, e.g. from player.WithOnEnd
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

// Model implements tea.Model.
type Model struct {
	ctrl  Controller
	ended <-chan playback.State

	picker  filepicker.Model
	picking bool
	input   textinput.Model
	mode    tempo.Mode

	file       string
	info       player.Info
	muteDrums  bool
	muteOthers bool

	status     string
	statusKind statusKind

	width    int
	quitting bool
}

var (
	green       = lipgloss.Color("#00FF00")
	lightGreen  = lipgloss.Color("#88FF88")
	red         = lipgloss.Color("#FF5555")
	dim         = lipgloss.Color("#6E6E6E")
	titleStyle  = lipgloss.NewStyle().Foreground(lightGreen).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(green)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errStyle    = lipgloss.NewStyle().Foreground(red)
	playStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#101010")).Background(lightGreen).Padding(0, 1)
	stopStyle   = lipgloss.NewStyle().Foreground(red).Background(lipgloss.Color("#330000")).Padding(0, 1)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(0, 1)
	pickerTitle = lipgloss.NewStyle().Foreground(lightGreen).MarginBottom(1)
)

// NewModel creates the control surface for ctrl.
func NewModel(ctrl Controller, opts Options) *Model {
	input := textinput.New()
	input.Prompt = "Tempo: "
	input.Placeholder = "original"
	input.CharLimit = 8
	input.Width = 10
	input.PromptStyle = textStyle
	input.TextStyle = textStyle

	fp := filepicker.New()
	fp.AllowedTypes = MIDIExtensions
	fp.CurrentDirectory = opts.StartDir
	if fp.CurrentDirectory == "" {
		if home, err := os.UserHomeDir(); err == nil {
			fp.CurrentDirectory = home
		} else {
			fp.CurrentDirectory = "."
		}
	}

	m := &Model{
		ctrl:       ctrl,
		ended:      opts.Ended,
		picker:     fp,
		input:      input,
		mode:       opts.Mode,
		muteDrums:  opts.MuteDrums,
		muteOthers: opts.MuteOthers,
		status:     "Press f to open a MIDI file",
	}
	ctrl.SetMuteDrums(m.muteDrums)
	ctrl.SetMuteOthers(m.muteOthers)
	if opts.File != "" {
		m.load(opts.File)
		if m.file != "" {
			m.picker.CurrentDirectory = filepath.Dir(m.file)
		}
	}
	return m
}

// listen waits for the next session end.
func listen(ended <-chan playback.State) tea.Cmd {
	if ended == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ended
		if !ok {
			return nil
		}
		return EndedMsg{State: s}
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tea.SetWindowTitle(m.title()), listen(m.ended))
}

func (m *Model) title() string {
	if m.file == "" {
		return TitleBase
	}
	return TitleBase + " - " + filepath.Base(m.file)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case EndedMsg:
		switch msg.State {
		case playback.StateFinished:
			m.setStatus(statusInfo, "Playback finished")
		case playback.StateStopped:
			m.setStatus(statusInfo, "Playback stopped")
		}
		return m, listen(m.ended)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.quit()
		}
		if m.picking {
			return m, m.updatePicker(msg)
		}
		if m.input.Focused() {
			return m, m.updateInput(msg)
		}
		return m, m.handleKey(msg.String())
	}

	if m.picking {
		return m, m.updatePicker(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(key string) tea.Cmd {
	switch key {
	case "q":
		return m.quit()
	case "f":
		m.picking = true
		return m.picker.Init()
	case "d":
		m.muteDrums = !m.muteDrums
		m.ctrl.SetMuteDrums(m.muteDrums)
	case "a":
		m.muteOthers = !m.muteOthers
		m.ctrl.SetMuteOthers(m.muteOthers)
	case "m":
		m.mode = m.mode.Next()
	case "enter", "p":
		m.play()
	case "s":
		m.stop()
	case "tab":
		return m.input.Focus()
	}
	return nil
}

func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		m.input.Blur()
		m.play()
		return nil
	case tea.KeyEsc, tea.KeyTab:
		m.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) updatePicker(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.picking = false
		return nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.picking = false
		m.load(path)
		return tea.Batch(cmd, tea.SetWindowTitle(m.title()))
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.setStatus(statusWarn, filepath.Base(path)+" is not a MIDI file")
	}
	return cmd
}

func (m *Model) load(path string) {
	info, err := m.ctrl.Load(path)
	if err != nil {
		m.setStatus(statusError, fmt.Sprintf("Cannot load %s: %v", filepath.Base(path), err))
		return
	}
	m.file = info.Path
	m.info = info
	m.setStatus(statusInfo, "Loaded "+filepath.Base(info.Path))
}

func (m *Model) play() {
	if m.file == "" {
		m.setStatus(statusWarn, "No MIDI file selected")
		return
	}
	if m.ctrl.State() == playback.StatePlaying {
		m.setStatus(statusWarn, "Already playing; stop first")
		return
	}

	factor, warn := m.ctrl.ComputeTempoFactor(m.file, m.input.Value(), m.mode)
	if err := m.ctrl.Play(m.file, factor); err != nil {
		m.setStatus(statusError, fmt.Sprintf("Cannot play: %v", err))
		return
	}
	if warn != nil {
		m.setStatus(statusWarn, fmt.Sprintf("%v; playing at original tempo", warn))
		return
	}
	m.setStatus(statusInfo, fmt.Sprintf("Playing %s with tempo factor %.2f", filepath.Base(m.file), factor))
}

func (m *Model) stop() {
	if m.ctrl.State() != playback.StatePlaying {
		m.setStatus(statusWarn, "Nothing is playing")
		return
	}
	m.ctrl.Stop()
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	if m.ctrl.State() == playback.StatePlaying {
		m.ctrl.Stop()
	}
	return tea.Quit
}

func (m *Model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.status = text
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.picking {
		return pickerTitle.Render("Select MIDI File") + "\n" + m.picker.View() + "\n" +
			dimStyle.Render("enter: open  esc: cancel")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(TitleBase))
	b.WriteString("\n\n")
	b.WriteString(m.renderControls())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("f:file  d:drums  a:accomp  tab:tempo  m:mode  p/enter:play  s:stop  q:quit"))
	return b.String()
}

func (m *Model) renderControls() string {
	width := m.width - 6
	if width < 20 {
		width = 60
	}

	fileLabel := "No file loaded"
	if m.file != "" {
		fileLabel = filepath.Base(m.file)
	}
	fileLabel = runewidth.Truncate(fileLabel, width-6, "…")

	bpm := "N/A"
	if m.file != "" {
		bpm = fmt.Sprintf("%.2f", m.info.OriginalBPM)
	}

	state := stopStyle.Render("STOP")
	if m.ctrl.State() == playback.StatePlaying {
		state = playStyle.Render("PLAY")
	}

	lines := []string{
		textStyle.Render("File: " + fileLabel),
		checkbox(m.muteDrums, "Mute drums"),
		checkbox(m.muteOthers, "Mute accompaniment"),
		m.input.View() + "  " + textStyle.Render("["+m.mode.String()+"]"),
		textStyle.Render("Original BPM: " + bpm),
		state,
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStatus() string {
	switch m.statusKind {
	case statusWarn:
		return warnStyle.Render(m.status)
	case statusError:
		return errStyle.Render(m.status)
	}
	return textStyle.Render(m.status)
}

func checkbox(on bool, label string) string {
	mark := "[ ]"
	if on {
		mark = "[x]"
	}
	return textStyle.Render(mark + " " + label)
}
