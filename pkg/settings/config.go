package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zurustar/drumpractice/pkg/fileutil"
	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/tempo"
)

// Output selects where playback events are sent.
type Output string

const (
	OutputSynth Output = "synth" // built-in SoundFont synthesizer
	OutputPort  Output = "port"  // external MIDI output port
	OutputNull  Output = "null"  // discard (dry run)
)

// ParseOutput validates an output name.
func ParseOutput(s string) (Output, error) {
	switch o := Output(strings.ToLower(strings.TrimSpace(s))); o {
	case OutputSynth, OutputPort, OutputNull:
		return o, nil
	case "":
		return OutputSynth, nil
	}
	return "", fmt.Errorf("%w: unknown output %q (must be synth, port or null)", ErrConfig, s)
}

// Defaults for Settings.
const (
	DefaultOutput      = OutputSynth
	DefaultTempoMode   = "bpm"
	DefaultStopTimeout = time.Second
	DefaultLogLevel    = "info"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Player PlayerConfig `toml:"player"`
}

// PlayerConfig maps player settings. Nil fields were not set in the file.
type PlayerConfig struct {
	SoundFont    *string `toml:"soundfont"`
	SettingsFile *string `toml:"settings-file"`
	Output       *string `toml:"output"`
	Port         *string `toml:"port"`
	TempoMode    *string `toml:"tempo-mode"`
	StopTimeout  *string `toml:"stop-timeout"`
	LogLevel     *string `toml:"log-level"`
	LogFile      *string `toml:"log-file"`
	MuteDrums    *bool   `toml:"mute-drums"`
	MuteOthers   *bool   `toml:"mute-others"`
}

// Settings is the resolved player configuration.
type Settings struct {
	SoundFont    string // explicit sound bank; empty means use SettingsFile
	SettingsFile string
	Output       string
	Port         string
	TempoMode    string
	StopTimeout  time.Duration
	LogLevel     string
	LogFile      string
	MuteDrums    bool
	MuteOthers   bool
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		SettingsFile: DefaultSettingsFile,
		Output:       string(DefaultOutput),
		TempoMode:    DefaultTempoMode,
		StopTimeout:  DefaultStopTimeout,
		LogLevel:     DefaultLogLevel,
	}
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("%w: failed to decode %s: %v", ErrConfig, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.GetLogger().Warn("Ignoring unknown config keys", "path", path, "keys", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyFile overlays values set in fc. keep reports settings that must
// not be overwritten, e.g. because a command-line flag set them.
func (s *Settings) ApplyFile(fc FileConfig, keep func(name string) bool) error {
	if keep == nil {
		keep = func(string) bool { return false }
	}
	p := fc.Player
	str := func(name string, target *string, v *string) {
		if v != nil && !keep(name) {
			*target = *v
		}
	}
	flag := func(name string, target *bool, v *bool) {
		if v != nil && !keep(name) {
			*target = *v
		}
	}

	str("soundfont", &s.SoundFont, p.SoundFont)
	str("settings", &s.SettingsFile, p.SettingsFile)
	str("output", &s.Output, p.Output)
	str("port", &s.Port, p.Port)
	str("mode", &s.TempoMode, p.TempoMode)
	str("log-level", &s.LogLevel, p.LogLevel)
	str("log-file", &s.LogFile, p.LogFile)
	flag("mute-drums", &s.MuteDrums, p.MuteDrums)
	flag("mute-others", &s.MuteOthers, p.MuteOthers)

	if p.StopTimeout != nil && !keep("stop-timeout") {
		d, err := time.ParseDuration(*p.StopTimeout)
		if err != nil {
			return fmt.Errorf("%w: stop-timeout: %v", ErrConfig, err)
		}
		s.StopTimeout = d
	}
	return nil
}

// Validate checks that every value is usable.
func (s Settings) Validate() error {
	var errs []error
	if _, err := ParseOutput(s.Output); err != nil {
		errs = append(errs, err)
	}
	if _, err := tempo.ParseMode(s.TempoMode); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrConfig, err))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrConfig, err))
	}
	if s.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: stop-timeout must be > 0, got %v", ErrConfig, s.StopTimeout))
	}
	return errors.Join(errs...)
}

// SoundBank returns the sound bank to load: the explicit SoundFont if
// set, otherwise the path named in the settings file.
func (s Settings) SoundBank() (string, error) {
	if s.SoundFont != "" {
		return fileutil.ExpandHome(s.SoundFont), nil
	}
	return LoadSoundBankPath(s.SettingsFile)
}

// DefaultConfigTemplate returns the commented config written by
// WriteDefaultConfig.
func DefaultConfigTemplate() string {
	return fmt.Sprintf(`# drumpractice configuration
# Uncomment a value to enable it. CLI flags override config values.

[player]
# soundfont = "~/soundfonts/GeneralUser-GS.sf2"  # SoundFont; overrides settings-file
# settings-file = %q      # File naming the SoundFont (soundfont = path)
# output = %q             # synth, port or null
# port = ""                 # MIDI output port name (output = "port")
# tempo-mode = %q           # bpm or percent
# stop-timeout = %q         # How long Stop waits for the player to finish
# log-level = %q           # debug, info, warn, error
# log-file = ""             # Log file for the interactive player
# mute-drums = false        # Start with drums muted
# mute-others = false       # Start with accompaniment muted
`,
		DefaultSettingsFile,
		DefaultOutput,
		DefaultTempoMode,
		DefaultStopTimeout.String(),
		DefaultLogLevel,
	)
}

// WriteDefaultConfig writes the default template to path unless a file
// already exists there. It reports whether a file was created.
func WriteDefaultConfig(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTemplate()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config: %w", err)
	}
	return true, nil
}
