package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestParseSoundBankPath(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"key value", "soundfont = /sf/gm.sf2\n", "/sf/gm.sf2"},
		{"underscore key", "SoundFont_Path=/sf/a.sf2", "/sf/a.sf2"},
		{"spaced key", "  soundfont path =  /sf/b.sf2  ", "/sf/b.sf2"},
		{"bare path", "/sf/bare.sf2", "/sf/bare.sf2"},
		{"comments and blanks", "# soundfont = /nope.sf2\n\n   \n/sf/c.sf2\n", "/sf/c.sf2"},
		{"unknown keys ignored", "volume = 3\nsoundfont=/sf/d.sf2\ntheme=dark", "/sf/d.sf2"},
		{"last match wins", "soundfont=/sf/first.sf2\n/sf/second.sf2\nsoundfont_path=/sf/third.sf2", "/sf/third.sf2"},
		{"value keeps later equals signs", "soundfont=/sf/a=b.sf2", "/sf/a=b.sf2"},
		{"nothing", "# only a comment\nvolume=3\n", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseSoundBankPath(tt.text); got != tt.want {
				t.Errorf("ParseSoundBankPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSoundBankPath(t *testing.T) {
	dir := t.TempDir()
	bank := filepath.Join(dir, "banks", "GM.sf2")
	writeFile(t, bank, "RIFF")

	t.Run("absolute path", func(t *testing.T) {
		cfg := filepath.Join(dir, "abs.txt")
		writeFile(t, cfg, "soundfont = "+bank+"\n")
		got, err := LoadSoundBankPath(cfg)
		if err != nil || got != bank {
			t.Errorf("LoadSoundBankPath() = %q, %v", got, err)
		}
	})

	t.Run("relative to settings file", func(t *testing.T) {
		cfg := filepath.Join(dir, "rel.txt")
		writeFile(t, cfg, "banks/gm.sf2\n")
		got, err := LoadSoundBankPath(cfg)
		if err != nil || got != bank {
			t.Errorf("LoadSoundBankPath() = %q, %v", got, err)
		}
	})

	errorCases := []struct {
		name    string
		content *string
	}{
		{"missing settings file", nil},
		{"no path", strPtr("# nothing here\n")},
		{"bank does not exist", strPtr("soundfont=" + filepath.Join(dir, "missing.sf2"))},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := filepath.Join(t.TempDir(), "settings.txt")
			if tt.content != nil {
				writeFile(t, cfg, *tt.content)
			}
			if _, err := LoadSoundBankPath(cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestLoadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml"))
		if err != nil {
			t.Fatalf("missing config should not fail: %v", err)
		}
		if cfg.Player.Output != nil {
			t.Error("expected empty config")
		}
	})

	t.Run("values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, `
[player]
soundfont = "/sf/gm.sf2"
output = "port"
port = "USB"
tempo-mode = "percent"
stop-timeout = "250ms"
mute-drums = true
`)
		fc, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}

		s := Defaults()
		if err := s.ApplyFile(fc, nil); err != nil {
			t.Fatalf("ApplyFile: %v", err)
		}
		want := Defaults()
		want.SoundFont = "/sf/gm.sf2"
		want.Output = "port"
		want.Port = "USB"
		want.TempoMode = "percent"
		want.StopTimeout = 250 * time.Millisecond
		want.MuteDrums = true
		if s != want {
			t.Errorf("settings = %+v, want %+v", s, want)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("flags win", func(t *testing.T) {
		fc := FileConfig{Player: PlayerConfig{Output: strPtr("null"), LogLevel: strPtr("debug")}}
		s := Defaults()
		s.Output = "synth"
		if err := s.ApplyFile(fc, func(name string) bool { return name == "output" }); err != nil {
			t.Fatal(err)
		}
		if s.Output != "synth" || s.LogLevel != "debug" {
			t.Errorf("settings = %+v", s)
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, "[player\noutput=")
		if _, err := LoadConfig(path); !errors.Is(err, ErrConfig) {
			t.Errorf("expected ErrConfig, got %v", err)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		s := Defaults()
		err := s.ApplyFile(FileConfig{Player: PlayerConfig{StopTimeout: strPtr("soon")}}, nil)
		if !errors.Is(err, ErrConfig) {
			t.Errorf("expected ErrConfig, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	s := Defaults()
	s.Output = "speakers"
	s.TempoMode = "fast"
	s.LogLevel = "loud"
	s.StopTimeout = 0
	err := s.Validate()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	for _, part := range []string{"speakers", "fast", "loud", "stop-timeout"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q does not mention %q", err, part)
		}
	}
}

func TestParseOutput(t *testing.T) {
	for in, want := range map[string]Output{"": OutputSynth, "SYNTH": OutputSynth, "port": OutputPort, " null ": OutputNull} {
		got, err := ParseOutput(in)
		if err != nil || got != want {
			t.Errorf("ParseOutput(%q) = %q, %v", in, got, err)
		}
	}
}

func TestSoundBank(t *testing.T) {
	s := Defaults()
	s.SoundFont = "/explicit.sf2"
	if got, err := s.SoundBank(); err != nil || got != "/explicit.sf2" {
		t.Errorf("SoundBank() = %q, %v", got, err)
	}

	s = Defaults()
	s.SettingsFile = filepath.Join(t.TempDir(), "settings.txt")
	if _, err := s.SoundBank(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	var fc FileConfig
	if _, err := toml.Decode(DefaultConfigTemplate(), &fc); err != nil {
		t.Fatalf("template is not valid TOML: %v", err)
	}
	if fc.Player.Output != nil {
		t.Error("template values should all be commented out")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drumpractice", "config.toml")

	created, err := WriteDefaultConfig(path)
	if err != nil || !created {
		t.Fatalf("WriteDefaultConfig() = %v, %v", created, err)
	}
	writeFile(t, path, "# mine\n")
	created, err = WriteDefaultConfig(path)
	if err != nil || created {
		t.Fatalf("second WriteDefaultConfig() = %v, %v", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# mine\n" {
		t.Error("existing config was overwritten")
	}
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_STATE_HOME", "/state")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "drumpractice", "config.toml") {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
	if got := DefaultLogPath(); got != filepath.Join("/state", "drumpractice", "drumpractice.log") {
		t.Errorf("DefaultLogPath() = %q", got)
	}
}
