package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/zurustar/drumpractice/pkg/settings"
)

// recorder はどのコマンドがどのConfigで呼ばれたかを記録する
type recorder struct {
	command string
	cfg     *Config
}

func (r *recorder) record(name string) func(*cobra.Command, *Config) error {
	return func(_ *cobra.Command, cfg *Config) error {
		r.command = name
		r.cfg = cfg
		return nil
	}
}

func (r *recorder) RunInteractive(cmd *cobra.Command, cfg *Config) error {
	return r.record("interactive")(cmd, cfg)
}
func (r *recorder) Play(cmd *cobra.Command, cfg *Config) error  { return r.record("play")(cmd, cfg) }
func (r *recorder) BPM(cmd *cobra.Command, cfg *Config) error   { return r.record("bpm")(cmd, cfg) }
func (r *recorder) Info(cmd *cobra.Command, cfg *Config) error  { return r.record("info")(cmd, cfg) }
func (r *recorder) Ports(cmd *cobra.Command, cfg *Config) error { return r.record("ports")(cmd, cfg) }
func (r *recorder) WriteConfig(cmd *cobra.Command, cfg *Config) error {
	return r.record("config")(cmd, cfg)
}

// run 一時的な設定ファイルパスを付けてコマンドを実行する
func run(t *testing.T, configBody string, args ...string) (*recorder, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if configBody != "" {
		if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := &recorder{}
	cmd := NewRootCmd(r)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return r, cmd.Execute()
}

func TestParse_ValidArgs(t *testing.T) {
	defaults := settings.Defaults()

	tests := []struct {
		name    string
		args    []string
		command string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "デフォルト設定",
			args:    nil,
			command: "interactive",
			check: func(t *testing.T, cfg *Config) {
				want := defaults
				if cfg.Settings != want {
					t.Errorf("settings = %+v, want %+v", cfg.Settings, want)
				}
				if cfg.File() != "" {
					t.Errorf("file = %q", cfg.File())
				}
			},
		},
		{
			name:    "ファイル指定で対話モード",
			args:    []string{"song.mid", "--mute-drums"},
			command: "interactive",
			check: func(t *testing.T, cfg *Config) {
				if cfg.File() != "song.mid" || !cfg.Settings.MuteDrums {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "play（テンポとモード）",
			args:    []string{"play", "song.mid", "--tempo", "75", "--mode", "percent", "--mute-others"},
			command: "play",
			check: func(t *testing.T, cfg *Config) {
				if cfg.File() != "song.mid" || cfg.Tempo != "75" || cfg.Settings.TempoMode != "percent" || !cfg.Settings.MuteOthers {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "play（短縮形）",
			args:    []string{"play", "-t", "90", "-l", "debug", "song.mid"},
			command: "play",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Tempo != "90" || cfg.Settings.LogLevel != "debug" {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "dry-run はnull出力",
			args:    []string{"play", "song.mid", "--dry-run"},
			command: "play",
			check: func(t *testing.T, cfg *Config) {
				if !cfg.DryRun || cfg.Settings.Output != string(settings.OutputNull) {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "bpm 複数ファイル",
			args:    []string{"bpm", "a.mid", "b.mid"},
			command: "bpm",
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Files) != 2 {
					t.Errorf("files = %v", cfg.Files)
				}
			},
		},
		{
			name:    "出力ポートとstop-timeout",
			args:    []string{"play", "song.mid", "--output", "port", "--port", "USB", "--stop-timeout", "250ms"},
			command: "play",
			check: func(t *testing.T, cfg *Config) {
				s := cfg.Settings
				if s.Output != "port" || s.Port != "USB" || s.StopTimeout != 250*time.Millisecond {
					t.Errorf("settings = %+v", s)
				}
			},
		},
		{name: "info", args: []string{"info", "song.mid"}, command: "info"},
		{name: "ports", args: []string{"ports"}, command: "ports"},
		{name: "config", args: []string{"config"}, command: "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := run(t, "", tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.command != tt.command {
				t.Fatalf("command = %q, want %q", r.command, tt.command)
			}
			if tt.check != nil {
				tt.check(t, r.cfg)
			}
		})
	}
}

func TestParse_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"無効なログレベル", []string{"--log-level", "verbose"}},
		{"無効な出力", []string{"--output", "speakers"}},
		{"無効なモード", []string{"play", "song.mid", "--mode", "fast"}},
		{"stop-timeoutがゼロ", []string{"--stop-timeout", "0s"}},
		{"playにファイルがない", []string{"play"}},
		{"infoに複数ファイル", []string{"info", "a.mid", "b.mid"}},
		{"未知のフラグ", []string{"--volume", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := run(t, "", tt.args...)
			if err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
			if r.command != "" {
				t.Errorf("handler %q should not run", r.command)
			}
		})
	}
}

func TestParse_ConfigFile(t *testing.T) {
	const body = `
[player]
output = "null"
tempo-mode = "percent"
log-level = "warn"
mute-drums = true
`

	t.Run("設定ファイルの値を使う", func(t *testing.T) {
		r, err := run(t, body, "play", "song.mid")
		if err != nil {
			t.Fatal(err)
		}
		s := r.cfg.Settings
		if s.Output != "null" || s.TempoMode != "percent" || s.LogLevel != "warn" || !s.MuteDrums {
			t.Errorf("settings = %+v", s)
		}
	})

	t.Run("フラグが設定ファイルより優先", func(t *testing.T) {
		r, err := run(t, body, "play", "song.mid", "--mode", "bpm", "--log-level", "error")
		if err != nil {
			t.Fatal(err)
		}
		if r.cfg.Settings.TempoMode != "bpm" || r.cfg.Settings.LogLevel != "error" {
			t.Errorf("settings = %+v", r.cfg.Settings)
		}
	})

	t.Run("壊れた設定ファイル", func(t *testing.T) {
		_, err := run(t, "[player\n", "ports")
		if !errors.Is(err, settings.ErrConfig) {
			t.Errorf("expected ErrConfig, got %v", err)
		}
	})
}

func TestParse_EnvironmentVariables(t *testing.T) {
	t.Run("LOG_LEVEL環境変数", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		t.Setenv("LOG_LEVEL", "DEBUG")

		r := &recorder{}
		cmd := NewRootCmd(r)
		cmd.SetArgs([]string{"--config", configPath, "ports"})
		if err := cmd.Execute(); err != nil {
			t.Fatal(err)
		}
		if r.cfg.Settings.LogLevel != "debug" {
			t.Errorf("log level = %q", r.cfg.Settings.LogLevel)
		}
	})

	t.Run("フラグが環境変数より優先", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		t.Setenv("LOG_LEVEL", "debug")

		r := &recorder{}
		cmd := NewRootCmd(r)
		cmd.SetArgs([]string{"--config", configPath, "--log-level", "warn", "ports"})
		if err := cmd.Execute(); err != nil {
			t.Fatal(err)
		}
		if r.cfg.Settings.LogLevel != "warn" {
			t.Errorf("log level = %q", r.cfg.Settings.LogLevel)
		}
	})
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd(&recorder{})
	cmd.SetArgs([]string{"--help"})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Drum Practice MIDI Player", "play", "bpm", "--soundfont", "--log-level"} {
		if !bytes.Contains(out.Bytes(), []byte(want)) {
			t.Errorf("help missing %q", want)
		}
	}
}
