package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zurustar/drumpractice/pkg/settings"
)

// Config はコマンドライン引数と設定ファイルから解決された設定を保持する
type Config struct {
	ConfigPath string            // TOML設定ファイルのパス
	Settings   settings.Settings // フラグ > 設定ファイル > デフォルト の順で解決済み
	Files      []string          // 位置引数のMIDIファイル
	Tempo      string            // テンポ入力（playのみ）
	DryRun     bool              // 音を出さずにタイミングだけ再生する
}

// File 最初のMIDIファイル（なければ空文字列）
func (c *Config) File() string {
	if len(c.Files) == 0 {
		return ""
	}
	return c.Files[0]
}

// Handler コマンドの実処理（pkg/appが実装する）
type Handler interface {
	RunInteractive(cmd *cobra.Command, cfg *Config) error
	Play(cmd *cobra.Command, cfg *Config) error
	BPM(cmd *cobra.Command, cfg *Config) error
	Info(cmd *cobra.Command, cfg *Config) error
	Ports(cmd *cobra.Command, cfg *Config) error
	WriteConfig(cmd *cobra.Command, cfg *Config) error
}

// flagValues はcobraのフラグに束縛される生の値
type flagValues struct {
	configPath  string
	settings    string
	soundFont   string
	output      string
	port        string
	stopTimeout time.Duration
	logLevel    string
	logFile     string

	tempo      string
	mode       string
	muteDrums  bool
	muteOthers bool
	dryRun     bool
}

// NewRootCmd コマンドツリーを作成する
func NewRootCmd(h Handler) *cobra.Command {
	v := &flagValues{}

	root := &cobra.Command{
		Use:   "drumpractice [file.mid]",
		Short: "Drum practice MIDI player",
		Long: `drumpractice - Drum Practice MIDI Player

Plays a MIDI file at an adjustable tempo and lets you mute the drums or the
accompaniment. Without a subcommand it opens the interactive player.`,
		Example: `  drumpractice song.mid
  drumpractice play song.mid --tempo 90 --mute-drums
  drumpractice play song.mid --tempo 75 --mode percent
  drumpractice bpm *.mid
  LOG_LEVEL=debug drumpractice play song.mid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd, v, args)
			if err != nil {
				return err
			}
			return h.RunInteractive(cmd, cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&v.configPath, "config", settings.DefaultConfigPath(), "TOML config file")
	pf.StringVar(&v.settings, "settings", settings.DefaultSettingsFile, "file naming the SoundFont (soundfont = path)")
	pf.StringVar(&v.soundFont, "soundfont", "", "SoundFont file (overrides --settings)")
	pf.StringVar(&v.output, "output", string(settings.DefaultOutput), "output: synth, port or null")
	pf.StringVar(&v.port, "port", "", "MIDI output port name or part of it (--output port)")
	pf.DurationVar(&v.stopTimeout, "stop-timeout", settings.DefaultStopTimeout, "how long stop waits for the player")
	pf.StringVarP(&v.logLevel, "log-level", "l", settings.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&v.logFile, "log-file", "", "log file (interactive mode logs to "+settings.DefaultLogPath()+")")

	// 対話モードでも初期値として使う
	addPlayFlags(root, v)

	root.AddCommand(newPlayCmd(h, v))
	root.AddCommand(newSimpleCmd(h.BPM, v, &cobra.Command{
		Use:   "bpm FILE...",
		Short: "Print the estimated original BPM of MIDI files",
		Args:  cobra.MinimumNArgs(1),
	}))
	root.AddCommand(newSimpleCmd(h.Info, v, &cobra.Command{
		Use:   "info FILE",
		Short: "Show a summary of a MIDI file",
		Args:  cobra.ExactArgs(1),
	}))
	root.AddCommand(newSimpleCmd(h.Ports, v, &cobra.Command{
		Use:   "ports",
		Short: "List MIDI output ports",
		Args:  cobra.NoArgs,
	}))
	root.AddCommand(newSimpleCmd(h.WriteConfig, v, &cobra.Command{
		Use:   "config",
		Short: "Create the config file if missing and print its path",
		Args:  cobra.NoArgs,
	}))

	return root
}

func addPlayFlags(cmd *cobra.Command, v *flagValues) {
	f := cmd.Flags()
	f.StringVarP(&v.tempo, "tempo", "t", "", "target tempo (BPM, or percent with --mode percent); empty plays at the original tempo")
	f.StringVarP(&v.mode, "mode", "m", settings.DefaultTempoMode, "tempo mode: bpm or percent")
	f.BoolVar(&v.muteDrums, "mute-drums", false, "mute the drum channel")
	f.BoolVar(&v.muteOthers, "mute-others", false, "mute every channel except drums")
}

func newPlayCmd(h Handler, v *flagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Play a MIDI file without the interactive player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd, v, args)
			if err != nil {
				return err
			}
			return h.Play(cmd, cfg)
		},
	}
	addPlayFlags(cmd, v)
	cmd.Flags().BoolVar(&v.dryRun, "dry-run", false, "run the timing without producing sound (same as --output null)")
	return cmd
}

func newSimpleCmd(run func(*cobra.Command, *Config) error, v *flagValues, cmd *cobra.Command) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolve(cmd, v, args)
		if err != nil {
			return err
		}
		return run(cmd, cfg)
	}
	return cmd
}

// resolve フラグ・環境変数・設定ファイルを統合してConfigを作る
// 優先順位: コマンドラインフラグ > 環境変数 > 設定ファイル > デフォルト
func resolve(cmd *cobra.Command, v *flagValues, args []string) (*Config, error) {
	s := settings.Settings{
		SoundFont:    v.soundFont,
		SettingsFile: v.settings,
		Output:       v.output,
		Port:         v.port,
		TempoMode:    v.mode,
		StopTimeout:  v.stopTimeout,
		LogLevel:     v.logLevel,
		LogFile:      v.logFile,
		MuteDrums:    v.muteDrums,
		MuteOthers:   v.muteOthers,
	}

	fileCfg, err := settings.LoadConfig(v.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := s.ApplyFile(fileCfg, cmd.Flags().Changed); err != nil {
		return nil, err
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if !cmd.Flags().Changed("log-level") {
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			s.LogLevel = strings.ToLower(env)
		}
	}

	if v.dryRun {
		s.Output = string(settings.OutputNull)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		ConfigPath: v.configPath,
		Settings:   s,
		Files:      args,
		Tempo:      v.tempo,
		DryRun:     v.dryRun,
	}, nil
}
