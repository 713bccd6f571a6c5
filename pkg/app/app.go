package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zurustar/drumpractice/pkg/audio"
	"github.com/zurustar/drumpractice/pkg/cli"
	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/playback"
	"github.com/zurustar/drumpractice/pkg/player"
	"github.com/zurustar/drumpractice/pkg/settings"
	"github.com/zurustar/drumpractice/pkg/tempo"
	"github.com/zurustar/drumpractice/pkg/tui"
)

// ErrNotTerminal 対話モードを端末以外で起動しようとした
var ErrNotTerminal = errors.New("interactive mode needs a terminal (use \"drumpractice play FILE\")")

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	log        *slog.Logger
	logFile    io.Closer
	searchDirs func() []searchDir
	isTerminal func() bool
	ports      func() []string
}

// New Applicationを作成
func New() *Application {
	return &Application{
		log:        logger.GetLogger(),
		searchDirs: defaultSearchDirs,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
		ports: audio.ListOutPorts,
	}
}

// Command アプリケーションのコマンドツリーを返す
func (app *Application) Command() *cobra.Command {
	return cli.NewRootCmd(app)
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	cmd := app.Command()
	cmd.SetArgs(args)
	defer app.closeLog()
	return cmd.Execute()
}

// initLogger ロガーを初期化（対話モードでは画面を崩さないようファイルへ出力）
func (app *Application) initLogger(cmd *cobra.Command, s settings.Settings, interactive bool) error {
	var w io.Writer = cmd.ErrOrStderr()

	path := s.LogFile
	if path == "" && interactive {
		path = settings.DefaultLogPath()
	}
	if path != "" {
		f, err := logger.OpenLogFile(path)
		if err != nil {
			return err
		}
		app.closeLog()
		app.logFile = f
		w = f
	}

	if err := logger.InitLogger(s.LogLevel, w); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

func (app *Application) closeLog() {
	if app.logFile != nil {
		app.logFile.Close()
		app.logFile = nil
	}
}

// newPlayer 設定に従ってシンクとPlayerを作成する
func (app *Application) newPlayer(s settings.Settings, opts ...player.Option) (*player.Player, playback.Sink, error) {
	app.locateSettingsFile(&s)

	opts = append([]player.Option{player.WithLogger(app.log), player.WithStopTimeout(s.StopTimeout)}, opts...)
	sink, err := player.NewSink(s, opts...)
	if err != nil {
		return nil, nil, err
	}
	p := player.New(sink, opts...)
	p.SetMuteDrums(s.MuteDrums)
	p.SetMuteOthers(s.MuteOthers)
	return p, sink, nil
}

// analyzer 音を出さない解析用のPlayer
func (app *Application) analyzer() *player.Player {
	return player.New(&audio.NullSink{}, player.WithLogger(app.log))
}

// RunInteractive 対話型プレイヤーを起動する
func (app *Application) RunInteractive(cmd *cobra.Command, cfg *cli.Config) error {
	if !app.isTerminal() {
		return ErrNotTerminal
	}
	if err := app.initLogger(cmd, cfg.Settings, true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log.Info("Application started", "mode", "interactive")

	s := cfg.Settings
	app.locateSettingsFile(&s)

	ended := make(chan playback.State, 1)
	p, err := player.NewFromSettings(s, player.WithLogger(app.log), player.WithOnEnd(func(st playback.State) {
		select {
		case ended <- st:
		default:
		}
	}))
	if err != nil {
		return err
	}
	defer func() {
		if p.State() == playback.StatePlaying {
			p.Stop()
		}
	}()

	mode, _ := tempo.ParseMode(cfg.Settings.TempoMode)
	model := tui.NewModel(p, tui.Options{
		File:       cfg.File(),
		Mode:       mode,
		MuteDrums:  cfg.Settings.MuteDrums,
		MuteOthers: cfg.Settings.MuteOthers,
		Ended:      ended,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(contextOf(cmd)))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	app.log.Info("Application terminated normally")
	return nil
}

// Play 対話画面なしで再生し、終了またはSIGINT/SIGTERMまで待つ
func (app *Application) Play(cmd *cobra.Command, cfg *cli.Config) error {
	if err := app.initLogger(cmd, cfg.Settings, false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	out := cmd.OutOrStdout()

	p, sink, err := app.newPlayer(cfg.Settings)
	if err != nil {
		return err
	}

	info, err := p.Load(cfg.File())
	if err != nil {
		return err
	}

	mode, _ := tempo.ParseMode(cfg.Settings.TempoMode)
	factor, warn := p.ComputeTempoFactor(info.Path, cfg.Tempo, mode)
	if warn != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; playing at original tempo\n", warn)
	}

	fmt.Fprintf(out, "Playing %s (original %.2f BPM, tempo factor %.2f, about %s)\n",
		filepath.Base(info.Path), info.OriginalBPM, factor, formatDuration(tempo.Scaled(info.Duration, factor)))

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Play(info.Path, factor); err != nil {
		return err
	}
	if err := p.Wait(ctx); err != nil {
		p.Stop()
	}

	fmt.Fprintf(out, "Playback %s\n", p.LastOutcome())
	if null, ok := sink.(*audio.NullSink); ok {
		st := null.Stats()
		fmt.Fprintf(out, "Events: %d note on, %d note off, %d program change\n", st.NotesOn, st.NotesOff, st.Programs)
	}
	return nil
}

// BPM 各ファイルの推定BPMを表示する
func (app *Application) BPM(cmd *cobra.Command, cfg *cli.Config) error {
	if err := app.initLogger(cmd, cfg.Settings, false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	p := app.analyzer()

	failed := 0
	for _, file := range cfg.Files {
		info, err := p.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\t%s\n", info.OriginalBPM, file)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(cfg.Files))
	}
	return nil
}

// Info ファイルの概要を表示する
func (app *Application) Info(cmd *cobra.Command, cfg *cli.Config) error {
	if err := app.initLogger(cmd, cfg.Settings, false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	info, err := app.analyzer().Load(cfg.File())
	if err != nil {
		return err
	}

	name := info.Name
	if name == "" {
		name = "(none)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), `File:          %s
Track name:    %s
Tracks:        %d
Resolution:    %d ticks per quarter note
Events:        %d
Tempo changes: %d
Original BPM:  %.2f
Duration:      %s
`, info.Path, name, info.Tracks, info.PPQN, info.Events, info.TempoChanges, info.OriginalBPM, formatDuration(info.Duration))
	return nil
}

// Ports MIDI出力ポートを一覧表示する
func (app *Application) Ports(cmd *cobra.Command, _ *cli.Config) error {
	ports := app.ports()
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No MIDI output ports found")
		return nil
	}
	for i, name := range ports {
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
	}
	return nil
}

// WriteConfig 設定ファイルのひな形を作成してパスを表示する
func (app *Application) WriteConfig(cmd *cobra.Command, cfg *cli.Config) error {
	created, err := settings.WriteDefaultConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}
	status := "exists"
	if created {
		status = "created"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", cfg.ConfigPath, status)
	return nil
}

// contextOf コマンドのコンテキスト（未設定ならBackground）
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// formatDuration 再生時間を m:ss 形式にする
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
