package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/PixPMusic/cubase-control/internal/app"
	"github.com/PixPMusic/cubase-control/internal/config"
	"github.com/PixPMusic/cubase-control/internal/logging"
	"github.com/PixPMusic/cubase-control/internal/metrics"
	"github.com/PixPMusic/cubase-control/internal/midi"
	"github.com/PixPMusic/cubase-control/internal/monitor"
	"github.com/PixPMusic/cubase-control/internal/tray"
	"github.com/PixPMusic/cubase-control/internal/window"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cubase-control",
	Short: "Control Cubase mixer tracks over MIDI",
	Long: `CubaseControl drives Cubase mixer channels through a virtual MIDI port pair.

Volume and mute edits are sent as Control Change messages and feedback from
Cubase keeps the mixer in step. Presets are plain JSON files.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGUI,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input and output ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent presets, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

var pushCmd = &cobra.Command{
	Use:   "push <preset-file>",
	Short: "Send a preset to Cubase once and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the mixer in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	config.Flags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(portsCmd, recentCmd, pushCmd, monitorCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command starts from
type env struct {
	cfg      *config.Config
	logger   *log.Logger
	reporter *metrics.Reporter
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, os.Stderr)
	logger.Debug("config loaded", "path", cfg.Path())

	reporter, err := metrics.NewReporter(cfg.Sentry.DSN, cfg.Sentry.Environment, Version, logger)
	if err != nil {
		logger.Warn("error reporting disabled", "err", err)
	}
	return &env{cfg: cfg, logger: logger, reporter: reporter}, nil
}

func (e *env) bridge(transport midi.Transport) *app.Bridge {
	return app.New(e.cfg, app.Deps{
		Transport: transport,
		Reporter:  e.reporter,
		Logger:    e.logger,
	})
}

func runGUI(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	midiManager := midi.NewManager()
	defer midiManager.Close()

	bridge := e.bridge(midiManager)
	defer bridge.Close()

	fyneApp := fyneapp.NewWithID("com.pixpmusic.cubasecontrol")

	p, startErr := bridge.Start()
	if p == nil {
		return startErr
	}

	mainWindow := window.NewMainWindow(fyneApp, bridge, logging.For(e.logger, "ui"), fyneApp.Quit)
	trayMenu := tray.Setup(fyneApp, bridge, logging.For(e.logger, "tray"), tray.Callbacks{
		OnOpen:          mainWindow.Show,
		OnQuit:          fyneApp.Quit,
		OnPresetChanged: mainWindow.PresetChanged,
	})
	mainWindow.OnPresetChanged(trayMenu.Refresh)

	mainWindow.Show()
	if startErr != nil {
		e.logger.Warn("started with problems", "err", startErr)
		mainWindow.ShowNotice(startErr)
	}

	// blocks until Quit
	fyneApp.Run()
	return nil
}

func runPorts(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	midiManager := midi.NewManager()
	defer midiManager.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Outputs:")
	for _, name := range midiManager.OutPorts() {
		fmt.Fprintf(out, "  %s%s\n", name, marker(name, e.cfg.Ports.Output))
	}
	fmt.Fprintln(out, "Inputs:")
	for _, name := range midiManager.InPorts() {
		fmt.Fprintf(out, "  %s%s\n", name, marker(name, e.cfg.Ports.Input))
	}
	return nil
}

func marker(name, pattern string) string {
	if pattern != "" && strings.Contains(name, pattern) {
		return "  (matches " + pattern + ")"
	}
	return ""
}

func runRecent(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	recents, err := e.bridge(nil).Recent()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recents) == 0 {
		fmt.Fprintln(out, "no recent presets")
		return nil
	}
	for i := len(recents) - 1; i >= 0; i-- {
		r := recents[i]
		fmt.Fprintf(out, "%-24s %3d tracks  %s\n", r.Name, len(r.Preset.Tracks), r.Path)
	}
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	midiManager := midi.NewManager()
	defer midiManager.Close()

	bridge := e.bridge(midiManager)
	defer bridge.Close()

	if err := bridge.Connect(); err != nil && !errors.Is(err, midi.ErrPortNotFound) {
		return err
	}
	p, err := bridge.LoadPreset(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%d tracks)\n", p.Name, len(p.Tracks))
	return nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	// log lines would tear the terminal view
	e.logger.SetOutput(cmd.ErrOrStderr())
	e.logger.SetLevel(log.ErrorLevel)

	midiManager := midi.NewManager()
	defer midiManager.Close()

	bridge := e.bridge(midiManager)
	defer bridge.Close()

	if p, err := bridge.Start(); p == nil {
		return err
	}
	return monitor.Run(bridge, tea.WithAltScreen())
}

func runConfig(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	data, err := e.cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", e.cfg.Path(), data)
	return nil
}
