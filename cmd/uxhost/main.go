package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/modoterra/uxhost/internal/buildinfo"
	"github.com/modoterra/uxhost/internal/logging"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/config"
	"github.com/modoterra/uxhost/pkg/host"
	"github.com/modoterra/uxhost/pkg/host/service"
	"github.com/modoterra/uxhost/pkg/presenter"
	"github.com/modoterra/uxhost/pkg/transport/uds"
	tuimodel "github.com/modoterra/uxhost/pkg/tui/model"
)

var (
	socketPath string
	configPath string
	codecName  string
	noColor    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uxhost",
	Short: "Host for the embedded onboarding module and its event log",
	Long: "uxhost receives the events an embedded onboarding module reports on the\n" +
		"universal_experience_sdk/events channel and shows them as a newest-first log.",
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

func init() {
	rootCmd.RunE = runTUI
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocket, "host socket path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to uxhost.yaml")
	rootCmd.PersistentFlags().StringVar(&codecName, "codec", codec.NameJSON, "wire codec (json|cbor)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colors")

	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := rootCmd.PersistentFlags()
	if flags.Changed("socket") {
		cfg.Socket = socketPath
	}
	if flags.Changed("codec") {
		cfg.Codec = codecName
	}
	return cfg, nil
}

func presenterOptions(cfg *config.Config) presenter.Options {
	return presenter.Options{
		TimeFormat: cfg.Display.TimeFormat,
		Location:   cfg.TimeLocation(),
		Palette:    presenter.DefaultPalette().With(cfg.Display.Colors),
	}
}

func dialHost(cfg *config.Config) (*uds.Client, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	client, err := uds.Dial(cfg.Socket, c)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to host at %s: %w", cfg.Socket, err)
	}
	return client, nil
}

func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// --- Root: in-process host + TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errs[0])
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	// The terminal belongs to the TUI; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)

	h := host.New(cfg.Socket, c, logger)
	if err := h.Listen(); err != nil {
		return err
	}
	defer h.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := h.Serve(ctx); err != nil {
			logger.Error("host error", "err", err)
		}
	}()

	module := host.NewModule(cfg.Module.Command, cfg.Module.Dir, cfg.ModuleEnv(), logger)
	defer module.Stop(3 * time.Second)

	logger.Info("starting uxhost", "version", buildinfo.Version, "socket", cfg.Socket, "codec", c.Name())
	app := tuimodel.New(tuimodel.LocalBackend{Store: h.Store()}, presenterOptions(cfg), module, cfg.Socket)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithReportFocus())
	_, err = p.Run()
	return err
}

// --- Attach ---

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Open the log viewer against a running host",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		app := tuimodel.New(tuimodel.RemoteBackend{Client: client}, presenterOptions(cfg), nil, cfg.Socket)
		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithReportFocus())
		_, err = p.Run()
		return err
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run uxhostd in the foreground",
	Long:  "Runs the headless host. Use `uxhost service install` to run it under systemd.",
	RunE: func(_ *cobra.Command, _ []string) error {
		args := []string{"--config", configPath}
		flags := rootCmd.PersistentFlags()
		if flags.Changed("socket") {
			args = append(args, "--socket", socketPath)
		}
		if flags.Changed("codec") {
			args = append(args, "--codec", codecName)
		}
		if daemonWithModule {
			args = append(args, "--with-module")
		}
		cmd := exec.Command("uxhostd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

var daemonWithModule bool

func init() {
	daemonCmd.Flags().BoolVar(&daemonWithModule, "with-module", false, "also launch the configured module")
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if a host is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := requestCtx()
		defer cancel()

		var pong uds.PingResponse
		if err := client.Call(ctx, uds.ControlChannel, uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (uxhost %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := requestCtx()
		defer cancel()

		var st host.StatsResponse
		if err := client.Call(ctx, uds.ControlChannel, uds.MethodStats, nil, &st); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStats(out, st, time.Now())
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printStats(w io.Writer, st host.StatsResponse, now time.Time) {
	newest := "never"
	if st.NewestMs != 0 {
		newest = humanize.Time(time.UnixMilli(st.NewestMs))
	}
	started := now.Add(-time.Duration(st.UptimeSec) * time.Second)
	uptime := strings.TrimSpace(humanize.RelTime(started, now, "", ""))

	fmt.Fprintf(w, "%-16s %s\n", "entries:", humanize.Comma(int64(st.Entries)))
	fmt.Fprintf(w, "%-16s %s\n", "accepted:", humanize.Comma(int64(st.Accepted)))
	fmt.Fprintf(w, "%-16s %s\n", "dropped:", humanize.Comma(int64(st.Dropped)))
	fmt.Fprintf(w, "%-16s %s\n", "not implemented:", humanize.Comma(int64(st.NotImplemented)))
	fmt.Fprintf(w, "%-16s %s\n", "newest event:", newest)
	fmt.Fprintf(w, "%-16s %s\n", "uptime:", uptime)
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage uxhost.yaml",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
			return nil
		}

		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s: %d error(s)", path, len(errs))
	},
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists", configInitOutput)
		}
		if err := config.Save(config.Default(), configInitOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", configInitOutput)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", config.DefaultPath, "output file path")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the uxhostd systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var path string
		if _, err := os.Stat(configPath); err == nil {
			path = configPath
		}
		if err := service.Install(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "uxhostd service installed ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), "uxhostd service is not installed")
				return nil
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "uxhostd service removed")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and service state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := codec.ByName(cfg.Codec)
		if err != nil {
			return err
		}

		ctx, cancel := requestCtx()
		defer cancel()
		fmt.Fprintln(cmd.OutOrStdout(), service.Inspect(ctx, cfg.Socket, c))
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "uxhost %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
