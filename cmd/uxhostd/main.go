package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	flag "github.com/spf13/pflag"

	"github.com/modoterra/uxhost/internal/buildinfo"
	"github.com/modoterra/uxhost/internal/logging"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/config"
	"github.com/modoterra/uxhost/pkg/host"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("uxhostd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "uxhostd:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("uxhostd", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "path to uxhost.yaml")
	socketPath := fs.String("socket", "", "override the configured socket path")
	codecName := fs.String("codec", "", "override the configured wire codec (json|cbor)")
	withModule := fs.Bool("with-module", false, "launch the configured module alongside the host")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *socketPath != "" {
		cfg.Socket = *socketPath
	}
	if *codecName != "" {
		cfg.Codec = *codecName
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "path", cfg.FilePath, "err", e)
		}
		return errors.New("invalid config")
	}
	if cfg.FilePath != "" {
		logger.Info("config loaded", "path", cfg.FilePath)
	} else {
		logger.Info("no config file, using defaults", "path", *configPath)
	}

	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := host.New(cfg.Socket, c, logger)
	if err := h.Listen(); err != nil {
		return err
	}
	defer h.Shutdown()

	// The socket accepts connections from here on.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify failed", "err", err)
	} else if sent {
		logger.Debug("notified systemd of readiness")
	}

	if *withModule {
		m := host.NewModule(cfg.Module.Command, cfg.Module.Dir, cfg.ModuleEnv(), logger)
		if !m.Configured() {
			logger.Warn("--with-module given but module.command is empty")
		} else if _, err := m.Start(); err != nil {
			logger.Error("module start failed", "err", err)
		} else {
			defer m.Stop(5 * time.Second)
		}
	}

	logger.Info("starting uxhostd", "version", buildinfo.Version, "socket", cfg.Socket, "codec", c.Name())
	err = h.Serve(ctx)

	logger.Info("shutting down", "stats", h.Listener().Stats())
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}
