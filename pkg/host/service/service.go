// Package service manages the uxhostd systemd user service unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/host"
	"github.com/modoterra/uxhost/pkg/transport/uds"
)

const unitName = "uxhostd.service"

// ErrNotInstalled is returned by Uninstall when no unit file exists.
var ErrNotInstalled = errors.New("uxhostd service not installed")

// UnitContents returns the systemd unit file contents for the given
// binary path and config file. uxhostd reports readiness via sd_notify
// once the event channel socket is bound.
func UnitContents(binaryPath, configPath string) string {
	execStart := binaryPath
	if configPath != "" {
		execStart += " --config " + configPath
	}
	return fmt.Sprintf(`[Unit]
Description=uxhost daemon - event log for the embedded onboarding module
Documentation=https://github.com/modoterra/uxhost

[Service]
Type=notify
NotifyAccess=main
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`, execStart)
}

// UnitPath returns the path to the systemd user unit file.
func UnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// Install writes the unit file, reloads systemd, and enables+starts the service.
func Install(configPath string) error {
	binaryPath, err := exec.LookPath("uxhostd")
	if err != nil {
		return fmt.Errorf("uxhostd not found in PATH: %w", err)
	}
	binaryPath, err = filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("cannot resolve uxhostd path: %w", err)
	}
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return fmt.Errorf("cannot resolve config path: %w", err)
		}
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	contents := UnitContents(binaryPath, configPath)
	if err := os.WriteFile(unitPath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

// Uninstall disables and stops the service and removes its unit file.
// It returns ErrNotInstalled when there is no unit file.
func Uninstall() error {
	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(unitPath); errors.Is(err, os.ErrNotExist) {
		return ErrNotInstalled
	}

	// A unit that is already stopped or disabled is not an error here.
	if err := systemctl("disable", "--now", unitName); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove %s: %w", unitPath, err)
	}
	return systemctl("daemon-reload")
}

// Report describes the systemd unit and the host behind the socket.
type Report struct {
	SocketPath string
	Unit       string // is-active output, "not installed" or "unknown"
	Stats      *host.StatsResponse
	Err        error // why Stats is missing
}

// Inspect reads the unit state and, when the host answers on socketPath,
// its bridge counters.
func Inspect(ctx context.Context, socketPath string, c codec.Codec) Report {
	r := Report{SocketPath: socketPath, Unit: unitState()}

	client, err := uds.Dial(socketPath, c)
	if err != nil {
		r.Err = err
		return r
	}
	defer client.Close()

	var st host.StatsResponse
	if err := client.Call(ctx, uds.ControlChannel, uds.MethodStats, nil, &st); err != nil {
		r.Err = err
		return r
	}
	r.Stats = &st
	return r
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "systemd user service: %s\n", r.Unit)
	if r.Stats == nil {
		fmt.Fprintf(&b, "host: not reachable at %s", r.SocketPath)
		if r.Err != nil {
			fmt.Fprintf(&b, " (%v)", r.Err)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "host: serving %s\n", r.SocketPath)
	fmt.Fprintf(&b, "events: %d stored, %d accepted, %d dropped, %d not implemented",
		r.Stats.Entries, r.Stats.Accepted, r.Stats.Dropped, r.Stats.NotImplemented)
	return b.String()
}

func unitState() string {
	unitPath, err := UnitPath()
	if err != nil {
		return "unknown"
	}
	if _, err := os.Stat(unitPath); err != nil {
		return "not installed"
	}
	out, _ := exec.Command("systemctl", "--user", "is-active", unitName).Output()
	if state := strings.TrimSpace(string(out)); state != "" {
		return state
	}
	return "unknown"
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
