// Package daemonize detaches the relay from its controlling terminal and
// wires it into systemd's readiness/watchdog protocol when present.
package daemonize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// reexecEnv marks a process as the detached child, so Detach does not
// re-exec a second time after it has already forked once.
const reexecEnv = "GORELAY_DETACHED"

// Detach re-execs the current process detached from its controlling
// terminal: stdio is redirected to /dev/null, the child gets its own
// session via Setsid, and the child's PID is written to pidFile. The
// parent process returns (true, nil) and the caller should exit 0
// immediately; the child returns (false, nil) and continues as the
// daemon proper.
//
// Calling Detach from an already-detached process (reexecEnv set) is a
// no-op that returns (false, nil).
func Detach(pidFile string) (isParent bool, err error) {
	if os.Getenv(reexecEnv) != "" {
		return false, nil
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	proc, err := os.StartProcess(os.Args[0], os.Args, &os.ProcAttr{
		Env:   append(os.Environ(), reexecEnv+"=1"),
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return false, fmt.Errorf("start detached process: %w", err)
	}

	if pidFile == "" {
		pidFile = defaultPIDFile()
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(proc.Pid)+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("write pid file %s: %w", pidFile, err)
	}

	return true, nil
}

func defaultPIDFile() string {
	return os.TempDir() + "/udprelayd.pid"
}

// NotifyReady sends READY=1 to systemd, indicating the relay has bound its
// socket and is ready to accept pairing requests. A no-op outside systemd.
func NotifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// NotifyStopping sends STOPPING=1 to systemd. A no-op outside systemd.
func NotifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// RunWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval, until ctx is cancelled. If no watchdog is
// configured, it returns immediately.
func RunWatchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}
