package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	stopPollInterval = 100 * time.Millisecond
	stopTimeout      = 10 * time.Second
)

// Spawn re-executes the current binary as a detached background
// process running the daemon loop, with output redirected to logPath.
// It returns the child's PID.
func Spawn(pidFilePath, logPath string) (int, error) {
	pidFile := NewPIDFile(pidFilePath)
	if info, err := pidFile.Read(); err == nil && ProcessAlive(info.PID) {
		return 0, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, info.PID)
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open daemon log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(self, "daemon", "run")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = os.Environ()
	// New session so the child survives the parent's terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to detach daemon process: %w", err)
	}
	return pid, nil
}

// Stop signals the daemon to shut down and waits for it to exit. The
// process gets SIGTERM first and SIGKILL if it outlives the grace
// period.
func Stop(pidFilePath string) error {
	pidFile := NewPIDFile(pidFilePath)
	info, err := pidFile.Read()
	if err != nil {
		return err
	}
	if !ProcessAlive(info.PID) {
		// Stale marker from a crashed daemon.
		return errors.Join(ErrNotRunning, pidFile.Remove())
	}

	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find daemon process %d: %w", info.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon process %d: %w", info.PID, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !ProcessAlive(info.PID) {
			return pidFile.Remove()
		}
		time.Sleep(stopPollInterval)
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil && ProcessAlive(info.PID) {
		return fmt.Errorf("failed to kill daemon process %d: %w", info.PID, err)
	}
	return pidFile.Remove()
}

// StatusInfo describes the daemon process as seen from outside it.
type StatusInfo struct {
	Running     bool
	PID         int
	StartedAt   time.Time
	HeartbeatAt time.Time
}

// Status reports whether the daemon is running, based on the pid file
// and process liveness. A marker for a dead process reports not
// running.
func Status(pidFilePath string) (*StatusInfo, error) {
	info, err := NewPIDFile(pidFilePath).Read()
	if errors.Is(err, ErrNotRunning) {
		return &StatusInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	return &StatusInfo{
		Running:     ProcessAlive(info.PID),
		PID:         info.PID,
		StartedAt:   info.StartedAt,
		HeartbeatAt: info.HeartbeatAt,
	}, nil
}
