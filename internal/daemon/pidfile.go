package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned when start finds a live daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when stop or status finds no live
	// daemon.
	ErrNotRunning = errors.New("daemon is not running")
)

// PIDInfo is the process marker recorded for a running daemon.
type PIDInfo struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// PIDFile is the daemon's singleton marker. Liveness is verified
// against the recorded process, not mere file existence, so a marker
// left behind by a crashed daemon is detected and cleared.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile handle for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the marker location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire records the calling process as the running daemon. It fails
// with ErrAlreadyRunning when a live daemon holds the marker; a stale
// marker is cleared and taken over.
func (p *PIDFile) Acquire() error {
	info, err := p.Read()
	switch {
	case err == nil:
		if ProcessAlive(info.PID) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, info.PID)
		}
		// Stale marker from a crashed daemon.
		if err := p.Remove(); err != nil {
			return err
		}
	case errors.Is(err, ErrNotRunning):
		// No marker, nothing to take over.
	default:
		return err
	}

	now := time.Now().UTC()
	return p.write(PIDInfo{PID: os.Getpid(), StartedAt: now, HeartbeatAt: now})
}

// Read returns the recorded marker, or ErrNotRunning when none exists.
func (p *PIDFile) Read() (*PIDInfo, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, ErrNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("read pid file %s: %w", p.path, err)
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// An unreadable marker is treated as stale.
		return nil, ErrNotRunning
	}
	return &info, nil
}

// Touch refreshes the liveness heartbeat.
func (p *PIDFile) Touch() error {
	info, err := p.Read()
	if err != nil {
		return err
	}
	info.HeartbeatAt = time.Now().UTC()
	return p.write(*info)
}

// Remove deletes the marker. Removing an absent marker is not an
// error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", p.path, err)
	}
	return nil
}

func (p *PIDFile) write(info PIDInfo) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid file directory: %w", err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode pid file: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file %s: %w", p.path, err)
	}
	return nil
}

// ProcessAlive reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
