// Package lockfile guards a patient's conversation record against
// concurrent sessions. Records are overwritten in full at session end, so
// two interactive sessions for the same patient would silently discard each
// other's history. The lock uses flock, which the kernel releases when the
// process exits, so a crash never leaves the patient locked out.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock is an acquired session lock for one patient.
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// AcquireSessionLock takes an exclusive lock for the patient in the state
// directory. It fails with a SessionLockError when another process already
// holds a session for the same patient.
func AcquireSessionLock(stateDir, patientID string) (*Lock, error) {
	// Patient IDs are storage keys, not filenames. Flatten separators so the
	// lock always lands directly in the state directory.
	name := strings.ReplaceAll(patientID, string(os.PathSeparator), "_")
	lockPath := filepath.Join(stateDir, name+".lock")

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session lock %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.AcquireSessionLock: patient session already active",
			"patientID", patientID, "lock_path", lockPath, "holder", holder)
		return nil, &SessionLockError{
			PatientID:  patientID,
			LockPath:   lockPath,
			HolderInfo: holder,
			Cause:      err,
		}
	}

	if _, err := fmt.Fprintf(file, "pid=%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write session lock %s: %w", lockPath, err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.AcquireSessionLock: failed to sync lock file", "error", err, "lock_path", lockPath)
	}

	slog.Debug("lockfile.AcquireSessionLock: session lock acquired", "patientID", patientID, "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if !l.acquired || l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Release: failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("lockfile.Release: failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		slog.Debug("lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}

	l.acquired = false
	l.file = nil
	return nil
}

// SessionLockError reports a session conflict for a patient.
type SessionLockError struct {
	PatientID  string
	LockPath   string
	HolderInfo string
	Cause      error
}

func (e *SessionLockError) Error() string {
	msg := fmt.Sprintf("a session for patient %q is already active (lock file: %s)", e.PatientID, e.LockPath)
	if e.HolderInfo != "" {
		msg += fmt.Sprintf("\nheld by: %s", e.HolderInfo)
	}
	msg += fmt.Sprintf("\nif no other session is running, remove the stale lock with: rm %s", e.LockPath)
	return msg
}

func (e *SessionLockError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the existing lock file so the conflict error can say
// which process holds it and whether that process is still alive.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}

	pid := parsePID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if isProcessRunning(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running, stale lock)", pid)
}

func parsePID(content string) int {
	const prefix = "pid="
	idx := strings.Index(content, prefix)
	if idx == -1 {
		return 0
	}
	rest := content[idx+len(prefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return pid
}

// isProcessRunning probes the PID with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
