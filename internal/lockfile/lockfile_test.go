package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSessionLockAcquisition(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireSessionLock(stateDir, "patient_1")
	if err != nil {
		t.Fatalf("Failed to acquire session lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(stateDir, "patient_1.lock")
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	expected := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != expected {
		t.Errorf("Lock file content mismatch. Expected %q, got %q", expected, string(content))
	}
}

func TestSessionLockConflict(t *testing.T) {
	stateDir := t.TempDir()

	lock1, err := AcquireSessionLock(stateDir, "patient_1")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	_, err = AcquireSessionLock(stateDir, "patient_1")
	if err == nil {
		t.Fatal("Expected second session for the same patient to fail")
	}

	var lockErr *SessionLockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected SessionLockError, got %T: %v", err, err)
	}
	if lockErr.PatientID != "patient_1" {
		t.Errorf("Expected patient_1 in lock error, got %q", lockErr.PatientID)
	}
	if lockErr.HolderInfo == "" {
		t.Error("Expected holder information in the conflict error")
	}
}

func TestDifferentPatientsDoNotConflict(t *testing.T) {
	stateDir := t.TempDir()

	lock1, err := AcquireSessionLock(stateDir, "patient_1")
	if err != nil {
		t.Fatalf("Failed to acquire lock for patient_1: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireSessionLock(stateDir, "patient_2")
	if err != nil {
		t.Fatalf("Sessions for different patients must not conflict: %v", err)
	}
	defer lock2.Release()
}

func TestReleaseAllowsReacquisition(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireSessionLock(stateDir, "patient_1")
	if err != nil {
		t.Fatalf("Failed to acquire session lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	// Release removes the lock file and is idempotent.
	if _, err := os.Stat(filepath.Join(stateDir, "patient_1.lock")); !os.IsNotExist(err) {
		t.Error("Expected lock file removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Second release must be a no-op, got %v", err)
	}

	lock2, err := AcquireSessionLock(stateDir, "patient_1")
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=", 0},
		{"no pid here", 0},
		{"prefix pid=42 suffix", 42},
	}
	for _, tt := range tests {
		if got := parsePID(tt.content); got != tt.want {
			t.Errorf("parsePID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
