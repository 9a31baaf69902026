package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestAcquireLock_WritesOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	owner, err := ReadOwner(lock.Path())
	if err != nil {
		t.Fatalf("ReadOwner failed: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Errorf("expected our PID %d, got %d", os.Getpid(), owner.PID)
	}
	if time.Since(owner.Started) > time.Minute {
		t.Errorf("expected a recent start time, got %v", owner.Started)
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("first AcquireLock failed: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("second AcquireLock should fail while the first is held")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("expected EWOULDBLOCK cause, got %v", lockErr.Cause)
	}
	if lockErr.Owner.PID != os.Getpid() {
		t.Errorf("conflict should report the holder PID, got %d", lockErr.Owner.PID)
	}
	if !strings.Contains(err.Error(), "held by running PID") {
		t.Errorf("unexpected message: %s", err)
	}

	// The failed attempt must not have clobbered the holder's details.
	if owner, _ := ReadOwner(first.Path()); owner.PID != os.Getpid() {
		t.Error("lock file contents changed by the failed attempt")
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	again.Release()
}

func TestParseOwner(t *testing.T) {
	tests := []struct {
		content string
		pid     int
		started bool
	}{
		{"pid=1234\nstarted=2025-01-06T09:00:00Z\n", 1234, true},
		{"pid=42", 42, false},
		{"pid=abc\n", 0, false},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		o := parseOwner(tt.content)
		if o.PID != tt.pid || o.Started.IsZero() == tt.started {
			t.Errorf("parseOwner(%q) = %+v", tt.content, o)
		}
	}
}

func TestLockError_StaleOwner(t *testing.T) {
	err := &LockError{LockPath: "/tmp/x.lock", Owner: Owner{PID: 999999999}}
	if !strings.Contains(err.Error(), "is gone") {
		t.Errorf("expected stale hint, got %s", err)
	}
	unknown := &LockError{LockPath: "/tmp/x.lock"}
	if !strings.Contains(unknown.Error(), "owner unknown") {
		t.Errorf("expected unknown owner, got %s", unknown)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("non-positive PIDs are never alive")
	}
}
