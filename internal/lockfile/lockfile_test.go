package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireLock_WritesHolderInfo(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("path = %s", lock.Path())
	}
	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	info := ParseInfo(string(data))
	if info.PID != os.Getpid() || time.Since(info.Started) > time.Minute {
		t.Errorf("lock info = %+v", info)
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("second AcquireLock succeeded")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "another SkinPipe instance") || !strings.Contains(msg, dir) || !strings.Contains(msg, "(running)") {
		t.Errorf("unhelpful error: %s", msg)
	}

	// The failed attempt must not clobber the holder's information.
	data, _ := os.ReadFile(first.Path())
	if ParseInfo(string(data)).PID != os.Getpid() {
		t.Errorf("holder info lost: %q", data)
	}
}

func TestRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again.Release()
}

func TestAcquireLock_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	lock.Release()
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		content string
		pid     int
		started bool
	}{
		{"pid=1234\nstarted=2026-10-19T08:00:00Z\n", 1234, true},
		{"pid=42\n", 42, false},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		info := ParseInfo(tt.content)
		if info.PID != tt.pid || info.Started.IsZero() == tt.started {
			t.Errorf("ParseInfo(%q) = %+v", tt.content, info)
		}
	}
}

func TestDescribeHolder_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	// PIDs this large are never handed out.
	os.WriteFile(path, []byte("pid=999999999\n"), 0o644)
	if got := describeHolder(path); !strings.Contains(got, "stale") {
		t.Errorf("describeHolder = %q", got)
	}
	os.WriteFile(path, []byte(""), 0o644)
	if got := describeHolder(path); !strings.Contains(got, "no process information") {
		t.Errorf("describeHolder = %q", got)
	}
}
