package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	log, closeFn, err := New(Options{Dir: dir, Quiet: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("task recorded", zap.Int64("task_id", 7))
	if err := closeFn(); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("tgcopilot_%s.log", time.Now().Format("2006-01-02")))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"task_id":7`) {
		t.Fatalf("expected structured field in log file, got: %s", data)
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	dir := t.TempDir()
	log, closeFn, err := New(Options{Dir: dir, Quiet: true, Verbose: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Debug("classifier answer", zap.String("answer", "true"))
	if err := closeFn(); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("tgcopilot_%s.log", time.Now().Format("2006-01-02")))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "classifier answer") {
		t.Fatalf("expected debug entry in verbose mode, got: %s", data)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected nop logger")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatal("expected same logger")
	}
}
