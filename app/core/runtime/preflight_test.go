package runtime

import (
	"os"
	"path/filepath"
	"testing"

	config "tgcopilot/app/configs"
)

func validConfig(dir string) config.Config {
	return config.Config{
		Account: config.AccountConfig{
			AppID:       12345,
			AppHash:     "hash",
			SessionPath: filepath.Join(dir, "session", "session.json"),
		},
		Summary: config.SummaryConfig{Enabled: true, Cron: config.DefaultSummaryCron},
		Store:   config.StoreConfig{Path: filepath.Join(dir, "db", "tasks.db")},
		Runtime: config.RuntimeConfig{Workers: 1},
	}
}

func TestRunPreflightPasses(t *testing.T) {
	dir := t.TempDir()
	if err := RunPreflight(validConfig(dir)); err != nil {
		t.Fatalf("expected preflight success, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "db")); err != nil {
		t.Fatalf("expected store dir to be created: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "db"))
	if len(entries) != 0 {
		t.Fatalf("expected probe file to be removed, found %d entries", len(entries))
	}
}

func TestRunPreflightRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig(t.TempDir())
	cfg.Account.AppHash = ""

	if err := RunPreflight(cfg); err == nil {
		t.Fatalf("expected preflight failure for invalid config")
	}
}

func TestRunPreflightRejectsBadCron(t *testing.T) {
	cfg := validConfig(t.TempDir())
	cfg.Summary.Cron = "every morning"

	if err := RunPreflight(cfg); err == nil {
		t.Fatalf("expected preflight failure for invalid cron")
	}

	cfg.Summary.Enabled = false
	if err := RunPreflight(cfg); err != nil {
		t.Fatalf("disabled summary should skip the cron check, got %v", err)
	}
}

func TestRunPreflightRejectsUnwritableSQLitePath(t *testing.T) {
	base := t.TempDir()
	filePath := filepath.Join(base, "blocked")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cfg := validConfig(base)
	cfg.Store.Path = filepath.Join(filePath, "db", "tasks.db")

	if err := RunPreflight(cfg); err == nil {
		t.Fatalf("expected preflight failure for unwritable sqlite path")
	}
}
