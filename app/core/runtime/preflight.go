package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	config "tgcopilot/app/configs"
	"tgcopilot/app/core/scheduler"
)

// RunPreflight checks what the process needs before any connection is made:
// a valid config, a parseable summary schedule and a writable store directory.
func RunPreflight(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Summary.Enabled {
		if _, err := scheduler.CronSchedule(cfg.Summary.Cron); err != nil {
			return fmt.Errorf("summary.cron is invalid: %w", err)
		}
	}
	if err := checkSQLiteWritable(filepath.Dir(cfg.Store.Path)); err != nil {
		return fmt.Errorf("sqlite check failed: %w", err)
	}
	if err := checkSQLiteWritable(filepath.Dir(cfg.Account.SessionPath)); err != nil {
		return fmt.Errorf("session dir check failed: %w", err)
	}
	return nil
}

func checkSQLiteWritable(dataDir string) error {
	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		return fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probePath := filepath.Join(dir, ".tgcopilot-preflight-write-check")
	f, err := os.OpenFile(probePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("ok\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Remove(probePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
