package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tgcopilot/app/core/orchestrator/db"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const taskColumns = `id, source, chat_id, message_id, COALESCE(sender, ''), content, detected_at, completed_at, status, tags`

type Store struct {
	db  *db.DB
	now func() time.Time
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// WithClock replaces the time source used for completion stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Add inserts t as a new task and returns its id. Status and completion
// fields on t are ignored.
func (s *Store) Add(ctx context.Context, t Task) (int64, error) {
	source := strings.TrimSpace(t.Source)
	if source == "" {
		source = SourceTelegram
	}
	detectedAt := t.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = s.now()
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return 0, storageErr("add", err)
	}

	query := `INSERT INTO tasks (source, chat_id, message_id, sender, content, detected_at, completed_at, status, tags) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`
	res, err := s.db.Conn().ExecContext(ctx, query, source, t.ChatID, t.MessageID, t.Sender, t.Content, formatTime(detectedAt), string(StatusNew), tags)
	if err != nil {
		return 0, storageErr("add", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("add", err)
	}
	return id, nil
}

// Pending returns every task that is not done, oldest first.
func (s *Store) Pending(ctx context.Context) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status != ? ORDER BY id ASC`
	items, err := s.query(ctx, query, string(StatusDone))
	if err != nil {
		return nil, storageErr("pending", err)
	}
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Task, error) {
	t, err := scanTask(s.db.Conn().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, storageErr("get", err)
	}
	return t, nil
}

// UpdateStatus sets the status of task id and returns the updated row.
// Moving to done stamps completed_at unless it is already set, so repeated
// completions keep the first timestamp. Any other status clears it.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) (Task, error) {
	if !status.Valid() {
		return Task{}, fmt.Errorf("invalid status: %q", status)
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, storageErr("update_status", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if status == StatusDone {
		res, err = tx.ExecContext(ctx, `UPDATE tasks SET status = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?`, string(status), formatTime(s.now()), id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE tasks SET status = ?, completed_at = NULL WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return Task{}, storageErr("update_status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Task{}, storageErr("update_status", err)
	}
	if affected == 0 {
		return Task{}, ErrNotFound
	}

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return Task{}, storageErr("update_status", err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, storageErr("update_status", err)
	}
	return t, nil
}

// Completed returns done tasks whose completed_at lies in [from, to]. A nil
// bound leaves that side open.
func (s *Store) Completed(ctx context.Context, from, to *time.Time) ([]Task, error) {
	clauses := []string{"status = ?", "completed_at IS NOT NULL"}
	args := []interface{}{string(StatusDone)}
	if from != nil {
		clauses = append(clauses, "completed_at >= ?")
		args = append(args, formatTime(*from))
	}
	if to != nil {
		clauses = append(clauses, "completed_at <= ?")
		args = append(args, formatTime(*to))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY completed_at ASC, id ASC`
	items, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("completed", err)
	}
	return items, nil
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Task, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t           Task
		status      string
		detectedAt  string
		completedAt sql.NullString
		tags        string
	)
	if err := row.Scan(&t.ID, &t.Source, &t.ChatID, &t.MessageID, &t.Sender, &t.Content, &detectedAt, &completedAt, &status, &tags); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)

	var err error
	if t.DetectedAt, err = parseTime(detectedAt); err != nil {
		return Task{}, fmt.Errorf("task %d detected_at: %w", t.ID, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return Task{}, fmt.Errorf("task %d completed_at: %w", t.ID, err)
		}
		t.CompletedAt = &ts
	}
	if t.Tags, err = decodeTags(tags); err != nil {
		return Task{}, fmt.Errorf("task %d tags: %w", t.ID, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, raw)
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
