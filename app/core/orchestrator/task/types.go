package task

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// SourceTelegram tags every task detected on the owner account.
const SourceTelegram = "telegram"

type Status string

const (
	StatusNew  Status = "new"
	StatusDone Status = "done"
)

func (s Status) Valid() bool {
	return s == StatusNew || s == StatusDone
}

type Task struct {
	ID          int64
	Source      string
	ChatID      int64
	MessageID   int
	Sender      string
	Content     string
	DetectedAt  time.Time
	CompletedAt *time.Time
	Status      Status
	Tags        []string
}

// PreviewLength is the number of runes kept when a task is listed.
const PreviewLength = 50

const ellipsis = "..."

// Preview cuts content to limit runes and appends an ellipsis only when
// something was cut.
func Preview(content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit]) + ellipsis
}

// StatusGlyph is red for new tasks and amber for anything else.
func StatusGlyph(s Status) string {
	if s == StatusNew {
		return "🔴"
	}
	return "🟡"
}

var ErrNotFound = errors.New("task not found")

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("task store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
