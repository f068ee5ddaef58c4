// Package summary builds the periodic digest of pending tasks.
package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

type PendingSource interface {
	Pending(ctx context.Context) ([]task.Task, error)
}

type ChatResolver interface {
	ResolveChat(ctx context.Context, id int64) (types.ChatInfo, error)
}

type Notifier interface {
	Notify(ctx context.Context, text reply.Text) error
}

const privateChatLabel = "Private chat"

type Job struct {
	tasks    PendingSource
	resolver ChatResolver
	notifier Notifier
	owner    string
	logger   *zap.Logger
}

// NewJob builds the summary job. resolver and notifier may be nil; without a
// notifier the summary is written to the log.
func NewJob(tasks PendingSource, resolver ChatResolver, notifier Notifier, ownerName string, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(ownerName) == "" {
		ownerName = "boss"
	}
	return &Job{tasks: tasks, resolver: resolver, notifier: notifier, owner: ownerName, logger: logger}
}

func (j *Job) Run(ctx context.Context) error {
	text, count, err := j.Build(ctx)
	if err != nil {
		return err
	}
	if j.notifier == nil {
		j.logger.Info("notifier unavailable, daily summary follows", zap.Int("pending", count), zap.String("summary", text.String()))
		return nil
	}
	if err := j.notifier.Notify(ctx, text); err != nil {
		return fmt.Errorf("send daily summary: %w", err)
	}
	j.logger.Info("daily summary sent", zap.Int("pending", count))
	return nil
}

// Build renders the summary. A chat that cannot be resolved gets a placeholder
// label; it never aborts the rest of the list.
func (j *Job) Build(ctx context.Context) (reply.Text, int, error) {
	items, err := j.tasks.Pending(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load pending tasks: %w", err)
	}

	var b reply.Builder
	if len(items) == 0 {
		b.Plainf("🎉 %s, you have no pending tasks today. Well done!", j.owner)
		return b.Text(), 0, nil
	}

	b.Plainf("👋 %s, you still have %d pending task(s) today:", j.owner, len(items)).Line().Line()
	titles := map[int64]string{}
	for i, t := range items {
		title, ok := titles[t.ChatID]
		if !ok {
			title = j.chatTitle(ctx, t.ChatID)
			titles[t.ChatID] = title
		}
		b.Plainf("%d. %s ", i+1, task.StatusGlyph(t.Status)).
			Bold("["+title+"]").
			Plainf(" (ID: %d) %s", t.ID, task.Preview(t.Content, task.PreviewLength)).
			Line()
	}
	b.Line().Plain("Reply with ").Code("/done <id>").Plain(" to mark a task as done.")
	return b.Text(), len(items), nil
}

func (j *Job) chatTitle(ctx context.Context, chatID int64) string {
	if j.resolver == nil {
		return unknownChat(chatID)
	}
	info, err := j.resolver.ResolveChat(ctx, chatID)
	if err != nil {
		j.logger.Debug("chat title lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return unknownChat(chatID)
	}
	if title := strings.TrimSpace(info.Title); title != "" {
		return title
	}
	if info.Private {
		return privateChatLabel
	}
	return unknownChat(chatID)
}

func unknownChat(chatID int64) string {
	return fmt.Sprintf("(unknown conversation %d)", chatID)
}
