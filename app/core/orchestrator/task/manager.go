package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

// Replier answers a message in the conversation it came from.
type Replier interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
}

type ManagerOptions struct {
	Confirmation reply.Confirmation
	ReplyPrivate bool
	ReplyGroup   bool
}

// Manager turns eligible messages into tasks and applies status changes.
type Manager struct {
	store   *Store
	replier Replier
	opts    ManagerOptions
	logger  *zap.Logger
	now     func() time.Time
}

func NewManager(store *Store, replier Replier, opts ManagerOptions, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		replier: replier,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// RecordTask stores msg as a new task. The confirmation reply is best effort:
// a failed send is logged and the task id is still returned.
func (m *Manager) RecordTask(ctx context.Context, msg types.InboundMessage, senderName string) (int64, error) {
	id, err := m.store.Add(ctx, Task{
		Source:     SourceTelegram,
		ChatID:     msg.Chat.ID,
		MessageID:  msg.ID,
		Sender:     senderName,
		Content:    msg.Text,
		DetectedAt: m.now(),
		Status:     StatusNew,
		Tags:       []string{},
	})
	if err != nil {
		return 0, err
	}

	log := m.logger.With(zap.Int64("task_id", id), zap.Int64("chat_id", msg.Chat.ID), zap.Int("message_id", msg.ID))
	log.Info("task recorded", zap.String("sender", senderName))

	if !m.shouldReply(msg.Chat) || m.replier == nil {
		return id, nil
	}
	if err := m.replier.Reply(ctx, msg.Chat.ID, msg.ID, m.opts.Confirmation.Format(id)); err != nil {
		log.Warn("confirmation reply failed", zap.Error(err))
	}
	return id, nil
}

func (m *Manager) shouldReply(chat types.Chat) bool {
	if chat.IsGroup() {
		return m.opts.ReplyGroup
	}
	return m.opts.ReplyPrivate
}

// MarkDone completes task id. It returns ErrNotFound for unknown ids.
func (m *Manager) MarkDone(ctx context.Context, id int64) (Task, error) {
	t, err := m.store.UpdateStatus(ctx, id, StatusDone)
	if err != nil {
		return Task{}, err
	}
	m.logger.Info("task completed", zap.Int64("task_id", id))
	return t, nil
}

func (m *Manager) Pending(ctx context.Context) ([]Task, error) {
	return m.store.Pending(ctx)
}

func (m *Manager) Completed(ctx context.Context, from, to *time.Time) ([]Task, error) {
	return m.store.Completed(ctx, from, to)
}
