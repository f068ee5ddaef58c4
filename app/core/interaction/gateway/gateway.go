// Package gateway connects the two inbound streams to the core: owner-account
// messages go through the filter pipeline on the worker queue, bot commands go
// to the dispatcher.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/core/orchestrator/command"
	"tgcopilot/app/core/orchestrator/filter"
	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/core/queue"
	"tgcopilot/app/pkg/types"
)

type Evaluator interface {
	Evaluate(ctx context.Context, msg types.InboundMessage) filter.Result
}

// Lifecycle is the task manager surface used for inbound messages.
type Lifecycle interface {
	RecordTask(ctx context.Context, msg types.InboundMessage, senderName string) (int64, error)
	MarkDone(ctx context.Context, id int64) (task.Task, error)
}

type Commands interface {
	Handle(ctx context.Context, cmd types.Command) error
}

type Options struct {
	// MessageTimeout bounds the processing of one inbound message.
	MessageTimeout time.Duration
	// EnqueueTimeout bounds how long the account stream waits for queue space.
	EnqueueTimeout time.Duration
}

type Gateway struct {
	pipeline Evaluator
	tasks    Lifecycle
	replier  task.Replier
	commands Commands
	queue    *queue.Queue
	opts     Options
	logger   *zap.Logger

	mu     sync.RWMutex
	tracer TraceRecorder

	received    atomic.Uint64
	recorded    atomic.Uint64
	inlineDone  atomic.Uint64
	dropped     atomic.Uint64
	commandsRun atomic.Uint64
	lastMessage atomic.Int64
}

type HealthStatus struct {
	ReceivedMessages uint64
	RecordedTasks    uint64
	InlineCompleted  uint64
	DroppedMessages  uint64
	CommandsHandled  uint64
	LastMessageAt    time.Time
	QueueEnabled     bool
	Queue            queue.Stats
}

// New wires the gateway. q may be nil, in which case messages are processed
// on the caller's goroutine.
func New(pipeline Evaluator, tasks Lifecycle, replier task.Replier, commands Commands, q *queue.Queue, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MessageTimeout < 0 {
		opts.MessageTimeout = 0
	}
	if opts.EnqueueTimeout < 0 {
		opts.EnqueueTimeout = 0
	}
	return &Gateway{
		pipeline: pipeline,
		tasks:    tasks,
		replier:  replier,
		commands: commands,
		queue:    q,
		opts:     opts,
		logger:   logger.Named("gateway"),
	}
}

func (g *Gateway) SetTraceRecorder(tracer TraceRecorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracer = tracer
}

// HandleMessage is the owner-account callback. It never blocks longer than
// EnqueueTimeout.
func (g *Gateway) HandleMessage(ctx context.Context, msg types.InboundMessage) {
	g.received.Add(1)
	g.lastMessage.Store(time.Now().Unix())

	if g.queue == nil {
		runCtx, cancel := g.withMessageTimeout(ctx)
		defer cancel()
		if err := g.Process(runCtx, msg); err != nil {
			g.logger.Error("message processing failed", messageFields(msg, zap.Error(err))...)
		}
		return
	}

	job := queue.Job{
		ID:      "msg-" + strconv.FormatInt(msg.Chat.ID, 10) + "-" + strconv.Itoa(msg.ID),
		Timeout: g.opts.MessageTimeout,
		Run: func(runCtx context.Context) error {
			return g.Process(runCtx, msg)
		},
	}

	enqueueCtx := ctx
	cancel := func() {}
	if g.opts.EnqueueTimeout > 0 {
		enqueueCtx, cancel = context.WithTimeout(ctx, g.opts.EnqueueTimeout)
	}
	defer cancel()

	if _, err := g.queue.Enqueue(enqueueCtx, job); err != nil {
		g.dropped.Add(1)
		g.logger.Warn("message dropped, queue unavailable", messageFields(msg, zap.Error(err))...)
		g.trace(msg, filter.Result{Reason: "queue_unavailable"}, 0, err)
	}
}

func (g *Gateway) withMessageTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.MessageTimeout > 0 {
		return context.WithTimeout(ctx, g.opts.MessageTimeout)
	}
	return ctx, func() {}
}

// Process runs one message through the pipeline and applies the decision.
func (g *Gateway) Process(ctx context.Context, msg types.InboundMessage) error {
	res := g.pipeline.Evaluate(ctx, msg)
	log := g.logger.With(messageFields(msg, zap.String("decision", res.Decision.String()), zap.String("reason", res.Reason))...)

	switch res.Decision {
	case filter.Record:
		id, err := g.tasks.RecordTask(ctx, msg, res.SenderName)
		g.trace(msg, res, id, err)
		if err != nil {
			return fmt.Errorf("record task: %w", err)
		}
		g.recorded.Add(1)
		return nil

	case filter.InlineDone:
		_, err := g.tasks.MarkDone(ctx, res.TaskID)
		g.trace(msg, res, res.TaskID, err)
		if err != nil && !errors.Is(err, task.ErrNotFound) {
			log.Error("inline done failed", zap.Int64("task_id", res.TaskID), zap.Error(err))
		}
		if err == nil {
			g.inlineDone.Add(1)
		}
		if g.replier == nil {
			return nil
		}
		text := command.DoneResult(res.TaskID, err).String()
		if sendErr := g.replier.Reply(ctx, msg.Chat.ID, msg.ID, text); sendErr != nil {
			return fmt.Errorf("inline done reply: %w", sendErr)
		}
		return nil

	default:
		log.Debug("message skipped")
		g.trace(msg, res, 0, nil)
		return nil
	}
}

// HandleCommand is the bot channel callback.
func (g *Gateway) HandleCommand(ctx context.Context, cmd types.Command) {
	g.commandsRun.Add(1)
	err := g.commands.Handle(ctx, cmd)
	switch {
	case err == nil:
	case errors.Is(err, command.ErrUnauthorized):
		g.logger.Warn("command rejected", zap.String("command", cmd.Name), zap.Int64("chat_id", cmd.ChatID))
	default:
		g.logger.Error("command failed", zap.String("command", cmd.Name), zap.Int64("chat_id", cmd.ChatID), zap.Error(err))
	}
}

func (g *Gateway) HealthStatus() HealthStatus {
	status := HealthStatus{
		ReceivedMessages: g.received.Load(),
		RecordedTasks:    g.recorded.Load(),
		InlineCompleted:  g.inlineDone.Load(),
		DroppedMessages:  g.dropped.Load(),
		CommandsHandled:  g.commandsRun.Load(),
		QueueEnabled:     g.queue != nil,
	}
	if g.queue != nil {
		status.Queue = g.queue.Stats()
	}
	if last := g.lastMessage.Load(); last > 0 {
		status.LastMessageAt = time.Unix(last, 0).UTC()
	}
	return status
}

func (g *Gateway) trace(msg types.InboundMessage, res filter.Result, taskID int64, err error) {
	g.mu.RLock()
	tracer := g.tracer
	g.mu.RUnlock()
	if tracer == nil {
		return
	}

	event := TraceEvent{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		SenderID:  msg.Sender.ID,
		Decision:  res.Decision.String(),
		Reason:    res.Reason,
		TaskID:    taskID,
		Status:    "ok",
	}
	if err != nil {
		event.Status = "error"
		event.Detail = err.Error()
	}
	if recErr := tracer.Record(event); recErr != nil {
		g.logger.Warn("trace write failed", zap.Error(recErr))
	}
}

func messageFields(msg types.InboundMessage, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.Int64("chat_id", msg.Chat.ID),
		zap.Int("message_id", msg.ID),
	}
	return append(fields, extra...)
}
