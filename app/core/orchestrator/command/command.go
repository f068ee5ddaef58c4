// Package command maps bot commands from the authorized operator chat onto
// task lifecycle and owner-account operations.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

var ErrUnauthorized = errors.New("command from unauthorized chat")

// Handler produces the response for one command invocation.
type Handler func(ctx context.Context, args []string) reply.Text

// Tasks is the lifecycle surface the task commands need.
type Tasks interface {
	MarkDone(ctx context.Context, id int64) (task.Task, error)
	Pending(ctx context.Context) ([]task.Task, error)
	Completed(ctx context.Context, from, to *time.Time) ([]task.Task, error)
}

// Account is the owner-account surface for userinfo, chatinfo and send.
type Account interface {
	ResolveUser(ctx context.Context, id int64) (types.UserInfo, error)
	ResolveChat(ctx context.Context, id int64) (types.ChatInfo, error)
	Send(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	AuthorizedChatID int64
	Location         *time.Location
}

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	aliases  map[string]string

	tasks      Tasks
	account    Account
	authorized int64
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// New registers the built-in commands. account may be nil, in which case the
// account commands answer that the owner account is unavailable.
func New(tasks Tasks, account Account, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	d := &Dispatcher{
		handlers:   map[string]Handler{},
		aliases:    map[string]string{},
		tasks:      tasks,
		account:    account,
		authorized: opts.AuthorizedChatID,
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
	d.Register("done", d.done)
	d.Register("tasks", d.pending)
	d.Register("completed", d.completed)
	d.Register("help", d.help)
	d.Register("userinfo", d.userInfo)
	d.Register("chatinfo", d.chatInfo)
	d.Register("send", d.send)
	d.Alias("start", "help")
	return d
}

func (d *Dispatcher) Register(name string, handler Handler) {
	if handler == nil {
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()
}

func (d *Dispatcher) Alias(alias, target string) {
	d.mu.Lock()
	d.aliases[strings.ToLower(alias)] = strings.ToLower(target)
	d.mu.Unlock()
}

func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authorize rejects every chat but the configured operator chat.
func (d *Dispatcher) Authorize(chatID int64) error {
	if d.authorized == 0 || chatID != d.authorized {
		return fmt.Errorf("%w: %d", ErrUnauthorized, chatID)
	}
	return nil
}

// Handle authorizes cmd, runs it and sends the response through cmd.Reply.
// Unauthorized chats get a polite denial and ErrUnauthorized.
func (d *Dispatcher) Handle(ctx context.Context, cmd types.Command) error {
	log := d.logger.With(zap.String("command", cmd.Name), zap.Int64("chat_id", cmd.ChatID))
	if err := d.Authorize(cmd.ChatID); err != nil {
		log.Warn("rejected command from unauthorized chat")
		if cmd.Reply != nil {
			if sendErr := cmd.Reply.Respond(ctx, reply.Plain(msgUnauthorized)); sendErr != nil {
				log.Warn("denial reply failed", zap.Error(sendErr))
			}
		}
		return err
	}

	log.Info("processing command", zap.Strings("args", cmd.Args))
	out := d.Execute(ctx, cmd.Name, cmd.Args)
	if cmd.Reply == nil || out.IsEmpty() {
		return nil
	}
	if err := cmd.Reply.Respond(ctx, out); err != nil {
		return fmt.Errorf("respond to /%s: %w", cmd.Name, err)
	}
	return nil
}

// Execute runs a command without the authorization check.
func (d *Dispatcher) Execute(ctx context.Context, name string, args []string) reply.Text {
	name = strings.ToLower(strings.TrimSpace(name))
	d.mu.RLock()
	if target, ok := d.aliases[name]; ok {
		name = target
	}
	handler, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return reply.Plain(msgUnknownCommand)
	}
	return handler(ctx, args)
}
