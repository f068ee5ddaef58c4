package command

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/pkg/reply"
)

const (
	msgUnauthorized   = "Sorry, you are not authorized to use this bot."
	msgUnknownCommand = "Sorry, I don't recognize that command. Try /help."
	dateLayout        = "2006-01-02"
)

func (d *Dispatcher) done(ctx context.Context, args []string) reply.Text {
	if len(args) == 0 {
		return doneUsage()
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return doneUsage()
	}
	_, err = d.tasks.MarkDone(ctx, id)
	if err != nil && !errors.Is(err, task.ErrNotFound) {
		d.logger.Error("mark done failed", zap.Int64("task_id", id), zap.Error(err))
	}
	return DoneResult(id, err)
}

func doneUsage() reply.Text {
	var b reply.Builder
	b.Plain("Please provide a valid task id, e.g. ").Code("/done 123")
	return b.Text()
}

// DoneResult formats the outcome of completing task id. It is shared with the
// inline "/done" path on the owner account.
func DoneResult(id int64, err error) reply.Text {
	var b reply.Builder
	switch {
	case err == nil:
		b.Plainf("✅ Task %d marked as done!", id)
	case errors.Is(err, task.ErrNotFound):
		b.Plainf("Task %d does not exist.", id)
	default:
		b.Plainf("Failed to update task %d: %v", id, err)
	}
	return b.Text()
}

func (d *Dispatcher) pending(ctx context.Context, _ []string) reply.Text {
	items, err := d.tasks.Pending(ctx)
	if err != nil {
		d.logger.Error("list pending tasks failed", zap.Error(err))
		return reply.Plain("Failed to load pending tasks: " + err.Error())
	}
	if len(items) == 0 {
		return reply.Plain("🎉 No pending tasks right now!")
	}

	var b reply.Builder
	b.Plain("📜 ").Bold("Pending tasks").Plain(":").Line().Line()
	for i, t := range items {
		b.Plainf("%d. (ID: %d) %s [from %s] %s", i+1, t.ID, task.StatusGlyph(t.Status), t.Sender, task.Preview(t.Content, task.PreviewLength)).Line()
	}
	b.Line().Plain("Use ").Code("/done <id>").Plain(" to mark a task as done.")
	return b.Text()
}

func (d *Dispatcher) completed(ctx context.Context, args []string) reply.Text {
	var (
		from, to *time.Time
		label    string
		day      string
	)
	if len(args) > 0 {
		today := startOfDay(d.now().In(d.loc))
		var start time.Time
		switch strings.ToLower(args[0]) {
		case "today":
			start, label = today, "today"
		case "yesterday":
			start, label = today.AddDate(0, 0, -1), "yesterday"
		default:
			var b reply.Builder
			b.Plain("Invalid argument. Use ").Code("/completed today").Plain(", ").Code("/completed yesterday").Plain(" or no argument.")
			return b.Text()
		}
		end := endOfDay(start)
		from, to = &start, &end
		day = start.Format(dateLayout)
	}

	items, err := d.tasks.Completed(ctx, from, to)
	if err != nil {
		d.logger.Error("list completed tasks failed", zap.Error(err))
		return reply.Plain("Failed to load completed tasks: " + err.Error())
	}
	if len(items) == 0 {
		if day != "" {
			return reply.Plain("🎉 No tasks completed on " + day + ".")
		}
		return reply.Plain("🎉 No completed tasks yet!")
	}

	var b reply.Builder
	b.Plain("✅ ").Bold("Completed tasks")
	if label != "" {
		b.Plainf(" (%s)", label)
	}
	b.Plain(":").Line().Line()
	for i, t := range items {
		doneOn := ""
		if t.CompletedAt != nil {
			doneOn = t.CompletedAt.In(d.loc).Format(dateLayout)
		}
		b.Plainf("%d. (ID: %d) [chat %d] %s (done %s)", i+1, t.ID, t.ChatID, task.Preview(t.Content, task.PreviewLength), doneOn).Line()
	}
	return b.Text()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last instant of t's day at the store's microsecond resolution.
func endOfDay(start time.Time) time.Time {
	return start.AddDate(0, 0, 1).Add(-time.Microsecond)
}

type usageForm struct {
	form string
	desc string
}

var usages = map[string][]usageForm{
	"tasks": {{"/tasks", "show all pending tasks"}},
	"completed": {
		{"/completed", "show all completed tasks"},
		{"/completed today", "show tasks completed today"},
		{"/completed yesterday", "show tasks completed yesterday"},
	},
	"done":     {{"/done <id>", "mark a task as done"}},
	"help":     {{"/help", "show this message"}},
	"userinfo": {{"/userinfo <user_id>", "look up a user"}},
	"chatinfo": {{"/chatinfo <chat_id>", "look up a chat"}},
	"send":     {{"/send <chat_id> <text>", "send a message from your account"}},
}

func usageLines(name string) reply.Text {
	forms, ok := usages[name]
	if !ok {
		forms = []usageForm{{form: "/" + name}}
	}
	var b reply.Builder
	for _, u := range forms {
		b.Line().Code(u.form)
		if u.desc != "" {
			b.Plain(" - " + u.desc)
		}
	}
	return b.Text()
}

// help lists whatever is registered, so commands added later show up too.
func (d *Dispatcher) help(context.Context, []string) reply.Text {
	var b reply.Builder
	b.Plain("👋 I'm your Telegram task copilot.").Line().Line()
	b.Plain("I record tasks from private messages and from group messages that mention or reply to you. Commands:").Line()
	for _, name := range d.Commands() {
		b.Append(usageLines(name))
	}
	return b.Text()
}
