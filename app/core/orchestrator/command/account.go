package command

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tgcopilot/app/pkg/reply"
)

const msgNoAccount = "The owner account is not available."

func (d *Dispatcher) userInfo(ctx context.Context, args []string) reply.Text {
	id, ok := parseID(args)
	if !ok {
		return usage("/userinfo <user_id>")
	}
	if d.account == nil {
		return reply.Plain(msgNoAccount)
	}
	u, err := d.account.ResolveUser(ctx, id)
	if err != nil {
		d.logger.Warn("resolve user failed", zap.Int64("user_id", id), zap.Error(err))
		return reply.Plain("Could not find user " + strconv.FormatInt(id, 10) + ": " + err.Error())
	}

	var b reply.Builder
	b.Plain("👤 ").Bold("User info").Line()
	b.Plain("ID: ").Code(strconv.FormatInt(u.ID, 10)).Line()
	b.Plain("Name: " + strings.TrimSpace(u.FirstName+" "+u.LastName)).Line()
	b.Plain("Username: " + orDash(prefixAt(u.Handle))).Line()
	b.Plain("Phone: " + orDash(u.Phone)).Line()
	b.Plain("Bot: " + yesNo(u.IsBot))
	return b.Text()
}

func (d *Dispatcher) chatInfo(ctx context.Context, args []string) reply.Text {
	id, ok := parseID(args)
	if !ok {
		return usage("/chatinfo <chat_id>")
	}
	if d.account == nil {
		return reply.Plain(msgNoAccount)
	}
	c, err := d.account.ResolveChat(ctx, id)
	if err != nil {
		d.logger.Warn("resolve chat failed", zap.Int64("chat_id", id), zap.Error(err))
		return reply.Plain("Could not find chat " + strconv.FormatInt(id, 10) + ": " + err.Error())
	}

	kind := "group"
	if c.Private {
		kind = "private"
	}
	var b reply.Builder
	b.Plain("💬 ").Bold("Chat info").Line()
	b.Plain("ID: ").Code(strconv.FormatInt(c.ID, 10)).Line()
	b.Plain("Title: " + orDash(c.Title)).Line()
	b.Plain("Username: " + orDash(prefixAt(c.Handle))).Line()
	b.Plain("Type: " + kind)
	return b.Text()
}

func (d *Dispatcher) send(ctx context.Context, args []string) reply.Text {
	if len(args) < 2 {
		return usage("/send <chat_id> <text>")
	}
	id, ok := parseID(args[:1])
	if !ok {
		return usage("/send <chat_id> <text>")
	}
	if d.account == nil {
		return reply.Plain(msgNoAccount)
	}
	text := strings.Join(args[1:], " ")
	if err := d.account.Send(ctx, id, text); err != nil {
		d.logger.Warn("send via owner account failed", zap.Int64("chat_id", id), zap.Error(err))
		return reply.Plain("Failed to send message to " + strconv.FormatInt(id, 10) + ": " + err.Error())
	}
	return reply.Plain("📨 Message sent to " + strconv.FormatInt(id, 10) + ".")
}

func parseID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func usage(form string) reply.Text {
	var b reply.Builder
	b.Plain("Usage: ").Code(form)
	return b.Text()
}

func prefixAt(handle string) string {
	if handle == "" {
		return ""
	}
	return "@" + strings.TrimPrefix(handle, "@")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
