// Package cli is a local console for the bot commands, for use on the host
// without the bot or the owner account.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

// LocalChatID is the chat id console commands carry. Authorize it on the
// dispatcher serving the console.
const LocalChatID int64 = 1

type CommandHandler func(ctx context.Context, cmd types.Command)

type Channel struct {
	in  io.Reader
	out io.Writer
}

func NewChannel(in io.Reader, out io.Writer) *Channel {
	return &Channel{in: in, out: out}
}

// Start reads one command per line until EOF, "exit" or ctx is done. A line
// without the leading slash is treated as a command name.
func (c *Channel) Start(ctx context.Context, handler CommandHandler) error {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprintln(c.out, ">> tgcopilot console. Type /help, or 'exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}
		if !strings.HasPrefix(text, "/") {
			text = "/" + text
		}
		name, args, ok := types.ParseCommand(text)
		if !ok {
			continue
		}
		handler(ctx, types.Command{
			Name:   name,
			Args:   args,
			ChatID: LocalChatID,
			Reply:  c,
		})
	}
}

func (c *Channel) Respond(_ context.Context, text reply.Text) error {
	_, err := fmt.Fprintln(c.out, text.String())
	return err
}
