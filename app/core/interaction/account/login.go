package account

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// CodePrompt asks the operator for the login code Telegram just sent.
type CodePrompt func(ctx context.Context) (string, error)

// LinePrompt reads the code from r after writing a hint to w.
func LinePrompt(r io.Reader, w io.Writer) CodePrompt {
	reader := bufio.NewReader(r)
	return func(ctx context.Context) (string, error) {
		if _, err := fmt.Fprint(w, "Enter the login code: "); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read login code: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}

// Login performs the interactive phone login once and persists the session
// file. An already authorized session is left untouched.
func (c *Client) Login(ctx context.Context, prompt CodePrompt) error {
	if strings.TrimSpace(c.cfg.Phone) == "" {
		return fmt.Errorf("account: phone number is required to log in")
	}
	if prompt == nil {
		return fmt.Errorf("account: code prompt is required to log in")
	}

	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return prompt(ctx)
	})
	flow := auth.NewFlow(auth.Constant(c.cfg.Phone, c.cfg.Password, codeAuth), auth.SendCodeOptions{})

	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("account: login: %w", err)
		}
		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("account: get self: %w", err)
		}
		c.logger.Info("session authorized",
			zap.Int64("user_id", self.ID),
			zap.String("username", self.Username),
			zap.String("session", c.cfg.SessionPath),
		)
		return nil
	})
}
