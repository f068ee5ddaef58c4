// Package telegram is the bot side: it long-polls the Bot API for commands
// from the operator chat and delivers notifications to it.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

const defaultAPIRoot = "https://api.telegram.org"

const parseModeMarkdownV2 = "MarkdownV2"

type Config struct {
	BotToken       string
	PollInterval   time.Duration
	TimeoutSeconds int
	// NotifyChatID receives Notify calls; it is the authorized operator chat.
	NotifyChatID int64
	APIRoot      string
	HTTPClient   *http.Client
}

type CommandHandler func(ctx context.Context, cmd types.Command)

type Channel struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	offset int64

	mu      sync.RWMutex
	handler CommandHandler
}

func NewChannel(cfg Config, logger *zap.Logger) *Channel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{cfg: cfg, client: client, logger: logger.Named("bot")}
}

// Start polls until ctx is done. Each command message is handed to handler
// in arrival order; other messages are dropped.
func (c *Channel) Start(ctx context.Context, handler CommandHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	if strings.TrimSpace(c.cfg.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	c.logger.Info("bot polling started")

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("poll error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			c.logger.Info("bot polling stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Send delivers text to chatID rendered as MarkdownV2. If Telegram rejects
// the markup the message is resent as plain text.
func (c *Channel) Send(ctx context.Context, chatID int64, text reply.Text, replyTo int) error {
	if chatID == 0 {
		return fmt.Errorf("telegram chat id is required")
	}
	if text.IsEmpty() {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text.MarkdownV2(),
		"parse_mode": parseModeMarkdownV2,
	}
	if replyTo > 0 {
		payload["reply_to_message_id"] = replyTo
		payload["allow_sending_without_reply"] = true
	}
	err := c.call(ctx, "sendMessage", payload, nil)
	if err == nil || !isEntityParseError(err) {
		return err
	}

	c.logger.Debug("markdown rejected, resending as plain text", zap.Error(err))
	delete(payload, "parse_mode")
	payload["text"] = text.String()
	return c.call(ctx, "sendMessage", payload, nil)
}

// Notify sends text to the operator chat.
func (c *Channel) Notify(ctx context.Context, text reply.Text) error {
	if c.cfg.NotifyChatID == 0 {
		return fmt.Errorf("telegram notify chat id is not configured")
	}
	return c.Send(ctx, c.cfg.NotifyChatID, text, 0)
}

func (c *Channel) pollOnce(ctx context.Context) error {
	result := getUpdatesResponse{}
	offset := atomic.LoadInt64(&c.offset)
	payload := map[string]interface{}{
		"timeout":         c.cfg.TimeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	if err := c.call(ctx, "getUpdates", payload, &result); err != nil {
		return err
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	for _, upd := range result.Result {
		if upd.UpdateID >= atomic.LoadInt64(&c.offset) {
			atomic.StoreInt64(&c.offset, upd.UpdateID+1)
		}
		if handler == nil || upd.Message.MessageID == 0 {
			continue
		}
		cmd, ok := c.toCommand(upd.Message)
		if !ok {
			continue
		}
		handler(ctx, cmd)
	}
	return nil
}

func (c *Channel) toCommand(msg telegramMessage) (types.Command, bool) {
	name, args, ok := types.ParseCommand(msg.Text)
	if !ok {
		return types.Command{}, false
	}
	return types.Command{
		Name:   name,
		Args:   args,
		ChatID: msg.Chat.ID,
		Reply:  chatResponder{ch: c, chatID: msg.Chat.ID, messageID: int(msg.MessageID)},
	}, true
}

type chatResponder struct {
	ch        *Channel
	chatID    int64
	messageID int
}

func (r chatResponder) Respond(ctx context.Context, text reply.Text) error {
	return r.ch.Send(ctx, r.chatID, text, r.messageID)
}

type apiError struct {
	Method      string
	Status      int
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram api %s status=%d code=%d: %s", e.Method, e.Status, e.Code, e.Description)
}

func isEntityParseError(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Description), "parse entities")
}

func (c *Channel) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	url := strings.TrimRight(c.cfg.APIRoot, "/") + "/bot" + c.cfg.BotToken + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var base apiResponse
	if err := json.Unmarshal(respBody, &base); err != nil {
		if resp.StatusCode >= 300 {
			return &apiError{Method: method, Status: resp.StatusCode, Description: strings.TrimSpace(string(respBody))}
		}
		return err
	}
	if !base.OK || resp.StatusCode >= 300 {
		return &apiError{Method: method, Status: resp.StatusCode, Code: base.ErrorCode, Description: base.Description}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type getUpdatesResponse struct {
	apiResponse
	Result []update `json:"result"`
}

type update struct {
	UpdateID int64           `json:"update_id"`
	Message  telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	From      struct {
		ID int64 `json:"id"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}
