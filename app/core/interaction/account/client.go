// Package account connects the owner's personal Telegram account over
// MTProto. It streams new messages, answers in chats on the owner's behalf
// and resolves chat and user metadata.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"tgcopilot/app/pkg/types"
)

var (
	ErrResolve       = errors.New("account: cannot resolve peer")
	ErrNotAuthorized = errors.New("account: session is not authorized, run the login command")
	ErrNotReady      = errors.New("account: client is not connected")
)

type Config struct {
	AppID       int
	AppHash     string
	Phone       string
	Password    string
	SessionPath string
}

type MessageHandler func(ctx context.Context, msg types.InboundMessage)

type Client struct {
	cfg    Config
	logger *zap.Logger

	client     *telegram.Client
	gaps       *updates.Manager
	dispatcher tg.UpdateDispatcher
	peers      *peerCache

	mu      sync.RWMutex
	api     *tg.Client
	sender  *message.Sender
	me      types.Identity
	handler MessageHandler
	ready   chan struct{}
	once    sync.Once
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("account")

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		dispatcher: tg.NewUpdateDispatcher(),
		peers:      newPeerCache(),
		ready:      make(chan struct{}),
	}
	c.gaps = updates.New(updates.Config{
		Handler: c.dispatcher,
		Logger:  logger.Named("gaps"),
	})
	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  c.gaps,
		Logger:         logger.Named("mtproto"),
	})
	c.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.onMessage(ctx, e, u.Message)
	})
	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.onMessage(ctx, e, u.Message)
	})
	return c
}

// Run connects, verifies the stored session and streams updates to handler
// until ctx is done.
func (c *Client) Run(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("account: auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("account: get self: %w", err)
		}
		api := c.client.API()

		c.mu.Lock()
		c.api = api
		c.sender = message.NewSender(api)
		c.me = types.Identity{ID: self.ID, FirstName: self.FirstName, Handle: self.Username}
		c.mu.Unlock()
		c.peers.addUsers([]tg.UserClass{self})

		if err := c.warmDialogs(ctx, api); err != nil {
			c.logger.Warn("dialog warmup failed", zap.Error(err))
		}

		c.logger.Info("owner account connected", zap.Int64("user_id", self.ID), zap.String("username", self.Username))
		return c.gaps.Run(ctx, api, self.ID, updates.AuthOptions{
			OnStart: func(ctx context.Context) {
				c.once.Do(func() { close(c.ready) })
			},
		})
	})
}

// Ready is closed once the update stream is live.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

func (c *Client) Me() types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.me
}

func (c *Client) conn() (*tg.Client, *message.Sender, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, nil, ErrNotReady
	}
	return c.api, c.sender, nil
}

func (c *Client) warmDialogs(ctx context.Context, api *tg.Client) error {
	res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return err
	}
	dialogs, ok := res.AsModified()
	if !ok {
		return nil
	}
	c.peers.addUsers(dialogs.GetUsers())
	c.peers.addChats(dialogs.GetChats())
	return nil
}

func (c *Client) onMessage(ctx context.Context, e tg.Entities, mc tg.MessageClass) error {
	msg, ok := mc.(*tg.Message)
	if !ok {
		return nil
	}
	c.peers.addEntities(e)

	c.mu.RLock()
	handler := c.handler
	selfID := c.me.ID
	c.mu.RUnlock()
	if handler == nil {
		return nil
	}

	in, ok := c.peers.toInbound(msg, selfID)
	if !ok {
		return nil
	}
	handler(ctx, in)
	return nil
}

// Send posts text to a marked chat id as the owner.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	return c.Reply(ctx, chatID, 0, text)
}

// Reply posts text in chatID, quoting replyTo when it is positive.
func (c *Client) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	_, sender, err := c.conn()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	peer, ok := c.peers.inputPeer(chatID)
	if !ok {
		return fmt.Errorf("%w: chat %d", ErrResolve, chatID)
	}
	req := sender.To(peer)
	if replyTo > 0 {
		_, err = req.Reply(replyTo).Text(ctx, text)
	} else {
		_, err = req.Text(ctx, text)
	}
	if err != nil {
		return fmt.Errorf("account: send to %d: %w", chatID, err)
	}
	return nil
}

// ResolveChat looks up title and handle for a marked chat id.
func (c *Client) ResolveChat(ctx context.Context, id int64) (types.ChatInfo, error) {
	api, _, err := c.conn()
	if err != nil {
		return types.ChatInfo{}, err
	}

	kind, raw := unmark(id)
	switch kind {
	case peerUser:
		u, err := c.resolveUser(ctx, api, raw)
		if err != nil {
			return types.ChatInfo{}, err
		}
		title := strings.TrimSpace(u.FirstName + " " + u.LastName)
		return types.ChatInfo{ID: id, Title: title, Handle: u.Username, Private: true}, nil
	case peerChat:
		res, err := api.MessagesGetChats(ctx, []int64{raw})
		if err != nil {
			return types.ChatInfo{}, fmt.Errorf("%w: chat %d: %w", ErrResolve, id, err)
		}
		c.peers.addChats(res.GetChats())
		return firstChatInfo(res.GetChats(), id)
	default:
		ch, ok := c.peers.channel(raw)
		if !ok {
			return types.ChatInfo{}, fmt.Errorf("%w: channel %d not seen yet", ErrResolve, id)
		}
		res, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
			&tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		})
		if err != nil {
			// The cached copy is still a usable answer.
			c.logger.Debug("channel refresh failed", zap.Int64("chat_id", id), zap.Error(err))
			info, _ := chatInfoFrom(ch)
			return info, nil
		}
		c.peers.addChats(res.GetChats())
		return firstChatInfo(res.GetChats(), id)
	}
}

func firstChatInfo(chats []tg.ChatClass, id int64) (types.ChatInfo, error) {
	for _, cc := range chats {
		if info, ok := chatInfoFrom(cc); ok && info.ID == id {
			return info, nil
		}
	}
	return types.ChatInfo{}, fmt.Errorf("%w: chat %d", ErrResolve, id)
}

func (c *Client) ResolveUser(ctx context.Context, id int64) (types.UserInfo, error) {
	api, _, err := c.conn()
	if err != nil {
		return types.UserInfo{}, err
	}
	if id <= 0 {
		return types.UserInfo{}, fmt.Errorf("%w: %d is not a user id", ErrResolve, id)
	}
	u, err := c.resolveUser(ctx, api, id)
	if err != nil {
		return types.UserInfo{}, err
	}
	return userInfoFrom(u), nil
}

func (c *Client) resolveUser(ctx context.Context, api *tg.Client, id int64) (*tg.User, error) {
	cached, ok := c.peers.user(id)
	if !ok {
		return nil, fmt.Errorf("%w: user %d not seen yet", ErrResolve, id)
	}
	var input tg.InputUserClass = &tg.InputUser{UserID: cached.ID, AccessHash: cached.AccessHash}
	if cached.Self {
		input = &tg.InputUserSelf{}
	}
	users, err := api.UsersGetUsers(ctx, []tg.InputUserClass{input})
	if err != nil {
		c.logger.Debug("user refresh failed", zap.Int64("user_id", id), zap.Error(err))
		return cached, nil
	}
	c.peers.addUsers(users)
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok && u.ID == id {
			return u, nil
		}
	}
	return cached, nil
}

// ReplyAuthor returns the user id that sent messageID in chat.
func (c *Client) ReplyAuthor(ctx context.Context, chat types.Chat, messageID int) (int64, error) {
	api, _, err := c.conn()
	if err != nil {
		return 0, err
	}
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}}

	var res tg.MessagesMessagesClass
	kind, raw := unmark(chat.ID)
	if kind == peerChannel {
		ch, ok := c.peers.channel(raw)
		if !ok {
			return 0, fmt.Errorf("%w: channel %d not seen yet", ErrResolve, chat.ID)
		}
		res, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
			ID:      ids,
		})
	} else {
		res, err = api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return 0, fmt.Errorf("account: get message %d: %w", messageID, err)
	}

	modified, ok := res.AsModified()
	if !ok {
		return 0, fmt.Errorf("%w: message %d", ErrResolve, messageID)
	}
	for _, mc := range modified.GetMessages() {
		msg, ok := mc.(*tg.Message)
		if !ok || msg.ID != messageID {
			continue
		}
		sender := c.peers.senderOf(msg, c.Me().ID)
		if !sender.Known {
			return 0, fmt.Errorf("%w: message %d has no user sender", ErrResolve, messageID)
		}
		return sender.ID, nil
	}
	return 0, fmt.Errorf("%w: message %d not found", ErrResolve, messageID)
}
