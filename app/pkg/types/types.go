package types

import (
	"context"
	"strings"

	"tgcopilot/app/pkg/reply"
)

type ChatKind int

const (
	ChatPrivate ChatKind = iota
	ChatGroup
)

// Chat is resolved once at the account boundary. Title is only set for groups.
type Chat struct {
	Kind   ChatKind
	ID     int64
	Title  string
	Handle string
}

func PrivateChat(id int64, handle string) Chat {
	return Chat{Kind: ChatPrivate, ID: id, Handle: handle}
}

func GroupChat(id int64, title, handle string) Chat {
	return Chat{Kind: ChatGroup, ID: id, Title: title, Handle: handle}
}

func (c Chat) IsGroup() bool {
	return c.Kind == ChatGroup
}

// Sender is either a known account or unknown (hidden, channel post, missing entity).
type Sender struct {
	Known     bool
	ID        int64
	FirstName string
	LastName  string
	Handle    string
	IsBot     bool
}

func KnownSender(id int64, firstName, lastName, handle string, isBot bool) Sender {
	return Sender{
		Known:     true,
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Handle:    handle,
		IsBot:     isBot,
	}
}

func UnknownSender() Sender {
	return Sender{}
}

const UnknownSenderName = "Unknown"

// DisplayName returns the first non-empty of first name, last name and handle.
func (s Sender) DisplayName() string {
	if !s.Known {
		return UnknownSenderName
	}
	for _, v := range []string{s.FirstName, s.LastName, s.Handle} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return UnknownSenderName
}

type Forward struct {
	FromID int64
}

type ReplyRef struct {
	MessageID int
	// TopicRoot marks a message posted inside a forum topic without replying to anyone.
	TopicRoot bool
}

type InboundMessage struct {
	ID       int
	Chat     Chat
	Sender   Sender
	Text     string
	Outgoing bool
	Forward  *Forward
	ReplyTo  *ReplyRef
}

type Identity struct {
	ID        int64
	FirstName string
	Handle    string
}

type ChatInfo struct {
	ID      int64
	Title   string
	Handle  string
	Private bool
}

type UserInfo struct {
	ID        int64
	FirstName string
	LastName  string
	Handle    string
	Phone     string
	IsBot     bool
}

// Responder sends formatted text back to the conversation a command came from.
type Responder interface {
	Respond(ctx context.Context, text reply.Text) error
}

// Command is the framework-agnostic form of a bot command.
type Command struct {
	Name   string
	Args   []string
	ChatID int64
	Reply  Responder
}

// ParseCommand splits "/name@bot arg1 arg2" into a Command. ok is false for
// text that is not a command.
func ParseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return "", nil, false
	}
	name = parts[0]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}
