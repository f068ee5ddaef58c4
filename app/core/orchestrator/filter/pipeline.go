// Package filter decides, message by message, whether inbound traffic on the
// owner account should become a task.
package filter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	config "tgcopilot/app/configs"
	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

type Decision int

const (
	Skip Decision = iota
	Record
	// InlineDone is an owner-sent "/done <id>".
	InlineDone
)

func (d Decision) String() string {
	switch d {
	case Record:
		return "record"
	case InlineDone:
		return "inline_done"
	default:
		return "skip"
	}
}

const (
	ReasonIgnoredChat   = "ignored_chat"
	ReasonEmpty         = "empty_text"
	ReasonCannedReply   = "canned_reply"
	ReasonSelfForward   = "self_forward"
	ReasonBotSender     = "bot_sender"
	ReasonSelfSender    = "self_sender"
	ReasonNotAddressed  = "not_addressed"
	ReasonNoKeyword     = "no_keyword"
	ReasonNotTask       = "not_task"
	ReasonClassifiedYes = "classified_task"
	ReasonDoneCommand   = "done_command"
)

type Result struct {
	Decision   Decision
	Reason     string
	SenderName string
	// TaskID is set for InlineDone.
	TaskID int64
}

// Account is the slice of the owner account the pipeline needs.
type Account interface {
	Me() types.Identity
	// ReplyAuthor returns the sender id of messageID in chat.
	ReplyAuthor(ctx context.Context, chat types.Chat, messageID int) (int64, error)
}

type Classifier interface {
	IsTask(ctx context.Context, text string) bool
}

type Options struct {
	IgnoreGroups    config.IgnoreList
	Confirmation    reply.Confirmation
	PrivateKeywords []string
}

type Pipeline struct {
	account    Account
	classifier Classifier
	opts       Options
	logger     *zap.Logger
}

var inlineDonePattern = regexp.MustCompile(`^/done\s+(\d+)$`)

func New(account Account, classifier Classifier, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	keywords := make([]string, 0, len(opts.PrivateKeywords))
	for _, kw := range opts.PrivateKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	opts.PrivateKeywords = keywords
	return &Pipeline{account: account, classifier: classifier, opts: opts, logger: logger}
}

// Evaluate runs the checks in order and stops at the first exclusion.
func (p *Pipeline) Evaluate(ctx context.Context, msg types.InboundMessage) Result {
	res := Result{Decision: Skip, SenderName: msg.Sender.DisplayName()}
	text := strings.TrimSpace(msg.Text)
	me := p.account.Me()

	if msg.Chat.IsGroup() && p.opts.IgnoreGroups.Matches(msg.Chat.ID, msg.Chat.Title, msg.Chat.Handle) {
		return res.skip(ReasonIgnoredChat)
	}
	if text == "" {
		return res.skip(ReasonEmpty)
	}
	if p.opts.Confirmation.Matches(text) {
		return res.skip(ReasonCannedReply)
	}
	if msg.Forward != nil && me.ID != 0 && msg.Forward.FromID == me.ID {
		return res.skip(ReasonSelfForward)
	}
	if msg.Sender.Known && msg.Sender.IsBot {
		return res.skip(ReasonBotSender)
	}
	if p.fromOwner(msg, me) {
		if id, ok := parseInlineDone(text); ok {
			res.Decision = InlineDone
			res.Reason = ReasonDoneCommand
			res.TaskID = id
			return res
		}
		return res.skip(ReasonSelfSender)
	}

	if msg.Chat.IsGroup() {
		if !p.addressed(ctx, msg, me) {
			return res.skip(ReasonNotAddressed)
		}
	} else if !p.hasKeyword(text) {
		return res.skip(ReasonNoKeyword)
	}

	if p.classifier == nil || !p.classifier.IsTask(ctx, text) {
		return res.skip(ReasonNotTask)
	}
	res.Decision = Record
	res.Reason = ReasonClassifiedYes
	return res
}

func (r Result) skip(reason string) Result {
	r.Decision = Skip
	r.Reason = reason
	return r
}

func (p *Pipeline) fromOwner(msg types.InboundMessage, me types.Identity) bool {
	if msg.Outgoing {
		return true
	}
	return msg.Sender.Known && me.ID != 0 && msg.Sender.ID == me.ID
}

// addressed reports whether a group message mentions the owner or replies to
// one of the owner's messages. Replies that only point at a forum topic root
// do not count.
func (p *Pipeline) addressed(ctx context.Context, msg types.InboundMessage, me types.Identity) bool {
	if handle := strings.TrimPrefix(strings.TrimSpace(me.Handle), "@"); handle != "" {
		if strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(handle)) {
			return true
		}
	}
	if msg.ReplyTo == nil || msg.ReplyTo.TopicRoot || msg.ReplyTo.MessageID == 0 || me.ID == 0 {
		return false
	}
	author, err := p.account.ReplyAuthor(ctx, msg.Chat, msg.ReplyTo.MessageID)
	if err != nil {
		p.logger.Debug("reply author lookup failed",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int("message_id", msg.ID),
			zap.Error(err),
		)
		return false
	}
	return author == me.ID
}

func (p *Pipeline) hasKeyword(text string) bool {
	if len(p.opts.PrivateKeywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range p.opts.PrivateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseInlineDone(text string) (int64, bool) {
	m := inlineDonePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
