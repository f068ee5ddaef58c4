// Package reply holds channel-neutral formatted text. The core marks segments
// as bold or code and each channel renders them in its own syntax.
package reply

import (
	"fmt"
	"regexp"
	"strings"
)

type Kind int

const (
	KindPlain Kind = iota
	KindBold
	KindCode
)

type Segment struct {
	Kind Kind
	Text string
}

type Text []Segment

func Plain(s string) Text {
	return Text{{Kind: KindPlain, Text: s}}
}

func (t Text) IsEmpty() bool {
	for _, seg := range t {
		if seg.Text != "" {
			return false
		}
	}
	return true
}

// String renders the text without any markup.
func (t Text) String() string {
	var b strings.Builder
	for _, seg := range t {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// MarkdownV2 renders the text for Telegram's MarkdownV2 parse mode.
func (t Text) MarkdownV2() string {
	var b strings.Builder
	for _, seg := range t {
		switch seg.Kind {
		case KindBold:
			if seg.Text == "" {
				continue
			}
			b.WriteString("*")
			b.WriteString(escapeMarkdownV2(seg.Text))
			b.WriteString("*")
		case KindCode:
			if seg.Text == "" {
				continue
			}
			b.WriteString("`")
			b.WriteString(escapeCode(seg.Text))
			b.WriteString("`")
		default:
			b.WriteString(escapeMarkdownV2(seg.Text))
		}
	}
	return b.String()
}

const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

func escapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeCode(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "`", "\\`")
}

type Builder struct {
	segs Text
}

func (b *Builder) Plain(s string) *Builder {
	return b.add(KindPlain, s)
}

func (b *Builder) Plainf(format string, args ...interface{}) *Builder {
	return b.add(KindPlain, fmt.Sprintf(format, args...))
}

func (b *Builder) Bold(s string) *Builder {
	return b.add(KindBold, s)
}

func (b *Builder) Code(s string) *Builder {
	return b.add(KindCode, s)
}

func (b *Builder) Line() *Builder {
	return b.add(KindPlain, "\n")
}

func (b *Builder) Append(t Text) *Builder {
	b.segs = append(b.segs, t...)
	return b
}

func (b *Builder) Text() Text {
	out := make(Text, len(b.segs))
	copy(out, b.segs)
	return out
}

func (b *Builder) add(kind Kind, s string) *Builder {
	if n := len(b.segs); n > 0 && b.segs[n-1].Kind == kind {
		b.segs[n-1].Text += s
		return b
	}
	b.segs = append(b.segs, Segment{Kind: kind, Text: s})
	return b
}

// Confirmation is the canned reply sent after a task is recorded. The same
// value recognizes its own echoes so they never become tasks.
type Confirmation struct {
	Text string
}

var confirmationSuffix = regexp.MustCompile(`^\(#\d+\)$`)

func (c Confirmation) Format(taskID int64) string {
	return fmt.Sprintf("%s (#%d)", strings.TrimSpace(c.Text), taskID)
}

func (c Confirmation) Matches(text string) bool {
	base := strings.TrimSpace(c.Text)
	text = strings.TrimSpace(text)
	if base == "" || text == "" {
		return false
	}
	if text == base {
		return true
	}
	if !strings.HasPrefix(text, base) {
		return false
	}
	return confirmationSuffix.MatchString(strings.TrimSpace(strings.TrimPrefix(text, base)))
}
