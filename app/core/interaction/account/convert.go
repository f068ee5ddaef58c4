package account

import (
	"github.com/gotd/td/tg"

	"tgcopilot/app/pkg/types"
)

// toInbound converts a raw message into the pipeline's view. Broadcast
// channel posts and service messages are dropped.
func (c *peerCache) toInbound(msg *tg.Message, selfID int64) (types.InboundMessage, bool) {
	chat, ok := c.chatOf(msg.PeerID)
	if !ok {
		return types.InboundMessage{}, false
	}

	in := types.InboundMessage{
		ID:       msg.ID,
		Chat:     chat,
		Sender:   c.senderOf(msg, selfID),
		Text:     msg.Message,
		Outgoing: msg.Out,
	}
	if fwd, ok := msg.GetFwdFrom(); ok {
		in.Forward = &types.Forward{}
		if from, ok := fwd.GetFromID(); ok {
			if u, ok := from.(*tg.PeerUser); ok {
				in.Forward.FromID = u.UserID
			}
		}
	}
	if hdr, ok := msg.GetReplyTo(); ok {
		if rh, ok := hdr.(*tg.MessageReplyHeader); ok {
			ref := &types.ReplyRef{}
			if id, ok := rh.GetReplyToMsgID(); ok {
				ref.MessageID = id
			}
			// Inside a forum topic a message without reply_to_top_id only
			// points at the topic itself.
			_, hasTop := rh.GetReplyToTopID()
			ref.TopicRoot = rh.ForumTopic && !hasTop
			in.ReplyTo = ref
		}
	}
	return in, true
}

func (c *peerCache) chatOf(peer tg.PeerClass) (types.Chat, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		handle := ""
		if u, ok := c.user(p.UserID); ok {
			handle = u.Username
		}
		return types.PrivateChat(markUser(p.UserID), handle), true
	case *tg.PeerChat:
		title := ""
		if ch, ok := c.chat(p.ChatID); ok {
			title = ch.Title
		}
		return types.GroupChat(markChat(p.ChatID), title, ""), true
	case *tg.PeerChannel:
		ch, ok := c.channel(p.ChannelID)
		if !ok {
			return types.GroupChat(markChannel(p.ChannelID), "", ""), true
		}
		if ch.Broadcast && !ch.Megagroup {
			return types.Chat{}, false
		}
		return types.GroupChat(markChannel(p.ChannelID), ch.Title, ch.Username), true
	default:
		return types.Chat{}, false
	}
}

func (c *peerCache) senderOf(msg *tg.Message, selfID int64) types.Sender {
	var userID int64
	if from, ok := msg.GetFromID(); ok {
		u, isUser := from.(*tg.PeerUser)
		if !isUser {
			return types.UnknownSender()
		}
		userID = u.UserID
	} else {
		switch p := msg.PeerID.(type) {
		case *tg.PeerUser:
			if msg.Out {
				userID = selfID
			} else {
				userID = p.UserID
			}
		default:
			if msg.Out && selfID != 0 {
				userID = selfID
			}
		}
	}
	if userID == 0 {
		return types.UnknownSender()
	}
	u, ok := c.user(userID)
	if !ok {
		return types.KnownSender(userID, "", "", "", false)
	}
	return types.KnownSender(u.ID, u.FirstName, u.LastName, u.Username, u.Bot)
}

func chatInfoFrom(cc tg.ChatClass) (types.ChatInfo, bool) {
	switch v := cc.(type) {
	case *tg.Chat:
		return types.ChatInfo{ID: markChat(v.ID), Title: v.Title}, true
	case *tg.ChatForbidden:
		return types.ChatInfo{ID: markChat(v.ID), Title: v.Title}, true
	case *tg.Channel:
		return types.ChatInfo{ID: markChannel(v.ID), Title: v.Title, Handle: v.Username}, true
	case *tg.ChannelForbidden:
		return types.ChatInfo{ID: markChannel(v.ID), Title: v.Title}, true
	default:
		return types.ChatInfo{}, false
	}
}

func userInfoFrom(u *tg.User) types.UserInfo {
	return types.UserInfo{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Handle:    u.Username,
		Phone:     u.Phone,
		IsBot:     u.Bot,
	}
}
