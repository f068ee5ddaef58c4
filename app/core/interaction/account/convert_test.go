package account

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcopilot/app/pkg/types"
)

const selfID = 1

func fixtureCache() *peerCache {
	c := newPeerCache()
	c.addEntities(tg.Entities{
		Users: map[int64]*tg.User{
			selfID: {ID: selfID, FirstName: "Owner", Username: "owner", Self: true},
			2:      {ID: 2, FirstName: "Alice", Username: "alice"},
			3:      {ID: 3, FirstName: "Helper", Username: "helper_bot", Bot: true},
		},
		Chats: map[int64]*tg.Chat{
			50: {ID: 50, Title: "Family"},
		},
		Channels: map[int64]*tg.Channel{
			60: {ID: 60, Title: "Team", Username: "team", Megagroup: true},
			70: {ID: 70, Title: "News", Broadcast: true},
		},
	})
	return c
}

func TestToInboundPrivate(t *testing.T) {
	c := fixtureCache()
	msg := &tg.Message{ID: 10, PeerID: &tg.PeerUser{UserID: 2}, Message: "please send the report"}

	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.Equal(t, types.PrivateChat(2, "alice"), in.Chat)
	assert.Equal(t, "Alice", in.Sender.DisplayName())
	assert.Equal(t, int64(2), in.Sender.ID)
	assert.Nil(t, in.Forward)
	assert.Nil(t, in.ReplyTo)
}

func TestToInboundOutgoingPrivateIsOwner(t *testing.T) {
	c := fixtureCache()
	msg := &tg.Message{ID: 11, Out: true, PeerID: &tg.PeerUser{UserID: 2}, Message: "/done 3"}

	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.True(t, in.Outgoing)
	assert.Equal(t, int64(selfID), in.Sender.ID)
}

func TestToInboundGroups(t *testing.T) {
	c := fixtureCache()

	msg := &tg.Message{ID: 12, PeerID: &tg.PeerChat{ChatID: 50}, FromID: &tg.PeerUser{UserID: 3}}
	msg.SetFlags()
	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.Equal(t, int64(-50), in.Chat.ID)
	assert.Equal(t, "Family", in.Chat.Title)
	assert.True(t, in.Sender.IsBot)

	msg = &tg.Message{ID: 13, PeerID: &tg.PeerChannel{ChannelID: 60}, FromID: &tg.PeerUser{UserID: 2}}
	msg.SetFlags()
	in, ok = c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.True(t, in.Chat.IsGroup())
	assert.Equal(t, int64(-1000000000060), in.Chat.ID)
	assert.Equal(t, "team", in.Chat.Handle)
}

func TestToInboundDropsBroadcastChannels(t *testing.T) {
	c := fixtureCache()
	msg := &tg.Message{ID: 14, PeerID: &tg.PeerChannel{ChannelID: 70}, Message: "breaking"}

	_, ok := c.toInbound(msg, selfID)
	assert.False(t, ok)
}

func TestToInboundChannelSenderIsUnknown(t *testing.T) {
	c := fixtureCache()
	msg := &tg.Message{ID: 15, PeerID: &tg.PeerChannel{ChannelID: 60}, FromID: &tg.PeerChannel{ChannelID: 60}}
	msg.SetFlags()

	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.False(t, in.Sender.Known)
	assert.Equal(t, types.UnknownSenderName, in.Sender.DisplayName())
}

func TestToInboundForwardAndReply(t *testing.T) {
	c := fixtureCache()
	msg := &tg.Message{
		ID:      16,
		PeerID:  &tg.PeerChannel{ChannelID: 60},
		FromID:  &tg.PeerUser{UserID: 2},
		FwdFrom: tg.MessageFwdHeader{FromID: &tg.PeerUser{UserID: selfID}},
		ReplyTo: &tg.MessageReplyHeader{ReplyToMsgID: 5},
	}
	msg.FwdFrom.SetFlags()
	msg.ReplyTo.(*tg.MessageReplyHeader).SetFlags()
	msg.SetFlags()

	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	require.NotNil(t, in.Forward)
	assert.Equal(t, int64(selfID), in.Forward.FromID)
	require.NotNil(t, in.ReplyTo)
	assert.Equal(t, 5, in.ReplyTo.MessageID)
	assert.False(t, in.ReplyTo.TopicRoot)
}

func TestToInboundTopicRoot(t *testing.T) {
	c := fixtureCache()

	root := &tg.MessageReplyHeader{ForumTopic: true, ReplyToMsgID: 100}
	root.SetFlags()
	msg := &tg.Message{ID: 17, PeerID: &tg.PeerChannel{ChannelID: 60}, FromID: &tg.PeerUser{UserID: 2}, ReplyTo: root}
	msg.SetFlags()
	in, ok := c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.True(t, in.ReplyTo.TopicRoot)

	nested := &tg.MessageReplyHeader{ForumTopic: true, ReplyToMsgID: 120, ReplyToTopID: 100}
	nested.SetFlags()
	msg = &tg.Message{ID: 18, PeerID: &tg.PeerChannel{ChannelID: 60}, FromID: &tg.PeerUser{UserID: 2}, ReplyTo: nested}
	msg.SetFlags()
	in, ok = c.toInbound(msg, selfID)
	require.True(t, ok)
	assert.False(t, in.ReplyTo.TopicRoot)
	assert.Equal(t, 120, in.ReplyTo.MessageID)
}

func TestChatInfoFrom(t *testing.T) {
	info, ok := chatInfoFrom(&tg.Channel{ID: 60, Title: "Team", Username: "team"})
	require.True(t, ok)
	assert.Equal(t, types.ChatInfo{ID: -1000000000060, Title: "Team", Handle: "team"}, info)

	_, ok = chatInfoFrom(&tg.ChatEmpty{ID: 1})
	assert.False(t, ok)
}
