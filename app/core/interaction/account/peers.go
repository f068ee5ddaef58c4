package account

import (
	"sync"

	"github.com/gotd/td/tg"
)

// Chat ids leave this package in marked form: users keep their id, basic
// groups are negated and channels/supergroups are -(1e12 + id).
const channelIDOffset int64 = 1_000_000_000_000

type peerKind int

const (
	peerUser peerKind = iota
	peerChat
	peerChannel
)

func markUser(id int64) int64    { return id }
func markChat(id int64) int64    { return -id }
func markChannel(id int64) int64 { return -(channelIDOffset + id) }

func unmark(marked int64) (peerKind, int64) {
	switch {
	case marked > 0:
		return peerUser, marked
	case marked <= -channelIDOffset:
		return peerChannel, -marked - channelIDOffset
	default:
		return peerChat, -marked
	}
}

func markPeer(p tg.PeerClass) (int64, bool) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return markUser(v.UserID), true
	case *tg.PeerChat:
		return markChat(v.ChatID), true
	case *tg.PeerChannel:
		return markChannel(v.ChannelID), true
	default:
		return 0, false
	}
}

// peerCache remembers every entity seen in updates and dialog lists so access
// hashes are available when the owner account needs to talk back.
type peerCache struct {
	mu       sync.RWMutex
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func newPeerCache() *peerCache {
	return &peerCache{
		users:    map[int64]*tg.User{},
		chats:    map[int64]*tg.Chat{},
		channels: map[int64]*tg.Channel{},
	}
}

func (c *peerCache) addEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, u := range e.Users {
		c.users[id] = u
	}
	for id, ch := range e.Chats {
		c.chats[id] = ch
	}
	for id, ch := range e.Channels {
		c.channels[id] = ch
	}
}

func (c *peerCache) addUsers(users []tg.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			c.users[u.ID] = u
		}
	}
}

func (c *peerCache) addChats(chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range chats {
		switch v := cc.(type) {
		case *tg.Chat:
			c.chats[v.ID] = v
		case *tg.Channel:
			c.channels[v.ID] = v
		}
	}
}

func (c *peerCache) user(id int64) (*tg.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

func (c *peerCache) chat(id int64) (*tg.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chats[id]
	return ch, ok
}

func (c *peerCache) channel(id int64) (*tg.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// inputPeer builds the request peer for a marked id. Users and channels need
// a cached access hash.
func (c *peerCache) inputPeer(marked int64) (tg.InputPeerClass, bool) {
	kind, id := unmark(marked)
	switch kind {
	case peerUser:
		u, ok := c.user(id)
		if !ok {
			return nil, false
		}
		if u.Self {
			return &tg.InputPeerSelf{}, true
		}
		return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, true
	case peerChat:
		return &tg.InputPeerChat{ChatID: id}, true
	default:
		ch, ok := c.channel(id)
		if !ok {
			return nil, false
		}
		return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
	}
}
