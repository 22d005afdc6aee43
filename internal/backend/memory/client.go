package memory

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

type client struct {
	b       *Backend
	account string
	closed  atomic.Bool
}

var _ backend.Client = (*client)(nil)

func (c *client) check(ctx context.Context) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	return ctx.Err()
}

// owns reports whether the character belongs to the client's account.
// The caller must hold the backend lock.
func (c *client) ownsLocked(id backend.CharacterID) error {
	ch, ok := c.b.characters[id]
	if !ok || ch.account != c.account {
		return fmt.Errorf("character %s not on account: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (c *client) AccountCharacters(ctx context.Context) ([]backend.Character, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	acc := c.b.accounts[c.account]
	out := make([]backend.Character, 0, len(acc.characters))
	for _, id := range acc.characters {
		out = append(out, c.b.characters[id].info)
	}
	return out, nil
}

func (c *client) ChatEnabledCharacters(ctx context.Context) ([]backend.CharacterID, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	acc := c.b.accounts[c.account]
	return append([]backend.CharacterID(nil), acc.chatEnabled...), nil
}

func (c *client) SetChatEnabledCharacters(ctx context.Context, ids []backend.CharacterID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	for _, id := range ids {
		if err := c.ownsLocked(id); err != nil {
			return err
		}
	}
	c.b.accounts[c.account].chatEnabled = append([]backend.CharacterID(nil), ids...)
	return nil
}

func (c *client) CharacterByName(ctx context.Context, name string) (*backend.Character, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	for _, ch := range c.b.characters {
		if strings.EqualFold(ch.info.Name, name) {
			info := ch.info
			return &info, nil
		}
	}
	return nil, fmt.Errorf("character %q: %w", name, backend.ErrNotFound)
}

func (c *client) relations(ctx context.Context, as backend.CharacterID, ignores bool) ([]backend.Character, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return nil, err
	}
	set := c.b.characters[as].friends
	if ignores {
		set = c.b.characters[as].ignores
	}
	out := make([]backend.Character, 0, len(set))
	for id := range set {
		if other, ok := c.b.characters[id]; ok {
			out = append(out, other.info)
		}
	}
	sortCharacters(out)
	return out, nil
}

func (c *client) Friends(ctx context.Context, as backend.CharacterID) ([]backend.Character, error) {
	return c.relations(ctx, as, false)
}

func (c *client) Ignores(ctx context.Context, as backend.CharacterID) ([]backend.Character, error) {
	return c.relations(ctx, as, true)
}

func (c *client) SetPresence(ctx context.Context, as backend.CharacterID, status backend.Status, message string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return err
	}
	return c.b.presenceLocked(as, status, message)
}

func (c *client) ListChannels(ctx context.Context, official bool) ([]backend.Channel, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	var out []backend.Channel
	for _, ch := range c.b.channels {
		if ch.info.Official == official {
			out = append(out, ch.info)
		}
	}
	sortChannels(out)
	return out, nil
}

func (c *client) Channel(ctx context.Context, id backend.ChannelID) (*backend.Channel, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	ch, ok := c.b.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	info := ch.info
	return &info, nil
}

func (c *client) JoinedChannels(ctx context.Context, as backend.CharacterID) ([]backend.Channel, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return nil, err
	}
	var out []backend.Channel
	for id := range c.b.characters[as].joined {
		if ch, ok := c.b.channels[id]; ok {
			out = append(out, ch.info)
		}
	}
	sortChannels(out)
	return out, nil
}

func (c *client) ChannelMembers(ctx context.Context, id backend.ChannelID) ([]backend.ChannelMember, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	ch, ok := c.b.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	out := make([]backend.ChannelMember, 0, len(ch.members))
	for _, mid := range ch.members {
		m, ok := c.b.characters[mid]
		if !ok {
			continue
		}
		role := "member"
		switch {
		case ch.info.Owner == mid:
			role = "owner"
		case containsID(ch.info.Operators, mid):
			role = "operator"
		}
		out = append(out, backend.ChannelMember{Character: m.info, Role: role})
	}
	return out, nil
}

func (c *client) JoinChannel(ctx context.Context, as backend.CharacterID, id backend.ChannelID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return err
	}
	return c.b.joinLocked(as, id)
}

func (c *client) LeaveChannel(ctx context.Context, as backend.CharacterID, id backend.ChannelID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return err
	}
	return c.b.leaveLocked(as, id)
}

func (c *client) SendChannelMessage(ctx context.Context, as backend.CharacterID, id backend.ChannelID, text string) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return "", err
	}
	return c.b.postLocked(as, id, text)
}

func (c *client) ChannelHistory(ctx context.Context, id backend.ChannelID, limit int) ([]backend.Message, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	ch, ok := c.b.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	return tail(ch.history, limit), nil
}

func (c *client) OpenPMs(ctx context.Context, as backend.CharacterID) ([]backend.PMConversation, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return nil, err
	}
	var out []backend.PMConversation
	for key, side := range c.b.pmSides {
		if key.owner != as || !side.open {
			continue
		}
		peer, ok := c.b.characters[key.peer]
		if !ok {
			continue
		}
		out = append(out, backend.PMConversation{Peer: peer.info, UnreadCount: side.unread})
	}
	sortConversations(out)
	return out, nil
}

func (c *client) OpenPM(ctx context.Context, as, peer backend.CharacterID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return err
	}
	if _, err := c.b.characterLocked(peer); err != nil {
		return err
	}
	c.b.sideLocked(as, peer).open = true
	return nil
}

func (c *client) ClosePM(ctx context.Context, as, peer backend.CharacterID) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return err
	}
	side := c.b.sideLocked(as, peer)
	side.open = false
	side.unread = 0
	return nil
}

func (c *client) SendPM(ctx context.Context, as, peer backend.CharacterID, text string) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return "", err
	}
	return c.b.sendPMLocked(as, peer, text)
}

func (c *client) PMHistory(ctx context.Context, as, peer backend.CharacterID, limit int) ([]backend.Message, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return nil, err
	}
	if side, ok := c.b.pmSides[pmKey{owner: as, peer: peer}]; ok {
		side.unread = 0
	}
	return tail(c.b.pmHistory[pmKey{owner: as, peer: peer}], limit), nil
}

func (c *client) Events(ctx context.Context, as backend.CharacterID) (backend.EventStream, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.ownsLocked(as); err != nil {
		return nil, err
	}
	s := newStream()
	c.b.streams[as] = append(c.b.streams[as], s)
	return s, nil
}

func (c *client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.b.closes.Add(1)
	return nil
}

func tail(msgs []backend.Message, limit int) []backend.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]backend.Message(nil), msgs...)
}
