// Package memory is an in-process backend used for local runs and tests.
// It keeps accounts, characters, channels and PM conversations in maps and
// pushes events to every open stream the way the real event stream does.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

type account struct {
	name        string
	credential  string
	characters  []backend.CharacterID
	chatEnabled []backend.CharacterID
}

type character struct {
	info    backend.Character
	account string
	friends map[backend.CharacterID]struct{}
	ignores map[backend.CharacterID]struct{}
	joined  map[backend.ChannelID]struct{}
}

type channel struct {
	info    backend.Channel
	members []backend.CharacterID
	history []backend.Message
}

type pmKey struct {
	owner backend.CharacterID
	peer  backend.CharacterID
}

type pmSide struct {
	open   bool
	unread int
}

// Backend is a thread-safe in-memory backend.
type Backend struct {
	mu         sync.Mutex
	accounts   map[string]*account
	characters map[backend.CharacterID]*character
	channels   map[backend.ChannelID]*channel
	pmSides    map[pmKey]*pmSide
	pmHistory  map[pmKey][]backend.Message
	streams    map[backend.CharacterID][]*stream
	seq        int64

	logins    atomic.Int64
	closes    atomic.Int64
	loginHook func()
}

var _ backend.Authenticator = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		accounts:   make(map[string]*account),
		characters: make(map[backend.CharacterID]*character),
		channels:   make(map[backend.ChannelID]*channel),
		pmSides:    make(map[pmKey]*pmSide),
		pmHistory:  make(map[pmKey][]backend.Message),
		streams:    make(map[backend.CharacterID][]*stream),
	}
}

// Logins reports how many successful logins happened.
func (b *Backend) Logins() int { return int(b.logins.Load()) }

// Closes reports how many clients were closed.
func (b *Backend) Closes() int { return int(b.closes.Load()) }

// SetLoginHook installs a function that runs inside every Login call.
func (b *Backend) SetLoginHook(fn func()) {
	b.mu.Lock()
	b.loginHook = fn
	b.mu.Unlock()
}

// AddAccount registers an account.
func (b *Backend) AddAccount(name, credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[name] = &account{name: name, credential: credential}
}

// AddCharacter registers a character. An empty account makes it a foreign
// character nobody can log in as.
func (b *Backend) AddCharacter(accountName string, ch backend.Character, chatEnabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.Status == "" {
		ch.Status = backend.StatusOffline
	}
	b.characters[ch.ID] = &character{
		info:    ch,
		account: accountName,
		friends: make(map[backend.CharacterID]struct{}),
		ignores: make(map[backend.CharacterID]struct{}),
		joined:  make(map[backend.ChannelID]struct{}),
	}
	if accountName == "" {
		return nil
	}
	acc, ok := b.accounts[accountName]
	if !ok {
		return fmt.Errorf("account %q: %w", accountName, backend.ErrNotFound)
	}
	acc.characters = append(acc.characters, ch.ID)
	if chatEnabled {
		acc.chatEnabled = append(acc.chatEnabled, ch.ID)
	}
	return nil
}

// AddFriend makes two characters friends.
func (b *Backend) AddFriend(a, c backend.CharacterID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ca, ok := b.characters[a]; ok {
		ca.friends[c] = struct{}{}
	}
	if cc, ok := b.characters[c]; ok {
		cc.friends[a] = struct{}{}
	}
}

// AddIgnore makes owner ignore target.
func (b *Backend) AddIgnore(owner, target backend.CharacterID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if co, ok := b.characters[owner]; ok {
		co.ignores[target] = struct{}{}
	}
}

// AddChannel registers a channel with its initial members.
func (b *Backend) AddChannel(ch backend.Channel, members ...backend.CharacterID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &channel{info: ch}
	b.channels[ch.ID] = c
	for _, id := range members {
		b.addMemberLocked(c, id)
	}
}

// AddHistory appends a message to a channel's history without publishing it.
func (b *Backend) AddHistory(id backend.ChannelID, author backend.CharacterID, text string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.channels[id]
	if !ok {
		return ""
	}
	msg := b.newMessageLocked(author, text)
	msg.ChannelID = id
	c.history = append(c.history, msg)
	return msg.ID
}

// OpenConversation opens a PM conversation for owner with the given unread count.
func (b *Backend) OpenConversation(owner, peer backend.CharacterID, unread int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	side := b.sideLocked(owner, peer)
	side.open = true
	side.unread = unread
}

// Publish pushes an event to every stream opened for the character.
func (b *Backend) Publish(to backend.CharacterID, ev backend.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(to, ev)
}

// Post sends a channel message as author, publishing it to the members.
func (b *Backend) Post(author backend.CharacterID, id backend.ChannelID, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.postLocked(author, id, text)
}

// Join makes a character join a channel, publishing the join.
func (b *Backend) Join(as backend.CharacterID, id backend.ChannelID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joinLocked(as, id)
}

// Leave makes a character leave a channel, publishing the leave.
func (b *Backend) Leave(as backend.CharacterID, id backend.ChannelID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leaveLocked(as, id)
}

// ChangePresence updates a character's presence, publishing the change.
func (b *Backend) ChangePresence(as backend.CharacterID, status backend.Status, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presenceLocked(as, status, message)
}

// SendPrivate sends a PM from one character to another.
func (b *Backend) SendPrivate(from, to backend.CharacterID, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendPMLocked(from, to, text)
}

// EndStreams ends every open stream of a character.
func (b *Backend) EndStreams(as backend.CharacterID) {
	b.mu.Lock()
	streams := b.streams[as]
	delete(b.streams, as)
	b.mu.Unlock()
	for _, s := range streams {
		_ = s.Close()
	}
}

// IsMember reports whether a character is in a channel.
func (b *Backend) IsMember(as backend.CharacterID, id backend.ChannelID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.characters[as]
	if !ok {
		return false
	}
	_, joined := c.joined[id]
	return joined
}

// ChatEnabled reports whether a character is on its account's chat-enabled list.
func (b *Backend) ChatEnabled(id backend.CharacterID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.characters[id]
	if !ok {
		return false
	}
	acc, ok := b.accounts[c.account]
	if !ok {
		return false
	}
	return containsID(acc.chatEnabled, id)
}

// Login authenticates an account.
func (b *Backend) Login(ctx context.Context, accountName, credential string) (backend.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	hook := b.loginHook
	acc, ok := b.accounts[accountName]
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok || acc.credential != credential {
		return nil, backend.ErrInvalidCredentials
	}
	b.logins.Add(1)
	return &client{b: b, account: accountName}, nil
}

func (b *Backend) sideLocked(owner, peer backend.CharacterID) *pmSide {
	key := pmKey{owner: owner, peer: peer}
	side, ok := b.pmSides[key]
	if !ok {
		side = &pmSide{}
		b.pmSides[key] = side
	}
	return side
}

func (b *Backend) newMessageLocked(author backend.CharacterID, text string) backend.Message {
	b.seq++
	msg := backend.Message{
		ID:        "m" + strconv.FormatInt(b.seq, 10),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if c, ok := b.characters[author]; ok {
		msg.Author = c.info
	} else {
		msg.Author = backend.Character{ID: author}
	}
	return msg
}

func (b *Backend) addMemberLocked(c *channel, id backend.CharacterID) bool {
	if containsID(c.members, id) {
		return false
	}
	c.members = append(c.members, id)
	c.info.MemberCount = len(c.members)
	if ch, ok := b.characters[id]; ok {
		ch.joined[c.info.ID] = struct{}{}
	}
	return true
}

func (b *Backend) publishLocked(to backend.CharacterID, ev backend.Event) {
	for _, s := range b.streams[to] {
		s.push(ev)
	}
}

func (b *Backend) publishMembersLocked(c *channel, ev backend.Event) {
	for _, id := range c.members {
		b.publishLocked(id, ev)
	}
}

func (b *Backend) characterLocked(id backend.CharacterID) (backend.Character, error) {
	c, ok := b.characters[id]
	if !ok {
		return backend.Character{}, fmt.Errorf("character %s: %w", id, backend.ErrNotFound)
	}
	return c.info, nil
}

func (b *Backend) joinLocked(as backend.CharacterID, id backend.ChannelID) error {
	c, ok := b.channels[id]
	if !ok {
		return fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	who, err := b.characterLocked(as)
	if err != nil {
		return err
	}
	if !b.addMemberLocked(c, as) {
		return nil
	}
	b.publishMembersLocked(c, backend.Event{
		Kind:      backend.EventChannelJoined,
		Channel:   c.info,
		Character: who,
	})
	return nil
}

func (b *Backend) leaveLocked(as backend.CharacterID, id backend.ChannelID) error {
	c, ok := b.channels[id]
	if !ok {
		return fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	who, err := b.characterLocked(as)
	if err != nil {
		return err
	}
	if !containsID(c.members, as) {
		return nil
	}
	b.publishMembersLocked(c, backend.Event{
		Kind:      backend.EventChannelLeft,
		Channel:   c.info,
		Character: who,
	})
	c.members = removeID(c.members, as)
	c.info.MemberCount = len(c.members)
	delete(b.characters[as].joined, id)
	return nil
}

func (b *Backend) postLocked(author backend.CharacterID, id backend.ChannelID, text string) (string, error) {
	c, ok := b.channels[id]
	if !ok {
		return "", fmt.Errorf("channel %s: %w", id, backend.ErrNotFound)
	}
	if _, err := b.characterLocked(author); err != nil {
		return "", err
	}
	msg := b.newMessageLocked(author, text)
	msg.ChannelID = id
	c.history = append(c.history, msg)
	b.publishMembersLocked(c, backend.Event{
		Kind:    backend.EventChannelMessage,
		Channel: c.info,
		Message: msg,
	})
	return msg.ID, nil
}

func (b *Backend) presenceLocked(as backend.CharacterID, status backend.Status, message string) error {
	c, ok := b.characters[as]
	if !ok {
		return fmt.Errorf("character %s: %w", as, backend.ErrNotFound)
	}
	c.info.Status = status
	c.info.StatusMessage = message
	ev := backend.Event{Kind: backend.EventPresenceChanged, Character: c.info}
	for id := range b.streams {
		b.publishLocked(id, ev)
	}
	return nil
}

func (b *Backend) sendPMLocked(from, to backend.CharacterID, text string) (string, error) {
	if _, err := b.characterLocked(from); err != nil {
		return "", err
	}
	peer, err := b.characterLocked(to)
	if err != nil {
		return "", err
	}
	msg := b.newMessageLocked(from, text)
	msg.Recipient = to

	b.pmHistory[pmKey{owner: from, peer: to}] = append(b.pmHistory[pmKey{owner: from, peer: to}], msg)
	if from != to {
		b.pmHistory[pmKey{owner: to, peer: from}] = append(b.pmHistory[pmKey{owner: to, peer: from}], msg)
	}
	b.sideLocked(from, to).open = true
	recv := b.sideLocked(to, from)
	recv.open = true
	recv.unread++

	ev := backend.Event{Kind: backend.EventPMMessage, Message: msg}
	b.publishLocked(from, ev)
	if from != to {
		b.publishLocked(to, ev)
		b.publishLocked(to, backend.Event{
			Kind:        backend.EventPMUnread,
			Peer:        msg.Author,
			Character:   peer,
			UnreadCount: recv.unread,
		})
	}
	return msg.ID, nil
}

func containsID[T comparable](ids []T, id T) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID[T comparable](ids []T, id T) []T {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func sortCharacters(chars []backend.Character) {
	sort.Slice(chars, func(i, j int) bool {
		return strings.ToLower(chars[i].Name) < strings.ToLower(chars[j].Name)
	})
}

func sortChannels(chans []backend.Channel) {
	sort.Slice(chans, func(i, j int) bool {
		return strings.ToLower(chans[i].Name) < strings.ToLower(chans[j].Name)
	})
}

func sortConversations(convs []backend.PMConversation) {
	sort.Slice(convs, func(i, j int) bool {
		return strings.ToLower(convs[i].Peer.Name) < strings.ToLower(convs[j].Peer.Name)
	})
}
