package core

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

// adhocPrefix marks legacy names synthesized for channels without a stable name.
const adhocPrefix = "ADH-"

// ChannelEntry is the session's view of one channel.
type ChannelEntry struct {
	ID          backend.ChannelID
	BackendName string
	// Name is what the client sees and keys its tabs by; it never changes.
	Name        string
	Title       string
	Description string
	Official    bool
	Joined      bool
	Owner       backend.CharacterID
	Operators   map[backend.CharacterID]struct{}

	recent *recentSet
}

// Recent is the channel's message de-dup window.
func (e *ChannelEntry) Recent() *recentSet {
	return e.recent
}

// LegacyChannelName is the legacy name for a backend channel: official
// channels keep their name, everything else is addressed by its id.
func LegacyChannelName(ch backend.Channel) string {
	if ch.Official && ch.Name != "" {
		return ch.Name
	}
	return adhocPrefix + string(ch.ID)
}

func (e *ChannelEntry) snapshot() ChannelEntry {
	out := *e
	out.Operators = make(map[backend.CharacterID]struct{}, len(e.Operators))
	for id := range e.Operators {
		out.Operators[id] = struct{}{}
	}
	return out
}

func (e *ChannelEntry) refresh(ch backend.Channel) {
	if ch.Name != "" {
		e.BackendName = ch.Name
	}
	if ch.Title != "" {
		e.Title = ch.Title
	}
	if ch.Description != "" {
		e.Description = ch.Description
	}
	if ch.Owner != "" {
		e.Owner = ch.Owner
	}
	if ch.Operators != nil {
		e.Operators = make(map[backend.CharacterID]struct{}, len(ch.Operators))
		for _, id := range ch.Operators {
			e.Operators[id] = struct{}{}
		}
	}
}

// ChannelTable maps backend channel ids to legacy channel names.
type ChannelTable struct {
	mu      sync.RWMutex
	entries []*ChannelEntry
	clock   clock.Clock
	ttl     time.Duration
}

// NewChannelTable creates an empty table whose de-dup windows use clk and ttl.
func NewChannelTable(clk clock.Clock, ttl time.Duration) *ChannelTable {
	return &ChannelTable{clock: clk, ttl: ttl}
}

func (t *ChannelTable) findLocked(match func(*ChannelEntry) bool) *ChannelEntry {
	for _, e := range t.entries {
		if match(e) {
			return e
		}
	}
	return nil
}

func byChannelID(id backend.ChannelID) func(*ChannelEntry) bool {
	return func(e *ChannelEntry) bool { return e.ID == id }
}

func byChannelName(name string) func(*ChannelEntry) bool {
	return func(e *ChannelEntry) bool { return strings.EqualFold(e.Name, name) }
}

// TryGetByID returns a snapshot of the channel with the given backend id.
func (t *ChannelTable) TryGetByID(id backend.ChannelID) (ChannelEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.findLocked(byChannelID(id)); e != nil {
		return e.snapshot(), true
	}
	return ChannelEntry{}, false
}

// TryGetByName returns a snapshot of the channel with the given legacy name.
func (t *ChannelTable) TryGetByName(name string) (ChannelEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.findLocked(byChannelName(name)); e != nil {
		return e.snapshot(), true
	}
	return ChannelEntry{}, false
}

// Add appends a channel built from backend data. Adding an id that is
// already present fails.
func (t *ChannelTable) Add(ch backend.Channel) (ChannelEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.findLocked(byChannelID(ch.ID)) != nil {
		return ChannelEntry{}, ErrDuplicateEntry
	}
	return t.addLocked(ch).snapshot(), nil
}

func (t *ChannelTable) addLocked(ch backend.Channel) *ChannelEntry {
	e := &ChannelEntry{
		ID:       ch.ID,
		Name:     LegacyChannelName(ch),
		Official: ch.Official,
		recent:   newRecentSet(t.clock, t.ttl),
	}
	e.refresh(ch)
	if e.Title == "" {
		e.Title = ch.Name
	}
	if e.Operators == nil {
		e.Operators = make(map[backend.CharacterID]struct{})
	}
	t.entries = append(t.entries, e)
	return e
}

// Ensure returns the channel for ch, adding it if missing and refreshing
// title, description, owner and operators otherwise. The legacy name of an
// existing entry is kept.
func (t *ChannelTable) Ensure(ch backend.Channel) ChannelEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.findLocked(byChannelID(ch.ID)); e != nil {
		e.refresh(ch)
		return e.snapshot()
	}
	return t.addLocked(ch).snapshot()
}

// Update applies change to the channel under the table lock and returns the
// resulting snapshot.
func (t *ChannelTable) Update(id backend.ChannelID, change func(*ChannelEntry)) (ChannelEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.findLocked(byChannelID(id))
	if e == nil {
		return ChannelEntry{}, ErrUnknownEntry
	}
	name := e.Name
	change(e)
	e.Name = name
	return e.snapshot(), nil
}

// Joined returns snapshots of every channel the session is in.
func (t *ChannelTable) Joined() []ChannelEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ChannelEntry
	for _, e := range t.entries {
		if e.Joined {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Close stops every pending de-dup timer.
func (t *ChannelTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.recent.Close()
	}
}
