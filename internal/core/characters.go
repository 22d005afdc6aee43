package core

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

// CharacterEntry is the session's view of one character.
type CharacterEntry struct {
	ID            backend.CharacterID
	Name          string
	AvatarPath    string
	Gender        string
	Status        backend.Status
	StatusMessage string
	HasOpenPM     bool

	// What the client was last told. announced is true while the client
	// believes the character is online.
	announced   bool
	sentStatus  backend.Status
	sentMessage string

	recent *recentSet
}

// Online reports whether the current status is anything but offline.
func (e *CharacterEntry) Online() bool {
	return e.Status != "" && e.Status != backend.StatusOffline
}

// notice compares the current presence with what the client last received
// and returns the single message that brings the client up to date, if any.
func (e *CharacterEntry) notice() proto.ServerMessage {
	online := e.Online()
	switch {
	case online && !e.announced:
		e.announced = true
		e.sentStatus = e.Status
		e.sentMessage = ""
		return proto.Online{Identity: e.Name, Gender: e.Gender, Status: legacyStatus(e.Status)}
	case !online && e.announced:
		e.announced = false
		e.sentStatus = backend.StatusOffline
		e.sentMessage = ""
		return proto.Offline{Character: e.Name}
	case online && (e.Status != e.sentStatus || e.StatusMessage != e.sentMessage):
		e.sentStatus = e.Status
		e.sentMessage = e.StatusMessage
		return proto.StatusChange{
			Character:     e.Name,
			Status:        legacyStatus(e.Status),
			StatusMessage: e.StatusMessage,
		}
	}
	return nil
}

// CharacterTable maps backend character ids to legacy names.
type CharacterTable struct {
	mu      sync.RWMutex
	entries []*CharacterEntry
	clock   clock.Clock
	ttl     time.Duration
}

// NewCharacterTable creates an empty table whose PM de-dup windows use clk and ttl.
func NewCharacterTable(clk clock.Clock, ttl time.Duration) *CharacterTable {
	return &CharacterTable{clock: clk, ttl: ttl}
}

func (t *CharacterTable) findLocked(match func(*CharacterEntry) bool) *CharacterEntry {
	for _, e := range t.entries {
		if match(e) {
			return e
		}
	}
	return nil
}

func byCharacterID(id backend.CharacterID) func(*CharacterEntry) bool {
	return func(e *CharacterEntry) bool { return e.ID == id }
}

func byCharacterName(name string) func(*CharacterEntry) bool {
	return func(e *CharacterEntry) bool { return strings.EqualFold(e.Name, name) }
}

// TryGetByID returns a copy of the entry with the given id.
func (t *CharacterTable) TryGetByID(id backend.CharacterID) (CharacterEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.findLocked(byCharacterID(id)); e != nil {
		return *e, true
	}
	return CharacterEntry{}, false
}

// TryGetByName returns a copy of the entry with the given legacy name, ignoring case.
func (t *CharacterTable) TryGetByName(name string) (CharacterEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.findLocked(byCharacterName(name)); e != nil {
		return *e, true
	}
	return CharacterEntry{}, false
}

// Add appends a new entry. Adding an id that is already present fails.
func (t *CharacterTable) Add(entry CharacterEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.findLocked(byCharacterID(entry.ID)) != nil {
		return ErrDuplicateEntry
	}
	t.addLocked(entry)
	return nil
}

func (t *CharacterTable) addLocked(entry CharacterEntry) *CharacterEntry {
	e := entry
	e.announced = false
	e.sentStatus = ""
	e.sentMessage = ""
	e.recent = newRecentSet(t.clock, t.ttl)
	t.entries = append(t.entries, &e)
	return &e
}

// Ensure returns the entry for c, creating it from the backend data if missing.
// Profile fields of an existing entry are refreshed; presence is not, since
// presence changes must go through UpdateAndMaybeNotify.
func (t *CharacterTable) Ensure(c backend.Character) CharacterEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.findLocked(byCharacterID(c.ID)); e != nil {
		if c.Name != "" {
			e.Name = c.Name
		}
		if c.Gender != "" {
			e.Gender = c.Gender
		}
		if c.AvatarPath != "" {
			e.AvatarPath = c.AvatarPath
		}
		return *e
	}
	status := c.Status
	if status == "" {
		status = backend.StatusOffline
	}
	e := t.addLocked(CharacterEntry{
		ID:            c.ID,
		Name:          c.Name,
		AvatarPath:    c.AvatarPath,
		Gender:        c.Gender,
		Status:        status,
		StatusMessage: c.StatusMessage,
	})
	return *e
}

// UpdateAndMaybeNotify applies change to the entry and returns at most one
// presence message (NLN, FLN or STA) for the client, or nil when the client
// is already up to date. A nil change only re-checks the delivered state.
func (t *CharacterTable) UpdateAndMaybeNotify(id backend.CharacterID, change func(*CharacterEntry)) (proto.ServerMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.findLocked(byCharacterID(id))
	if e == nil {
		return nil, ErrUnknownEntry
	}
	if change != nil {
		change(e)
	}
	return e.notice(), nil
}

// Recent returns the PM de-dup window of a character.
func (t *CharacterTable) Recent(id backend.CharacterID) (*recentSet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.findLocked(byCharacterID(id)); e != nil {
		return e.recent, true
	}
	return nil, false
}

// Close stops every pending de-dup timer.
func (t *CharacterTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.recent.Close()
	}
}

func legacyStatus(s backend.Status) string {
	switch s {
	case backend.StatusLooking:
		return proto.StatusLooking
	case backend.StatusBusy:
		return proto.StatusBusy
	case backend.StatusAway:
		return proto.StatusAway
	case backend.StatusDND:
		return proto.StatusDND
	case backend.StatusOffline, "":
		return proto.StatusOffline
	default:
		return proto.StatusOnline
	}
}

// backendStatus maps a legacy status name; the legacy "idle" maps to away.
func backendStatus(s string) (backend.Status, bool) {
	switch strings.ToLower(s) {
	case proto.StatusOnline:
		return backend.StatusOnline, true
	case proto.StatusLooking:
		return backend.StatusLooking, true
	case proto.StatusBusy:
		return backend.StatusBusy, true
	case proto.StatusAway, "idle":
		return backend.StatusAway, true
	case proto.StatusDND:
		return backend.StatusDND, true
	default:
		return "", false
	}
}
