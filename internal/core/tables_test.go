package core

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

func TestCharacterTableLookups(t *testing.T) {
	table := NewCharacterTable(clock.NewMock(), 0)
	defer table.Close()

	_, ok := table.TryGetByName("Bob")
	assert.False(t, ok)

	table.Ensure(backend.Character{ID: bob, Name: "Bob", Gender: "male"})
	entry, ok := table.TryGetByName("bob")
	require.True(t, ok)
	assert.Equal(t, bob, entry.ID)
	assert.Equal(t, backend.StatusOffline, entry.Status)

	byID, ok := table.TryGetByID(bob)
	require.True(t, ok)
	assert.Equal(t, "Bob", byID.Name)

	assert.ErrorIs(t, table.Add(CharacterEntry{ID: bob, Name: "Bob"}), ErrDuplicateEntry)
	assert.NoError(t, table.Add(CharacterEntry{ID: carol, Name: "Carol"}))

	_, err := table.UpdateAndMaybeNotify("c-ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestEnsureDoesNotTouchPresence(t *testing.T) {
	table := NewCharacterTable(clock.NewMock(), 0)
	defer table.Close()

	table.Ensure(backend.Character{ID: bob, Name: "Bob", Status: backend.StatusOnline})
	entry := table.Ensure(backend.Character{ID: bob, Name: "Bob", Status: backend.StatusOffline, Gender: "male"})
	assert.Equal(t, backend.StatusOnline, entry.Status)
	assert.Equal(t, "male", entry.Gender)
}

func TestUpdateAndMaybeNotifyTransitions(t *testing.T) {
	table := NewCharacterTable(clock.NewMock(), 0)
	defer table.Close()
	table.Ensure(backend.Character{ID: bob, Name: "Bob"})

	set := func(status backend.Status, msg string) func(*CharacterEntry) {
		return func(e *CharacterEntry) {
			e.Status = status
			e.StatusMessage = msg
		}
	}

	steps := []struct {
		name   string
		change func(*CharacterEntry)
		want   proto.ServerMessage
	}{
		{name: "still offline", change: set(backend.StatusOffline, ""), want: nil},
		{name: "comes online", change: set(backend.StatusOnline, ""), want: proto.Online{Identity: "Bob", Status: proto.StatusOnline}},
		{name: "unchanged", change: set(backend.StatusOnline, ""), want: nil},
		{name: "status and message at once", change: set(backend.StatusBusy, "afk"), want: proto.StatusChange{Character: "Bob", Status: proto.StatusBusy, StatusMessage: "afk"}},
		{name: "message only", change: set(backend.StatusBusy, "back soon"), want: proto.StatusChange{Character: "Bob", Status: proto.StatusBusy, StatusMessage: "back soon"}},
		{name: "recheck", change: nil, want: nil},
		{name: "goes offline", change: set(backend.StatusOffline, "back soon"), want: proto.Offline{Character: "Bob"}},
		{name: "offline again", change: set(backend.StatusOffline, ""), want: nil},
		{name: "online with message", change: set(backend.StatusLooking, "lfg"), want: proto.Online{Identity: "Bob", Status: proto.StatusLooking}},
		{name: "message follows", change: nil, want: proto.StatusChange{Character: "Bob", Status: proto.StatusLooking, StatusMessage: "lfg"}},
	}

	for _, step := range steps {
		got, err := table.UpdateAndMaybeNotify(bob, step.change)
		require.NoError(t, err, step.name)
		assert.Equal(t, step.want, got, step.name)
	}
}

func TestLegacyStatusMapping(t *testing.T) {
	for _, name := range []string{"online", "looking", "busy", "away", "dnd"} {
		st, ok := backendStatus(name)
		require.True(t, ok, name)
		assert.Equal(t, name, legacyStatus(st))
	}

	st, ok := backendStatus("idle")
	require.True(t, ok)
	assert.Equal(t, backend.StatusAway, st)

	_, ok = backendStatus("offline")
	assert.False(t, ok)
	assert.Equal(t, proto.StatusOffline, legacyStatus(""))
}

func TestChannelTableNames(t *testing.T) {
	table := NewChannelTable(clock.NewMock(), 0)
	defer table.Close()

	official := table.Ensure(backend.Channel{ID: general, Name: "General", Official: true})
	assert.Equal(t, "General", official.Name)
	assert.Equal(t, "General", official.Title)

	adhoc, err := table.Add(backend.Channel{ID: lounge, Name: "lounge", Title: "Night lounge"})
	require.NoError(t, err)
	assert.Equal(t, "ADH-ch-lounge", adhoc.Name)
	assert.Equal(t, "Night lounge", adhoc.Title)

	_, err = table.Add(backend.Channel{ID: lounge})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	found, ok := table.TryGetByName("adh-CH-LOUNGE")
	require.True(t, ok)
	assert.Equal(t, lounge, found.ID)
}

func TestChannelNameIsStable(t *testing.T) {
	table := NewChannelTable(clock.NewMock(), 0)
	defer table.Close()

	table.Ensure(backend.Channel{ID: general, Name: "General", Official: true})
	refreshed := table.Ensure(backend.Channel{ID: general, Name: "Renamed", Title: "New title", Official: true})
	assert.Equal(t, "General", refreshed.Name)
	assert.Equal(t, "New title", refreshed.Title)
	assert.Equal(t, "Renamed", refreshed.BackendName)

	updated, err := table.Update(general, func(e *ChannelEntry) {
		e.Name = "Other"
		e.Joined = true
	})
	require.NoError(t, err)
	assert.Equal(t, "General", updated.Name)
	assert.True(t, updated.Joined)

	_, err = table.Update("ch-ghost", func(*ChannelEntry) {})
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestChannelSnapshotsAreCopies(t *testing.T) {
	table := NewChannelTable(clock.NewMock(), 0)
	defer table.Close()

	entry := table.Ensure(backend.Channel{ID: general, Name: "General", Official: true, Operators: []backend.CharacterID{bob}})
	entry.Operators[carol] = struct{}{}

	again, ok := table.TryGetByID(general)
	require.True(t, ok)
	assert.Len(t, again.Operators, 1)

	assert.Empty(t, table.Joined())
	_, err := table.Update(general, func(e *ChannelEntry) { e.Joined = true })
	require.NoError(t, err)
	require.Len(t, table.Joined(), 1)
}
