package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

func queued(out chan proto.ServerMessage) []string {
	var got []string
	for {
		select {
		case msg := <-out:
			got = append(got, msg.Code())
		default:
			return got
		}
	}
}

func TestReenumerateIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)
	ctx := context.Background()

	require.NoError(t, b.Join(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	assert.Equal(t, []string{"NLN", "JCH", "COL", "ICH", "CDS"}, queued(out))

	require.NoError(t, s.reenumerate(ctx, sc))
	assert.Empty(t, queued(out))

	require.NoError(t, b.Leave(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	assert.Equal(t, []string{"LCH"}, queued(out))

	require.NoError(t, s.reenumerate(ctx, sc))
	assert.Empty(t, queued(out))

	entry, ok := s.channels.TryGetByID(general)
	require.True(t, ok)
	assert.False(t, entry.Joined)
}

func TestJoinSequenceRecordsHistoryIDs(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)
	ctx := context.Background()

	id := b.AddHistory(general, bob, "old")
	require.NoError(t, b.Join(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	got := queued(out)
	require.NotEmpty(t, got)
	assert.Equal(t, "HIS", got[len(got)-1])

	// The same message arriving on the stream is not delivered twice.
	err := s.dispatchEvent(ctx, sc, backend.Event{
		Kind:    backend.EventChannelMessage,
		Channel: backend.Channel{ID: general},
		Message: backend.Message{ID: id, ChannelID: general, Author: backend.Character{ID: bob, Name: "Bob"}, Text: "old"},
	})
	require.NoError(t, err)
	assert.Empty(t, queued(out))
}

func TestLeaveClearsRecentMessages(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)
	ctx := context.Background()

	b.AddHistory(general, bob, "old")
	require.NoError(t, b.Join(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	queued(out)

	entry, _ := s.channels.TryGetByID(general)
	require.Equal(t, 1, entry.Recent().Len())

	require.NoError(t, b.Leave(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	assert.Zero(t, entry.Recent().Len())
}

func TestUnknownEventIsIgnored(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)

	err := s.dispatchEvent(context.Background(), sc, backend.Event{Kind: backend.EventUnknown, RawKind: "channel.topic"})
	require.NoError(t, err)
	assert.Empty(t, queued(out))
}

func TestPMUnreadForOtherCharacterIsDropped(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)

	err := s.dispatchEvent(context.Background(), sc, backend.Event{
		Kind:        backend.EventPMUnread,
		Character:   backend.Character{ID: alt, Name: "Alt"},
		Peer:        backend.Character{ID: bob, Name: "Bob"},
		UnreadCount: 3,
	})
	require.NoError(t, err)
	assert.Empty(t, queued(out))
}

func TestOperatorNamesOwnerFirst(t *testing.T) {
	b := newTestBackend(t)
	s, _, _ := bareSession(t, b, alice)

	s.characters.Ensure(backend.Character{ID: bob, Name: "Bob"})
	s.characters.Ensure(backend.Character{ID: carol, Name: "Carol"})
	s.characters.Ensure(backend.Character{ID: eve, Name: "Eve"})

	entry := s.channels.Ensure(backend.Channel{
		ID:        general,
		Name:      "General",
		Official:  true,
		Owner:     carol,
		Operators: []backend.CharacterID{eve, bob, carol},
	})
	assert.Equal(t, []string{"Carol", "Bob", "Eve"}, s.operatorNames(entry))

	ownerless := s.channels.Ensure(backend.Channel{ID: lounge, Operators: []backend.CharacterID{bob}})
	assert.Equal(t, []string{"", "Bob"}, s.operatorNames(ownerless))
}

func TestChannelMessageAfterLeaveIsDropped(t *testing.T) {
	b := newTestBackend(t)
	s, sc, out := bareSession(t, b, alice)
	ctx := context.Background()

	require.NoError(t, b.Join(alice, general))
	require.NoError(t, s.reenumerate(ctx, sc))
	require.NotEmpty(t, queued(out))

	ev := backend.Event{
		Kind: backend.EventChannelMessage,
		Message: backend.Message{
			ID:        "m-late",
			ChannelID: general,
			Author:    backend.Character{ID: bob, Name: "Bob"},
			Text:      "still there?",
		},
	}

	// The leave lands while the message waits behind an in-flight send.
	s.echo.Lock()
	done := make(chan error, 1)
	go func() { done <- s.onChannelMessage(ctx, sc, ev) }()
	time.Sleep(20 * time.Millisecond)
	_, err := s.channels.Update(general, func(e *ChannelEntry) { e.Joined = false })
	require.NoError(t, err)
	s.echo.Unlock()

	require.NoError(t, <-done)
	assert.Empty(t, queued(out))
}
