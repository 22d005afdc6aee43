package core

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/backend/memory"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

const (
	alice   = backend.CharacterID("c-alice")
	alt     = backend.CharacterID("c-alt")
	bob     = backend.CharacterID("c-bob")
	carol   = backend.CharacterID("c-carol")
	eve     = backend.CharacterID("c-eve")
	general = backend.ChannelID("ch-general")
	lounge  = backend.ChannelID("ch-lounge")
)

func testFixture() memory.Fixture {
	return memory.Fixture{
		Accounts: []memory.FixtureAccount{{Name: "acct", Credential: "ticket"}},
		Characters: []memory.FixtureCharacter{
			{ID: "c-alice", Name: "Alice", Account: "acct", ChatEnabled: true, Gender: "female", Status: "online", Friends: []string{"c-bob"}, Ignores: []string{"c-eve"}},
			{ID: "c-alt", Name: "Alt", Account: "acct"},
			{ID: "c-bob", Name: "Bob", Gender: "male", Status: "online"},
			{ID: "c-carol", Name: "Carol", Status: "offline"},
			{ID: "c-eve", Name: "Eve", Status: "online"},
		},
		Channels: []memory.FixtureChannel{
			{ID: "ch-general", Name: "General", Title: "General chat", Description: "Say hi", Official: true, Owner: "c-bob", Members: []string{"c-bob"}},
			{ID: "ch-lounge", Name: "lounge", Title: "Night lounge", Owner: "c-carol", Members: []string{"c-carol"}},
		},
	}
}

func newTestBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b, err := memory.FromFixture(testFixture())
	require.NoError(t, err)
	return b
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testOptions(clk clock.Clock) Options {
	opts := DefaultOptions()
	opts.Clock = clk
	return opts
}

// testConn is the client end of a session.
type testConn struct {
	in  chan proto.Command
	out chan proto.ServerMessage
}

func newTestConn() *testConn {
	return &testConn{
		in:  make(chan proto.Command, 16),
		out: make(chan proto.ServerMessage, 256),
	}
}

func (c *testConn) conn() Conn {
	return Conn{Inbound: c.in, Outbound: c.out, RemoteAddr: "127.0.0.1:40000"}
}

func (c *testConn) send(cmd proto.Command) {
	c.in <- cmd
}

func loginCommand(character string) proto.Command {
	return proto.Command{Kind: proto.CommandLogin, Code: proto.CodeIdentify, Account: "acct", Ticket: "ticket", Character: character}
}

// next returns the next outbound message or fails after two seconds.
func next(t *testing.T, out <-chan proto.ServerMessage) proto.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-out:
		if !ok {
			t.Fatalf("outbound queue closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no outbound message received")
	}
	return nil
}

// mustMessage skips messages until one of type T arrives.
func mustMessage[T proto.ServerMessage](t *testing.T, out <-chan proto.ServerMessage) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				var zero T
				t.Fatalf("outbound queue closed before %T", zero)
			}
			if m, ok := msg.(T); ok {
				return m
			}
		case <-deadline:
			var zero T
			t.Fatalf("expected message %T not received", zero)
		}
	}
}

// codes reads n messages and returns their codes.
func codes(t *testing.T, out <-chan proto.ServerMessage, n int) []string {
	t.Helper()
	got := make([]string, 0, n)
	for i := 0; i < n; i++ {
		got = append(got, next(t, out).Code())
	}
	return got
}

// expectSilence fails if anything is written within d.
func expectSilence(t *testing.T, out <-chan proto.ServerMessage, d time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-out:
		if ok {
			t.Fatalf("unexpected outbound %s: %+v", msg.Code(), msg)
		}
	case <-time.After(d):
	}
}

// drain discards everything queued right now.
func drain(out <-chan proto.ServerMessage) {
	for {
		select {
		case <-out:
		default:
			return
		}
	}
}

// waitClosed waits until the session has closed the outbound queue.
func waitClosed(t *testing.T, out <-chan proto.ServerMessage) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbound queue not closed")
		}
	}
}

type harness struct {
	backend  *memory.Backend
	clock    *clock.Mock
	cache    *ClientCache
	registry *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newTestBackend(t),
		clock:   clock.NewMock(),
	}
	h.cache = NewClientCache(h.backend, testLogger())
	h.registry = NewRegistry(h.cache, testOptions(h.clock), nil, testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.registry.Shutdown(ctx)
		_ = h.cache.Close()
	})
	return h
}

// start creates a session without identifying it.
func (h *harness) start(t *testing.T) (*Session, *testConn) {
	t.Helper()
	c := newTestConn()
	s, err := h.registry.CreateSession(context.Background(), c.conn())
	require.NoError(t, err)
	return s, c
}

// login identifies as character and waits until bootstrap has finished,
// discarding the bootstrap output.
func (h *harness) login(t *testing.T, character string) (*Session, *testConn) {
	t.Helper()
	s, c := h.start(t)
	c.send(loginCommand(character))
	waitRunning(t, s)
	drain(c.out)
	return s, c
}

func waitRunning(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == StateRunning
	}, 2*time.Second, 5*time.Millisecond)
}

// bareSession builds a session that is not running, for driving handlers
// and reconciliation directly.
func bareSession(t *testing.T, b *memory.Backend, self backend.CharacterID) (*Session, *sessionContext, chan proto.ServerMessage) {
	t.Helper()
	ctx := context.Background()

	client, err := b.Login(ctx, "acct", "ticket")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	chars, err := client.AccountCharacters(ctx)
	require.NoError(t, err)
	var me backend.Character
	for _, c := range chars {
		if c.ID == self {
			me = c
		}
	}
	require.NotEmpty(t, me.ID)

	events, err := client.Events(ctx, self)
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	clk := clock.NewMock()
	out := make(chan proto.ServerMessage, 256)
	opts := testOptions(clk).withDefaults()
	s := &Session{
		id:         "bare",
		conn:       Conn{Outbound: out},
		opts:       opts,
		log:        zerolog.Nop(),
		done:       make(chan struct{}),
		characters: NewCharacterTable(clk, opts.RecentMessageTTL),
		channels:   NewChannelTable(clk, opts.RecentMessageTTL),
	}
	s.characters.Ensure(me)
	t.Cleanup(func() {
		s.characters.Close()
		s.channels.Close()
	})
	return s, &sessionContext{client: client, events: events, self: me}, out
}
