package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

// State is a session lifecycle stage.
type State int32

const (
	StateCreated State = iota
	StateHandshaking
	StateBootstrapping
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshaking:
		return "handshaking"
	case StateBootstrapping:
		return "bootstrapping"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the client side of a session: parsed commands in, server messages out.
// The transport owns Inbound and closes it when the client goes away; the
// session owns Outbound and closes it once it has stopped writing.
type Conn struct {
	Inbound    <-chan proto.Command
	Outbound   chan<- proto.ServerMessage
	RemoteAddr string
}

// SessionInfo is a point-in-time description of a session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Account    string    `json:"account,omitempty"`
	Character  string    `json:"character,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
}

// sessionContext is what every handler needs once the session is identified.
// It never changes after the handshake. Cancellation travels separately as
// the handler's context.
type sessionContext struct {
	client backend.Client
	events backend.EventStream
	self   backend.Character
}

// Session translates between one legacy client and the backend. It starts
// working as soon as it is created and stops when either direction ends.
type Session struct {
	id           string
	conn         Conn
	cache        *ClientCache
	opts         Options
	log          zerolog.Logger
	onIdentified func(*Session)
	onClosed     func(*Session, error)

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	characters *CharacterTable
	channels   *ChannelTable

	// membership serializes every change to the joined state of channels.
	membership sync.Mutex
	// echo orders our own channel sends against their echo on the event stream.
	echo sync.Mutex

	infoMu    sync.Mutex
	account   string
	character string
	startedAt time.Time
}

type sessionHooks struct {
	identified func(*Session)
	closed     func(*Session, error)
}

func newSession(parent context.Context, id string, conn Conn, cache *ClientCache, opts Options, hooks sessionHooks, logger *zerolog.Logger) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:           id,
		conn:         conn,
		cache:        cache,
		opts:         opts,
		log:          logger.With().Str("session_id", id).Logger(),
		onIdentified: hooks.identified,
		onClosed:     hooks.closed,
		cancel:       cancel,
		done:         make(chan struct{}),
		characters:   NewCharacterTable(opts.Clock, opts.RecentMessageTTL),
		channels:     NewChannelTable(opts.Clock, opts.RecentMessageTTL),
		startedAt:    opts.Clock.Now(),
	}
	s.state.Store(int32(StateCreated))

	go s.run(ctx)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug().Str("state", st.String()).Msg("session state")
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended; nil for a normal close. Valid after Done.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Close cancels the session and waits for teardown or ctx.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info describes the session.
func (s *Session) Info() SessionInfo {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return SessionInfo{
		ID:         s.id,
		Account:    s.account,
		Character:  s.character,
		RemoteAddr: s.conn.RemoteAddr,
		State:      s.State().String(),
		StartedAt:  s.startedAt,
	}
}

// Characters exposes the session's character table.
func (s *Session) Characters() *CharacterTable { return s.characters }

// Channels exposes the session's channel table.
func (s *Session) Channels() *ChannelTable { return s.channels }

func (s *Session) run(ctx context.Context) {
	err := s.lifecycle(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClientGone) {
		err = nil
	}

	s.setState(StateClosing)
	s.cancel()
	s.characters.Close()
	s.channels.Close()
	close(s.conn.Outbound)
	s.err = err

	if err != nil {
		s.log.Warn().Err(err).Msg("session ended with error")
	} else {
		s.log.Info().Msg("session closed")
	}
	if s.onClosed != nil {
		s.onClosed(s, err)
	}
	s.setState(StateClosed)
	close(s.done)
}

func (s *Session) lifecycle(ctx context.Context) error {
	sc, handle, err := s.handshake(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := handle.Release(); relErr != nil {
			s.log.Warn().Err(relErr).Msg("release backend client")
		}
	}()
	defer sc.events.Close()

	if s.onIdentified != nil {
		s.onIdentified(s)
	}

	s.setState(StateBootstrapping)
	if err := s.bootstrap(ctx, sc); err != nil {
		return err
	}

	s.setState(StateRunning)
	return s.serve(ctx, sc)
}

// serve runs both translation loops until one of them stops, then stops the other.
func (s *Session) serve(ctx context.Context, sc *sessionContext) error {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return s.commandLoop(loopCtx, sc)
	})
	g.Go(func() error {
		defer stop()
		return s.eventLoop(loopCtx, sc)
	})
	return g.Wait()
}

func (s *Session) commandLoop(ctx context.Context, sc *sessionContext) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-s.conn.Inbound:
			if !ok {
				s.log.Debug().Msg("client closed inbound queue")
				return nil
			}
			if err := s.dispatchCommand(ctx, sc, cmd); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Session) eventLoop(ctx context.Context, sc *sessionContext) error {
	for {
		ev, err := sc.events.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info().Msg("backend event stream ended")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.dispatchEvent(ctx, sc, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// send queues a message for the client, giving up when the session is cancelled.
func (s *Session) send(ctx context.Context, msg proto.ServerMessage) error {
	select {
	case s.conn.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) sendAll(ctx context.Context, msgs ...proto.ServerMessage) error {
	for _, msg := range msgs {
		if err := s.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// notify routes a character change through the table and forwards what it
// yields. A character that just came online gets a second pass so its status
// message, which NLN cannot carry, follows as STA.
func (s *Session) notify(ctx context.Context, id backend.CharacterID, change func(*CharacterEntry)) error {
	msg, err := s.characters.UpdateAndMaybeNotify(id, change)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	if err := s.send(ctx, msg); err != nil {
		return err
	}
	if _, cameOnline := msg.(proto.Online); !cameOnline {
		return nil
	}
	follow, err := s.characters.UpdateAndMaybeNotify(id, nil)
	if err != nil || follow == nil {
		return err
	}
	return s.send(ctx, follow)
}

// presenceFrom copies backend presence into an entry.
func presenceFrom(c backend.Character) func(*CharacterEntry) {
	return func(e *CharacterEntry) {
		if c.Status != "" {
			e.Status = c.Status
		}
		e.StatusMessage = c.StatusMessage
	}
}
