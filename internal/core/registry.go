package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/wirechat-gateway/internal/store"
)

const journalTimeout = 5 * time.Second

// Registry owns every open session.
type Registry struct {
	cache   *ClientCache
	opts    Options
	journal store.SessionJournal
	log     *zerolog.Logger

	// ctx is the parent of every session; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry whose sessions log in through cache.
// journal may be nil.
func NewRegistry(cache *ClientCache, opts Options, journal store.SessionJournal, logger *zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cache:    cache,
		opts:     opts.withDefaults(),
		journal:  journal,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// CreateSession registers and starts a session for conn. The session runs
// until the client goes away, the backend fails, or Shutdown is called;
// ctx only bounds the creation itself.
func (r *Registry) CreateSession(ctx context.Context, conn Conn) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	id := uuid.NewString()
	s := newSession(r.ctx, id, conn, r.cache, r.opts, sessionHooks{
		identified: r.sessionIdentified,
		closed:     r.notifyClosed,
	}, r.log)
	// The session may already be tearing down; its closed hook waits for r.mu.
	r.sessions[id] = s
	r.log.Debug().Str("session_id", id).Str("remote", conn.RemoteAddr).Msg("session created")
	return s, nil
}

// Sessions returns a snapshot of every registered session, oldest first.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown cancels every session and waits for all of them to tear down or
// for ctx to expire. Calling it again only waits for what is left.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	first := !r.closed
	r.closed = true
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	if first {
		r.log.Info().Int("sessions", len(list)).Msg("shutting down sessions")
	}
	r.cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, s := range list {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errs
}

func (r *Registry) sessionIdentified(s *Session) {
	if r.journal == nil {
		return
	}
	info := s.Info()
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	err := r.journal.RecordSessionStart(ctx, store.SessionRecord{
		ID:         info.ID,
		Account:    info.Account,
		Character:  info.Character,
		RemoteAddr: info.RemoteAddr,
		StartedAt:  info.StartedAt,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", info.ID).Msg("journal session start")
	}
}

// notifyClosed deregisters a session; it runs on the session's own goroutine
// during teardown.
func (r *Registry) notifyClosed(s *Session, cause error) {
	r.mu.Lock()
	delete(r.sessions, s.ID())
	r.mu.Unlock()

	info := s.Info()
	if r.journal == nil || info.Character == "" {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := r.journal.RecordSessionEnd(ctx, info.ID, r.opts.Clock.Now(), reason); err != nil {
		r.log.Warn().Err(err).Str("session_id", info.ID).Msg("journal session end")
	}
}
