package core

import (
	"context"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

type eventHandler func(s *Session, ctx context.Context, sc *sessionContext, ev backend.Event) error

var eventHandlers = map[backend.EventKind]eventHandler{
	backend.EventChannelMessage:  (*Session).onChannelMessage,
	backend.EventPMMessage:       (*Session).onPMMessage,
	backend.EventChannelJoined:   (*Session).onChannelJoined,
	backend.EventChannelLeft:     (*Session).onChannelLeft,
	backend.EventPresenceChanged: (*Session).onPresenceChanged,
	backend.EventPMUnread:        (*Session).onPMUnread,
}

func (s *Session) dispatchEvent(ctx context.Context, sc *sessionContext, ev backend.Event) error {
	handler, ok := eventHandlers[ev.Kind]
	if !ok {
		s.log.Warn().Str("kind", ev.RawKind).Msg("unsupported backend event")
		return nil
	}
	s.log.Debug().Str("kind", ev.Kind.String()).Msg("event")
	if err := handler(s, ctx, sc, ev); err != nil {
		s.log.Error().Err(err).Str("kind", ev.Kind.String()).Msg("event failed")
		return err
	}
	return nil
}

func eventChannelID(ev backend.Event) backend.ChannelID {
	if ev.Channel.ID != "" {
		return ev.Channel.ID
	}
	return ev.Message.ChannelID
}

func (s *Session) onChannelMessage(ctx context.Context, _ *sessionContext, ev backend.Event) error {
	entry, ok := s.channels.TryGetByID(eventChannelID(ev))
	if !ok || !entry.Joined {
		return nil
	}

	// Waits for a send of ours in flight to record its id. A leave may have
	// been confirmed meanwhile, so membership is checked again under the lock.
	s.echo.Lock()
	entry, ok = s.channels.TryGetByID(entry.ID)
	fresh := ok && entry.Joined && entry.Recent().Add(ev.Message.ID)
	s.echo.Unlock()
	if !fresh {
		return nil
	}

	author := s.characters.Ensure(ev.Message.Author)
	return s.send(ctx, proto.ChannelMessage{
		Channel:   entry.Name,
		Character: author.Name,
		Message:   ev.Message.Text,
	})
}

// onPMMessage forwards messages from other characters. Our own messages come
// back on the stream too; the legacy protocol has no way to show them.
func (s *Session) onPMMessage(ctx context.Context, sc *sessionContext, ev backend.Event) error {
	if ev.Message.Author.ID == sc.self.ID {
		return nil
	}

	author := s.characters.Ensure(ev.Message.Author)
	if recent, ok := s.characters.Recent(author.ID); ok && !recent.Add(ev.Message.ID) {
		return nil
	}
	err := s.notify(ctx, author.ID, func(e *CharacterEntry) {
		e.HasOpenPM = true
	})
	if err != nil {
		return err
	}
	return s.send(ctx, proto.PrivateMessage{Character: author.Name, Message: ev.Message.Text})
}

func (s *Session) onChannelJoined(ctx context.Context, sc *sessionContext, ev backend.Event) error {
	if ev.Character.ID == sc.self.ID {
		// Possibly another session on the same account; the backend list decides.
		if entry, ok := s.channels.TryGetByID(ev.Channel.ID); ok && entry.Joined {
			return nil
		}
		return s.reenumerate(ctx, sc)
	}

	entry, ok := s.channels.TryGetByID(ev.Channel.ID)
	if !ok || !entry.Joined {
		return nil
	}
	who := s.characters.Ensure(ev.Character)
	if err := s.notify(ctx, who.ID, presenceFrom(ev.Character)); err != nil {
		return err
	}
	return s.send(ctx, proto.ChannelJoin{
		Channel:   entry.Name,
		Character: proto.CharacterRef{Identity: who.Name},
		Title:     entry.Title,
	})
}

func (s *Session) onChannelLeft(ctx context.Context, sc *sessionContext, ev backend.Event) error {
	entry, ok := s.channels.TryGetByID(ev.Channel.ID)
	if !ok || !entry.Joined {
		return nil
	}
	if ev.Character.ID == sc.self.ID {
		return s.reenumerate(ctx, sc)
	}
	who := s.characters.Ensure(ev.Character)
	return s.send(ctx, proto.ChannelLeave{Channel: entry.Name, Character: who.Name})
}

// onPresenceChanged feeds every presence change through the funnel; the
// legacy presence notices are global, so there is no relevance filter.
func (s *Session) onPresenceChanged(ctx context.Context, _ *sessionContext, ev backend.Event) error {
	who := s.characters.Ensure(ev.Character)
	return s.notify(ctx, who.ID, presenceFrom(ev.Character))
}

func (s *Session) onPMUnread(ctx context.Context, sc *sessionContext, ev backend.Event) error {
	if ev.Character.ID != sc.self.ID {
		return nil
	}
	peer := s.characters.Ensure(ev.Peer)
	return s.send(ctx, proto.PMUnread{Character: peer.Name, Count: ev.UnreadCount})
}
