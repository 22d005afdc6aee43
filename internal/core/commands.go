package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

type commandHandler func(s *Session, ctx context.Context, sc *sessionContext, cmd proto.Command) error

var commandHandlers = map[proto.CommandKind]commandHandler{
	proto.CommandLogin:           (*Session).handleLogin,
	proto.CommandJoin:            (*Session).handleJoin,
	proto.CommandLeave:           (*Session).handleLeave,
	proto.CommandChannelMessage:  (*Session).handleChannelMessage,
	proto.CommandPrivateMessage:  (*Session).handlePrivateMessage,
	proto.CommandStatus:          (*Session).handleStatus,
	proto.CommandTyping:          (*Session).handleTyping,
	proto.CommandPMSubscription:  (*Session).handlePMSubscription,
	proto.CommandChannelList:     (*Session).handleChannelList,
	proto.CommandOpenChannelList: (*Session).handleOpenChannelList,
	proto.CommandTabClosed:       (*Session).handleTabClosed,
	proto.CommandPing:            (*Session).handlePing,
}

// dispatchCommand runs the handler for cmd. A GatewayError is reported to the
// client and the session keeps going; any other error ends the session.
func (s *Session) dispatchCommand(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	s.log.Debug().Str("code", cmd.Code).Str("kind", cmd.Kind.String()).Msg("command")

	handler, ok := commandHandlers[cmd.Kind]
	if !ok {
		s.log.Debug().Str("code", cmd.Code).Msg("unsupported command")
		return s.send(ctx, proto.System{Message: fmt.Sprintf("Unsupported command %q.", cmd.Code)})
	}

	err := handler(s, ctx, sc, cmd)
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		s.log.Debug().Int("code", gwErr.Code).Str("reason", gwErr.Message).Msg("command rejected")
		return s.send(ctx, gwErr.toMessage())
	}
	if err != nil {
		s.log.Error().Err(err).Str("code", cmd.Code).Msg("command failed")
	}
	return err
}

func (s *Session) handleLogin(ctx context.Context, _ *sessionContext, _ proto.Command) error {
	return gatewayError(proto.ErrSyntax, "already identified")
}

func (s *Session) handleJoin(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	s.membership.Lock()
	defer s.membership.Unlock()

	entry, err := s.resolveChannel(ctx, sc, cmd.Channel)
	if err != nil {
		return err
	}
	if entry.Joined {
		return gatewayError(proto.ErrAlreadyInChannel, "you are already in channel %q", entry.Name)
	}
	if err := sc.client.JoinChannel(ctx, sc.self.ID, entry.ID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return channelNotFound(cmd.Channel)
		}
		return fmt.Errorf("join %s: %w", entry.Name, err)
	}
	// Our own join is confirmed by the backend's list, not assumed.
	return s.reenumerateLocked(ctx, sc)
}

func (s *Session) handleLeave(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	s.membership.Lock()
	defer s.membership.Unlock()

	entry, ok := s.channels.TryGetByName(cmd.Channel)
	if !ok || !entry.Joined {
		return notInChannel(cmd.Channel)
	}
	if err := sc.client.LeaveChannel(ctx, sc.self.ID, entry.ID); err != nil {
		return fmt.Errorf("leave %s: %w", entry.Name, err)
	}
	return s.markLeft(ctx, sc, entry)
}

func (s *Session) handleChannelMessage(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	entry, ok := s.channels.TryGetByName(cmd.Channel)
	if !ok || !entry.Joined {
		return notInChannel(cmd.Channel)
	}

	s.echo.Lock()
	defer s.echo.Unlock()
	id, err := sc.client.SendChannelMessage(ctx, sc.self.ID, entry.ID, cmd.Message)
	if err != nil {
		return fmt.Errorf("send to %s: %w", entry.Name, err)
	}
	entry.Recent().Add(id)
	return nil
}

func (s *Session) handlePrivateMessage(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	peer, err := s.resolveCharacter(ctx, sc, cmd.Character)
	if err != nil {
		return err
	}

	// The backend echoes the message back authored by us; onPMMessage drops it.
	if _, err := sc.client.SendPM(ctx, sc.self.ID, peer.ID, cmd.Message); err != nil {
		return fmt.Errorf("send pm to %s: %w", peer.Name, err)
	}

	// Sending opens the conversation on the backend.
	return s.notify(ctx, peer.ID, func(e *CharacterEntry) {
		e.HasOpenPM = true
	})
}

func (s *Session) handleStatus(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	status, ok := backendStatus(cmd.Status)
	if !ok {
		return gatewayError(proto.ErrSyntax, "unknown status %q", cmd.Status)
	}
	if err := sc.client.SetPresence(ctx, sc.self.ID, status, cmd.StatusMessage); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return s.notify(ctx, sc.self.ID, func(e *CharacterEntry) {
		e.Status = status
		e.StatusMessage = cmd.StatusMessage
	})
}

// handleTyping only validates the target; the backend has no typing notices.
func (s *Session) handleTyping(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	_, err := s.resolveCharacter(ctx, sc, cmd.Character)
	return err
}

func (s *Session) handlePMSubscription(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	peer, err := s.resolveCharacter(ctx, sc, cmd.Character)
	if err != nil {
		return err
	}
	if cmd.Open {
		if err := sc.client.OpenPM(ctx, sc.self.ID, peer.ID); err != nil {
			return fmt.Errorf("open pm with %s: %w", peer.Name, err)
		}
		return s.openConversation(ctx, sc, backend.Character{ID: peer.ID, Name: peer.Name})
	}
	return s.closeConversation(ctx, sc, peer)
}

func (s *Session) closeConversation(ctx context.Context, sc *sessionContext, peer CharacterEntry) error {
	if err := sc.client.ClosePM(ctx, sc.self.ID, peer.ID); err != nil {
		return fmt.Errorf("close pm with %s: %w", peer.Name, err)
	}
	return s.notify(ctx, peer.ID, func(e *CharacterEntry) {
		e.HasOpenPM = false
	})
}

func (s *Session) handleChannelList(ctx context.Context, sc *sessionContext, _ proto.Command) error {
	channels, err := sc.client.ListChannels(ctx, true)
	if err != nil {
		return fmt.Errorf("list official channels: %w", err)
	}
	out := proto.ChannelList{Channels: make([]proto.ChannelListEntry, 0, len(channels))}
	for _, ch := range channels {
		entry := s.channels.Ensure(ch)
		out.Channels = append(out.Channels, proto.ChannelListEntry{
			Name:       entry.Name,
			Mode:       "chat",
			Characters: ch.MemberCount,
		})
	}
	return s.send(ctx, out)
}

func (s *Session) handleOpenChannelList(ctx context.Context, sc *sessionContext, _ proto.Command) error {
	channels, err := sc.client.ListChannels(ctx, false)
	if err != nil {
		return fmt.Errorf("list open channels: %w", err)
	}
	out := proto.OpenChannelList{Channels: make([]proto.OpenChannelEntry, 0, len(channels))}
	for _, ch := range channels {
		entry := s.channels.Ensure(ch)
		out.Channels = append(out.Channels, proto.OpenChannelEntry{
			Name:       entry.Name,
			Title:      entry.Title,
			Characters: ch.MemberCount,
		})
	}
	return s.send(ctx, out)
}

// handleTabClosed closes the PM conversation behind a closed PM tab. Channel
// tabs are closed with LCH, so anything else is ignored.
func (s *Session) handleTabClosed(ctx context.Context, sc *sessionContext, cmd proto.Command) error {
	peer, ok := s.characters.TryGetByName(cmd.Tab)
	if !ok || !peer.HasOpenPM {
		return nil
	}
	return s.closeConversation(ctx, sc, peer)
}

func (s *Session) handlePing(ctx context.Context, _ *sessionContext, _ proto.Command) error {
	return s.send(ctx, proto.Ping{})
}

// resolveChannel finds a channel by legacy name: the table first, then the
// backend by id for synthesized names, then the official list by name.
func (s *Session) resolveChannel(ctx context.Context, sc *sessionContext, name string) (ChannelEntry, error) {
	if entry, ok := s.channels.TryGetByName(name); ok {
		return entry, nil
	}

	if len(name) > len(adhocPrefix) && strings.EqualFold(name[:len(adhocPrefix)], adhocPrefix) {
		ch, err := sc.client.Channel(ctx, backend.ChannelID(name[len(adhocPrefix):]))
		if errors.Is(err, backend.ErrNotFound) {
			return ChannelEntry{}, channelNotFound(name)
		}
		if err != nil {
			return ChannelEntry{}, fmt.Errorf("look up channel %s: %w", name, err)
		}
		if ch == nil {
			return ChannelEntry{}, channelNotFound(name)
		}
		return s.channels.Ensure(*ch), nil
	}

	official, err := sc.client.ListChannels(ctx, true)
	if err != nil {
		return ChannelEntry{}, fmt.Errorf("list official channels: %w", err)
	}
	for _, ch := range official {
		if strings.EqualFold(ch.Name, name) {
			return s.channels.Ensure(ch), nil
		}
	}
	return ChannelEntry{}, channelNotFound(name)
}

// resolveCharacter finds a character by name in the table or the backend.
func (s *Session) resolveCharacter(ctx context.Context, sc *sessionContext, name string) (CharacterEntry, error) {
	if entry, ok := s.characters.TryGetByName(name); ok {
		return entry, nil
	}
	c, err := sc.client.CharacterByName(ctx, name)
	if errors.Is(err, backend.ErrNotFound) || (err == nil && c == nil) {
		return CharacterEntry{}, characterNotFound(name)
	}
	if err != nil {
		return CharacterEntry{}, fmt.Errorf("look up character %s: %w", name, err)
	}
	return s.characters.Ensure(*c), nil
}
