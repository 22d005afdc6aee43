package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

// handshake reads the login command, authenticates through the client cache
// and opens the event stream. Any failure is reported with one ERR and ends
// the session; there is no second attempt on the same connection.
func (s *Session) handshake(ctx context.Context) (*sessionContext, *ClientHandle, error) {
	s.setState(StateHandshaking)

	var cmd proto.Command
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case c, ok := <-s.conn.Inbound:
		if !ok {
			return nil, nil, ErrClientGone
		}
		cmd = c
	}

	if cmd.Kind != proto.CommandLogin {
		return nil, nil, s.reject(ctx, gatewayError(proto.ErrNotIdentified, "identify with IDN before sending %s", cmd.Code))
	}

	handle, err := s.cache.Acquire(ctx, cmd.Account, cmd.Ticket)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			return nil, nil, s.reject(ctx, gatewayError(proto.ErrIdentificationFailed, "identification failed"))
		}
		s.log.Error().Err(err).Str("account", cmd.Account).Msg("backend login failed")
		return nil, nil, s.reject(ctx, gatewayError(proto.ErrIdentificationFailed, "backend login failed"))
	}

	sc, err := s.identify(ctx, handle.Client(), cmd)
	if err != nil {
		if relErr := handle.Release(); relErr != nil {
			s.log.Warn().Err(relErr).Msg("release backend client")
		}
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, nil, s.reject(ctx, gwErr)
		}
		if ctx.Err() != nil {
			return nil, nil, err
		}
		s.log.Error().Err(err).Str("account", cmd.Account).Msg("identify failed")
		return nil, nil, s.reject(ctx, gatewayError(proto.ErrIdentificationFailed, "backend unavailable"))
	}

	s.infoMu.Lock()
	s.account = cmd.Account
	s.character = sc.self.Name
	s.infoMu.Unlock()
	s.log = s.log.With().Str("character", sc.self.Name).Logger()
	s.log.Info().Str("account", cmd.Account).Msg("session identified")

	return sc, handle, nil
}

func (s *Session) identify(ctx context.Context, client backend.Client, cmd proto.Command) (*sessionContext, error) {
	self, err := resolveOwnCharacter(ctx, client, cmd.Character)
	if err != nil {
		return nil, err
	}
	if err := s.ensureChatEnabled(ctx, client, self); err != nil {
		return nil, err
	}

	events, err := client.Events(ctx, self.ID)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	s.characters.Ensure(self)
	if err := s.send(ctx, proto.Identity{Character: self.Name}); err != nil {
		_ = events.Close()
		return nil, err
	}
	return &sessionContext{client: client, events: events, self: self}, nil
}

func resolveOwnCharacter(ctx context.Context, client backend.Client, name string) (backend.Character, error) {
	chars, err := client.AccountCharacters(ctx)
	if err != nil {
		return backend.Character{}, fmt.Errorf("list account characters: %w", err)
	}
	for _, c := range chars {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return backend.Character{}, characterNotFound(name)
}

// ensureChatEnabled applies the auto-enable policy: a character that is not
// yet enabled for chat is added to the account's chat-enabled list, or
// rejected when the policy is off.
func (s *Session) ensureChatEnabled(ctx context.Context, client backend.Client, self backend.Character) error {
	enabled, err := client.ChatEnabledCharacters(ctx)
	if err != nil {
		return fmt.Errorf("list chat-enabled characters: %w", err)
	}
	for _, id := range enabled {
		if id == self.ID {
			return nil
		}
	}
	if !s.opts.AutoEnableChat {
		return gatewayError(proto.ErrChatNotEnabled, "character %q is not enabled for chat", self.Name)
	}

	s.log.Info().Str("character", self.Name).Msg("enabling character for chat")
	updated := append(append([]backend.CharacterID(nil), enabled...), self.ID)
	if err := client.SetChatEnabledCharacters(ctx, updated); err != nil {
		return fmt.Errorf("enable chat: %w", err)
	}
	return nil
}

// reject reports a handshake failure to the client and returns it.
func (s *Session) reject(ctx context.Context, gwErr *GatewayError) error {
	s.log.Info().Int("code", gwErr.Code).Str("reason", gwErr.Message).Msg("handshake rejected")
	if err := s.send(ctx, gwErr.toMessage()); err != nil {
		return err
	}
	return gwErr
}
