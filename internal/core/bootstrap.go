package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

// bootstrap replays the backend state the client needs to rebuild its tabs.
// The order is part of the protocol: the client builds its state
// incrementally from this stream.
func (s *Session) bootstrap(ctx context.Context, sc *sessionContext) error {
	client, self := sc.client, sc.self

	friends, err := client.Friends(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("load friends: %w", err)
	}
	ignores, err := client.Ignores(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("load ignores: %w", err)
	}

	friendNames := make([]string, 0, len(friends))
	for _, f := range friends {
		friendNames = append(friendNames, s.characters.Ensure(f).Name)
	}
	ignoreNames := make([]string, 0, len(ignores))
	for _, ig := range ignores {
		ignoreNames = append(ignoreNames, s.characters.Ensure(ig).Name)
	}

	// The backend has no global connected count, operator list or user
	// list; the client gets them empty.
	err = s.sendAll(ctx,
		proto.Variable{Variable: "gateway_features", Value: Capabilities},
		proto.Hello{Message: s.opts.WelcomeMessage},
		proto.ConnectedCount{Count: 0},
		proto.FriendList{Characters: friendNames},
		proto.IgnoreList{Action: "init", Characters: ignoreNames},
		proto.OperatorList{Ops: []string{}},
		proto.UserList{Characters: [][]string{}},
	)
	if err != nil {
		return err
	}

	// Logging in through the legacy protocol means being online.
	err = s.notify(ctx, self.ID, func(e *CharacterEntry) {
		if !e.Online() {
			e.Status = backend.StatusOnline
		}
	})
	if err != nil {
		return err
	}
	for _, f := range friends {
		if err := s.notify(ctx, f.ID, nil); err != nil {
			return err
		}
	}

	if err := s.reenumerate(ctx, sc); err != nil {
		return err
	}

	convs, err := client.OpenPMs(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("load open conversations: %w", err)
	}
	for _, conv := range convs {
		if err := s.openConversation(ctx, sc, conv.Peer); err != nil {
			return err
		}
	}
	for _, conv := range convs {
		if conv.UnreadCount == 0 {
			continue
		}
		peer, _ := s.characters.TryGetByID(conv.Peer.ID)
		if err := s.send(ctx, proto.PMUnread{Character: peer.Name, Count: conv.UnreadCount}); err != nil {
			return err
		}
	}
	return nil
}

// openConversation marks a PM conversation open, tells the client, and
// replays its history.
func (s *Session) openConversation(ctx context.Context, sc *sessionContext, peer backend.Character) error {
	entry := s.characters.Ensure(peer)
	err := s.notify(ctx, entry.ID, func(e *CharacterEntry) {
		e.HasOpenPM = true
	})
	if err != nil {
		return err
	}
	if err := s.send(ctx, proto.PMSubscribed{Character: entry.Name}); err != nil {
		return err
	}

	history, err := sc.client.PMHistory(ctx, sc.self.ID, entry.ID, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load pm history with %s: %w", entry.Name, err)
	}
	recent, _ := s.characters.Recent(entry.ID)
	for _, m := range history {
		recent.Add(m.ID)
		author := s.characters.Ensure(m.Author)
		err := s.send(ctx, proto.History{
			Character: entry.Name,
			From:      author.Name,
			Message:   m.Text,
			Timestamp: m.CreatedAt.Unix(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// reenumerate reconciles the joined state with the backend's authoritative
// list: channels we are in but did not know about get a full join sequence,
// channels we thought we were in but are not get a leave. Running it again
// without a backend change sends nothing.
func (s *Session) reenumerate(ctx context.Context, sc *sessionContext) error {
	s.membership.Lock()
	defer s.membership.Unlock()
	return s.reenumerateLocked(ctx, sc)
}

func (s *Session) reenumerateLocked(ctx context.Context, sc *sessionContext) error {
	joined, err := sc.client.JoinedChannels(ctx, sc.self.ID)
	if err != nil {
		return fmt.Errorf("list joined channels: %w", err)
	}

	seen := make(map[backend.ChannelID]struct{}, len(joined))
	for _, ch := range joined {
		seen[ch.ID] = struct{}{}
		entry := s.channels.Ensure(ch)
		if entry.Joined {
			continue
		}
		entry, err := s.channels.Update(entry.ID, func(e *ChannelEntry) {
			e.Joined = true
		})
		if err != nil {
			return err
		}
		if err := s.joinSequence(ctx, sc, entry); err != nil {
			return err
		}
	}

	for _, entry := range s.channels.Joined() {
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		if err := s.markLeft(ctx, sc, entry); err != nil {
			return err
		}
	}
	return nil
}

// markLeft flips a channel to not joined and confirms the leave to the client.
// The caller must hold s.membership.
func (s *Session) markLeft(ctx context.Context, sc *sessionContext, entry ChannelEntry) error {
	_, err := s.channels.Update(entry.ID, func(e *ChannelEntry) {
		e.Joined = false
	})
	if err != nil {
		return err
	}
	entry.Recent().Clear()
	return s.send(ctx, proto.ChannelLeave{Channel: entry.Name, Character: sc.self.Name})
}

// joinSequence sends what the client expects after joining a channel:
// join confirmation, operators, roster, description, and history.
// Roster members the client has not seen online yet are announced first.
func (s *Session) joinSequence(ctx context.Context, sc *sessionContext, entry ChannelEntry) error {
	members, err := sc.client.ChannelMembers(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("load roster of %s: %w", entry.Name, err)
	}
	users := make([]proto.CharacterRef, 0, len(members))
	for _, m := range members {
		member := s.characters.Ensure(m.Character)
		if member.ID != sc.self.ID {
			if err := s.notify(ctx, member.ID, presenceFrom(m.Character)); err != nil {
				return err
			}
		}
		users = append(users, proto.CharacterRef{Identity: member.Name})
	}

	history, err := sc.client.ChannelHistory(ctx, entry.ID, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load history of %s: %w", entry.Name, err)
	}

	err = s.sendAll(ctx,
		proto.ChannelJoin{
			Channel:   entry.Name,
			Character: proto.CharacterRef{Identity: sc.self.Name},
			Title:     entry.Title,
		},
		proto.ChannelOps{Channel: entry.Name, Oplist: s.operatorNames(entry)},
		proto.ChannelRoster{Channel: entry.Name, Users: users, Mode: "chat"},
		proto.ChannelDescription{Channel: entry.Name, Description: entry.Description},
	)
	if err != nil {
		return err
	}

	for _, m := range history {
		entry.Recent().Add(m.ID)
		author := s.characters.Ensure(m.Author)
		err := s.send(ctx, proto.History{
			Channel:   entry.Name,
			From:      author.Name,
			Message:   m.Text,
			Timestamp: m.CreatedAt.Unix(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// operatorNames renders the COL list: owner first (or "" when unknown),
// then the remaining operators the session can name.
func (s *Session) operatorNames(entry ChannelEntry) []string {
	ops := []string{""}
	if owner, ok := s.characters.TryGetByID(entry.Owner); ok {
		ops[0] = owner.Name
	}
	for id := range entry.Operators {
		if id == entry.Owner {
			continue
		}
		if op, ok := s.characters.TryGetByID(id); ok {
			ops = append(ops, op.Name)
		}
	}
	sort.Strings(ops[1:])
	return ops
}
