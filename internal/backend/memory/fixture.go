package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

// Fixture is the YAML description of a seeded backend.
type Fixture struct {
	Accounts   []FixtureAccount   `yaml:"accounts"`
	Characters []FixtureCharacter `yaml:"characters"`
	Channels   []FixtureChannel   `yaml:"channels"`
}

// FixtureAccount is one login.
type FixtureAccount struct {
	Name       string `yaml:"name"`
	Credential string `yaml:"credential"`
}

// FixtureCharacter is one character; Account may be empty for characters
// nobody logs in as.
type FixtureCharacter struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Account       string   `yaml:"account,omitempty"`
	ChatEnabled   bool     `yaml:"chat_enabled,omitempty"`
	Gender        string   `yaml:"gender,omitempty"`
	Avatar        string   `yaml:"avatar,omitempty"`
	Status        string   `yaml:"status,omitempty"`
	StatusMessage string   `yaml:"status_message,omitempty"`
	Friends       []string `yaml:"friends,omitempty"`
	Ignores       []string `yaml:"ignores,omitempty"`
}

// FixtureChannel is one channel and its initial roster.
type FixtureChannel struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Official    bool     `yaml:"official,omitempty"`
	Owner       string   `yaml:"owner,omitempty"`
	Operators   []string `yaml:"operators,omitempty"`
	Members     []string `yaml:"members,omitempty"`
}

// LoadFixture reads a YAML fixture file and builds a backend from it.
func LoadFixture(path string) (*Backend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return FromFixture(fx)
}

// FromFixture builds a backend from an in-memory fixture.
func FromFixture(fx Fixture) (*Backend, error) {
	b := New()
	for _, acc := range fx.Accounts {
		b.AddAccount(acc.Name, acc.Credential)
	}
	for _, ch := range fx.Characters {
		err := b.AddCharacter(ch.Account, backend.Character{
			ID:            backend.CharacterID(ch.ID),
			Name:          ch.Name,
			AvatarPath:    ch.Avatar,
			Gender:        ch.Gender,
			Status:        backend.Status(ch.Status),
			StatusMessage: ch.StatusMessage,
		}, ch.ChatEnabled)
		if err != nil {
			return nil, fmt.Errorf("character %s: %w", ch.ID, err)
		}
	}
	for _, ch := range fx.Characters {
		for _, f := range ch.Friends {
			b.AddFriend(backend.CharacterID(ch.ID), backend.CharacterID(f))
		}
		for _, ig := range ch.Ignores {
			b.AddIgnore(backend.CharacterID(ch.ID), backend.CharacterID(ig))
		}
	}
	for _, ch := range fx.Channels {
		info := backend.Channel{
			ID:          backend.ChannelID(ch.ID),
			Name:        ch.Name,
			Title:       ch.Title,
			Description: ch.Description,
			Official:    ch.Official,
			Owner:       backend.CharacterID(ch.Owner),
		}
		for _, op := range ch.Operators {
			info.Operators = append(info.Operators, backend.CharacterID(op))
		}
		members := make([]backend.CharacterID, 0, len(ch.Members))
		for _, m := range ch.Members {
			members = append(members, backend.CharacterID(m))
		}
		b.AddChannel(info, members...)
	}
	return b, nil
}
