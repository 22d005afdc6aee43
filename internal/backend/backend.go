package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Authenticator.Login when the backend rejects the account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when a channel or character does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by calls on a client that has been closed.
	ErrClosed = errors.New("client closed")
)

// ChannelID is the backend's opaque channel identifier.
type ChannelID string

// CharacterID is the backend's opaque character identifier.
type CharacterID string

// Status is a character's presence.
type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusLooking Status = "looking"
	StatusBusy    Status = "busy"
	StatusAway    Status = "away"
	StatusDND     Status = "dnd"
)

// Character describes a character as the backend reports it.
type Character struct {
	ID            CharacterID
	Name          string
	AvatarPath    string
	Gender        string
	Status        Status
	StatusMessage string
}

// Channel describes a chat channel.
type Channel struct {
	ID          ChannelID
	Name        string
	Title       string
	Description string
	// Official channels keep their name in the legacy protocol.
	Official    bool
	Owner       CharacterID
	Operators   []CharacterID
	MemberCount int
}

// ChannelMember is one entry of a channel roster.
type ChannelMember struct {
	Character Character
	Role      string
}

// Message is a chat message in a channel or a PM conversation.
type Message struct {
	ID        string
	ChannelID ChannelID
	Author    Character
	// Recipient is set for private messages.
	Recipient CharacterID
	Text      string
	CreatedAt time.Time
}

// PMConversation is an open private-message conversation.
type PMConversation struct {
	Peer        Character
	UnreadCount int
}

// Authenticator logs in to the backend and yields a client bound to one account.
type Authenticator interface {
	Login(ctx context.Context, account, credential string) (Client, error)
}

// Client is an authenticated request/response connection to the backend.
// A Client is shared by every session logged in with the same credentials,
// so every call names the character it acts as.
type Client interface {
	// AccountCharacters lists every character of the account.
	AccountCharacters(ctx context.Context) ([]Character, error)
	// ChatEnabledCharacters lists characters currently enabled for chat.
	ChatEnabledCharacters(ctx context.Context) ([]CharacterID, error)
	// SetChatEnabledCharacters replaces the chat-enabled list.
	SetChatEnabledCharacters(ctx context.Context, ids []CharacterID) error

	// CharacterByName looks up any character's profile by name.
	CharacterByName(ctx context.Context, name string) (*Character, error)
	// Friends returns the friend list of a character.
	Friends(ctx context.Context, as CharacterID) ([]Character, error)
	// Ignores returns the ignore list of a character.
	Ignores(ctx context.Context, as CharacterID) ([]Character, error)
	// SetPresence changes the character's status and status message.
	SetPresence(ctx context.Context, as CharacterID, status Status, message string) error

	// ListChannels returns official or user-created public channels.
	ListChannels(ctx context.Context, official bool) ([]Channel, error)
	// Channel returns one channel by id.
	Channel(ctx context.Context, id ChannelID) (*Channel, error)
	// JoinedChannels is the authoritative list of channels the character is in.
	JoinedChannels(ctx context.Context, as CharacterID) ([]Channel, error)
	// ChannelMembers returns the current roster.
	ChannelMembers(ctx context.Context, id ChannelID) ([]ChannelMember, error)
	JoinChannel(ctx context.Context, as CharacterID, id ChannelID) error
	LeaveChannel(ctx context.Context, as CharacterID, id ChannelID) error
	// SendChannelMessage posts a message and returns its id.
	SendChannelMessage(ctx context.Context, as CharacterID, id ChannelID, text string) (string, error)
	// ChannelHistory returns up to limit most recent messages, oldest first.
	ChannelHistory(ctx context.Context, id ChannelID, limit int) ([]Message, error)

	// OpenPMs lists open PM conversations of the character.
	OpenPMs(ctx context.Context, as CharacterID) ([]PMConversation, error)
	OpenPM(ctx context.Context, as, peer CharacterID) error
	ClosePM(ctx context.Context, as, peer CharacterID) error
	// SendPM sends a private message and returns its id.
	SendPM(ctx context.Context, as, peer CharacterID, text string) (string, error)
	// PMHistory returns up to limit most recent messages, oldest first.
	PMHistory(ctx context.Context, as, peer CharacterID, limit int) ([]Message, error)

	// Events opens the push event stream for a character.
	Events(ctx context.Context, as CharacterID) (EventStream, error)

	// Close releases the connection; further calls fail with ErrClosed.
	Close() error
}

// EventStream delivers backend push events in order.
type EventStream interface {
	// Next blocks until an event arrives. It returns io.EOF when the stream ends.
	Next(ctx context.Context) (Event, error)
	Close() error
}
