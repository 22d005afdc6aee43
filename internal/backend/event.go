package backend

// EventKind identifies a push event type.
type EventKind int

const (
	// EventUnknown is an event type this gateway does not understand.
	EventUnknown EventKind = iota
	// EventChannelMessage is a new message in a channel.
	EventChannelMessage
	// EventPMMessage is a new private message to or from the character.
	EventPMMessage
	// EventChannelJoined reports a character joining a channel.
	EventChannelJoined
	// EventChannelLeft reports a character leaving a channel.
	EventChannelLeft
	// EventPresenceChanged reports a status or status message change.
	EventPresenceChanged
	// EventPMUnread reports unread messages in a PM conversation.
	EventPMUnread
)

var eventKindNames = map[EventKind]string{
	EventUnknown:         "unknown",
	EventChannelMessage:  "channel_message",
	EventPMMessage:       "pm_message",
	EventChannelJoined:   "channel_joined",
	EventChannelLeft:     "channel_left",
	EventPresenceChanged: "presence_changed",
	EventPMUnread:        "pm_unread",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a backend push notification. Fields are populated per Kind.
type Event struct {
	Kind EventKind
	// RawKind carries the backend's type name for EventUnknown.
	RawKind   string
	Channel   Channel
	Character Character
	Message   Message
	// Peer is the other party of a PM conversation for EventPMUnread.
	Peer        Character
	UnreadCount int
}
