package proto

// Protocol codes of the legacy line protocol. Client and server share most
// codes; the payload shape differs by direction.
const (
	CodeIdentify        = "IDN"
	CodeVariable        = "VAR"
	CodeHello           = "HLO"
	CodeConnected       = "CON"
	CodeFriends         = "FRL"
	CodeIgnore          = "IGN"
	CodeOperators       = "ADL"
	CodeUsers           = "LIS"
	CodeOnline          = "NLN"
	CodeOffline         = "FLN"
	CodeStatus          = "STA"
	CodeJoinChannel     = "JCH"
	CodeLeaveChannel    = "LCH"
	CodeChannelOps      = "COL"
	CodeChannelRoster   = "ICH"
	CodeChannelDesc     = "CDS"
	CodeChannelMessage  = "MSG"
	CodePrivateMessage  = "PRI"
	CodeTyping          = "TPN"
	CodeHistory         = "HIS"
	CodePMSubscription  = "PMS"
	CodePMUnread        = "PMU"
	CodeChannelList     = "CHA"
	CodeOpenChannelList = "ORS"
	CodeTabClosed       = "TBC"
	CodeError           = "ERR"
	CodeSystem          = "SYS"
	CodePing            = "PIN"
)

// Legacy status names.
const (
	StatusOnline  = "online"
	StatusLooking = "looking"
	StatusBusy    = "busy"
	StatusAway    = "away"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)

// Error numbers carried by ERR.
const (
	ErrInternal             = -1
	ErrSyntax               = 1
	ErrNotIdentified        = 3
	ErrIdentificationFailed = 4
	ErrCharacterNotFound    = 6
	ErrUnknownCommand       = 8
	ErrChannelNotFound      = 26
	ErrAlreadyInChannel     = 28
	ErrNotInChannel         = 44
	ErrChatNotEnabled       = 61
)

// CommandKind is the discriminant of a client command.
type CommandKind int

const (
	// CommandUnknown is any code the gateway does not handle; Code carries it.
	CommandUnknown CommandKind = iota
	// CommandLogin identifies the connection: Account, Ticket, Character.
	CommandLogin
	// CommandJoin joins Channel.
	CommandJoin
	// CommandLeave leaves Channel.
	CommandLeave
	// CommandChannelMessage sends Message to Channel.
	CommandChannelMessage
	// CommandPrivateMessage sends Message to Character.
	CommandPrivateMessage
	// CommandStatus sets Status and StatusMessage.
	CommandStatus
	// CommandTyping reports Typing state towards Character.
	CommandTyping
	// CommandPMSubscription opens or closes (Open) the PM conversation with Character.
	CommandPMSubscription
	// CommandChannelList requests the official channel list.
	CommandChannelList
	// CommandOpenChannelList requests the list of open user channels.
	CommandOpenChannelList
	// CommandTabClosed reports the client closed Tab.
	CommandTabClosed
	// CommandPing is the keep-alive.
	CommandPing
)

var commandKindNames = map[CommandKind]string{
	CommandUnknown:         "unknown",
	CommandLogin:           "login",
	CommandJoin:            "join",
	CommandLeave:           "leave",
	CommandChannelMessage:  "channel_message",
	CommandPrivateMessage:  "private_message",
	CommandStatus:          "status",
	CommandTyping:          "typing",
	CommandPMSubscription:  "pm_subscription",
	CommandChannelList:     "channel_list",
	CommandOpenChannelList: "open_channel_list",
	CommandTabClosed:       "tab_closed",
	CommandPing:            "ping",
}

func (k CommandKind) String() string {
	if name, ok := commandKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a typed client command. Fields are populated per Kind.
type Command struct {
	Kind CommandKind
	Code string

	Account   string
	Ticket    string
	Character string
	Channel   string
	Message   string

	Status        string
	StatusMessage string
	Typing        string
	Open          bool
	Tab           string
}

// ServerMessage is anything the gateway sends to the client.
type ServerMessage interface {
	Code() string
}

// Identity confirms the logged-in character.
type Identity struct {
	Character string `json:"character"`
}

// Variable is a server variable; the gateway uses it for its capability notice.
type Variable struct {
	Variable string `json:"variable"`
	Value    any    `json:"value"`
}

// Hello is the welcome banner.
type Hello struct {
	Message string `json:"message"`
}

// ConnectedCount is the number of connected users.
type ConnectedCount struct {
	Count int `json:"count"`
}

// FriendList lists friend names.
type FriendList struct {
	Characters []string `json:"characters"`
}

// IgnoreList carries the ignore list; Action is "init" at login.
type IgnoreList struct {
	Action     string   `json:"action"`
	Characters []string `json:"characters"`
}

// OperatorList lists global operators.
type OperatorList struct {
	Ops []string `json:"ops"`
}

// UserList lists online users as [name, gender, status, statusmsg] tuples.
type UserList struct {
	Characters [][]string `json:"characters"`
}

// Online announces a character coming online.
type Online struct {
	Identity string `json:"identity"`
	Gender   string `json:"gender"`
	Status   string `json:"status"`
}

// Offline announces a character going offline.
type Offline struct {
	Character string `json:"character"`
}

// StatusChange announces a status or status message change.
type StatusChange struct {
	Character     string `json:"character"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusmsg"`
}

// CharacterRef is the nested {"identity": name} object of the protocol.
type CharacterRef struct {
	Identity string `json:"identity"`
}

// ChannelJoin reports a character joining a channel.
type ChannelJoin struct {
	Channel   string       `json:"channel"`
	Character CharacterRef `json:"character"`
	Title     string       `json:"title"`
}

// ChannelLeave reports a character leaving a channel.
type ChannelLeave struct {
	Channel   string `json:"channel"`
	Character string `json:"character"`
}

// ChannelOps lists a channel's operators; the first entry is the owner or "".
type ChannelOps struct {
	Channel string   `json:"channel"`
	Oplist  []string `json:"oplist"`
}

// ChannelRoster is the initial user list of a joined channel.
type ChannelRoster struct {
	Channel string         `json:"channel"`
	Users   []CharacterRef `json:"users"`
	Mode    string         `json:"mode"`
}

// ChannelDescription carries a channel description.
type ChannelDescription struct {
	Channel     string `json:"channel"`
	Description string `json:"description"`
}

// ChannelMessage is a message in a channel.
type ChannelMessage struct {
	Channel   string `json:"channel"`
	Character string `json:"character"`
	Message   string `json:"message"`
}

// PrivateMessage is a private message from Character.
type PrivateMessage struct {
	Character string `json:"character"`
	Message   string `json:"message"`
}

// History replays one past message. Channel is set for channel history,
// Character (the conversation peer) for PM history.
type History struct {
	Channel   string `json:"channel,omitempty"`
	Character string `json:"character,omitempty"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PMSubscribed tells the client a PM conversation is open.
type PMSubscribed struct {
	Character string `json:"character"`
}

// PMUnread tells the client a conversation has unread messages.
type PMUnread struct {
	Character string `json:"character"`
	Count     int    `json:"count"`
}

// ChannelListEntry is one official channel.
type ChannelListEntry struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Characters int    `json:"characters"`
}

// ChannelList lists official channels.
type ChannelList struct {
	Channels []ChannelListEntry `json:"channels"`
}

// OpenChannelEntry is one open user channel.
type OpenChannelEntry struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Characters int    `json:"characters"`
}

// OpenChannelList lists open user channels.
type OpenChannelList struct {
	Channels []OpenChannelEntry `json:"channels"`
}

// Error reports a failed command.
type Error struct {
	Number  int    `json:"number"`
	Message string `json:"message"`
}

// System is an informational message, optionally scoped to a channel.
type System struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

// Ping is the keep-alive reply.
type Ping struct{}

func (Identity) Code() string           { return CodeIdentify }
func (Variable) Code() string           { return CodeVariable }
func (Hello) Code() string              { return CodeHello }
func (ConnectedCount) Code() string     { return CodeConnected }
func (FriendList) Code() string         { return CodeFriends }
func (IgnoreList) Code() string         { return CodeIgnore }
func (OperatorList) Code() string       { return CodeOperators }
func (UserList) Code() string           { return CodeUsers }
func (Online) Code() string             { return CodeOnline }
func (Offline) Code() string            { return CodeOffline }
func (StatusChange) Code() string       { return CodeStatus }
func (ChannelJoin) Code() string        { return CodeJoinChannel }
func (ChannelLeave) Code() string       { return CodeLeaveChannel }
func (ChannelOps) Code() string         { return CodeChannelOps }
func (ChannelRoster) Code() string      { return CodeChannelRoster }
func (ChannelDescription) Code() string { return CodeChannelDesc }
func (ChannelMessage) Code() string     { return CodeChannelMessage }
func (PrivateMessage) Code() string     { return CodePrivateMessage }
func (History) Code() string            { return CodeHistory }
func (PMSubscribed) Code() string       { return CodePMSubscription }
func (PMUnread) Code() string           { return CodePMUnread }
func (ChannelList) Code() string        { return CodeChannelList }
func (OpenChannelList) Code() string    { return CodeOpenChannelList }
func (Error) Code() string              { return CodeError }
func (System) Code() string             { return CodeSystem }
func (Ping) Code() string               { return CodePing }
