package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for lines that are not "CODE" or "CODE {json}".
var ErrMalformed = errors.New("malformed line")

type identifyData struct {
	Method    string `json:"method"`
	Account   string `json:"account"`
	Ticket    string `json:"ticket"`
	Character string `json:"character"`
	Client    string `json:"cname,omitempty"`
	Version   string `json:"cversion,omitempty"`
}

type channelData struct {
	Channel string `json:"channel"`
	Message string `json:"message,omitempty"`
}

type privateData struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type statusData struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusmsg"`
}

type typingData struct {
	Character string `json:"character"`
	Status    string `json:"status"`
}

type subscriptionData struct {
	Character string `json:"character"`
	Open      bool   `json:"open"`
}

type tabData struct {
	Tab string `json:"tab"`
}

// ParseCommand decodes one client line into a Command. Unknown codes are
// not an error: they come back as CommandUnknown so the session can report them.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 {
		return Command{}, ErrMalformed
	}
	code := line[:3]
	body := strings.TrimSpace(line[3:])

	decode := func(v any) error {
		if body == "" {
			return fmt.Errorf("%s: missing body: %w", code, ErrMalformed)
		}
		if err := json.Unmarshal([]byte(body), v); err != nil {
			return fmt.Errorf("%s: %w", code, err)
		}
		return nil
	}

	cmd := Command{Code: code}
	switch code {
	case CodeIdentify:
		var d identifyData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandLogin
		cmd.Account, cmd.Ticket, cmd.Character = d.Account, d.Ticket, d.Character
	case CodeJoinChannel, CodeLeaveChannel, CodeChannelMessage:
		var d channelData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		switch code {
		case CodeJoinChannel:
			cmd.Kind = CommandJoin
		case CodeLeaveChannel:
			cmd.Kind = CommandLeave
		default:
			cmd.Kind = CommandChannelMessage
		}
		cmd.Channel, cmd.Message = d.Channel, d.Message
	case CodePrivateMessage:
		var d privateData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandPrivateMessage
		cmd.Character, cmd.Message = d.Recipient, d.Message
	case CodeStatus:
		var d statusData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandStatus
		cmd.Status, cmd.StatusMessage = d.Status, d.StatusMessage
	case CodeTyping:
		var d typingData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandTyping
		cmd.Character, cmd.Typing = d.Character, d.Status
	case CodePMSubscription:
		var d subscriptionData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandPMSubscription
		cmd.Character, cmd.Open = d.Character, d.Open
	case CodeTabClosed:
		var d tabData
		if err := decode(&d); err != nil {
			return Command{}, err
		}
		cmd.Kind = CommandTabClosed
		cmd.Tab = d.Tab
	case CodeChannelList:
		cmd.Kind = CommandChannelList
	case CodeOpenChannelList:
		cmd.Kind = CommandOpenChannelList
	case CodePing:
		cmd.Kind = CommandPing
	default:
		cmd.Kind = CommandUnknown
	}
	return cmd, nil
}

// EncodeCommand renders a command as a client line. It is the inverse of
// ParseCommand and is used by tools and tests that act as a client.
func EncodeCommand(cmd Command) (string, error) {
	var body any
	switch cmd.Kind {
	case CommandLogin:
		body = identifyData{Method: "ticket", Account: cmd.Account, Ticket: cmd.Ticket, Character: cmd.Character}
	case CommandJoin, CommandLeave, CommandChannelMessage:
		body = channelData{Channel: cmd.Channel, Message: cmd.Message}
	case CommandPrivateMessage:
		body = privateData{Recipient: cmd.Character, Message: cmd.Message}
	case CommandStatus:
		body = statusData{Status: cmd.Status, StatusMessage: cmd.StatusMessage}
	case CommandTyping:
		body = typingData{Character: cmd.Character, Status: cmd.Typing}
	case CommandPMSubscription:
		body = subscriptionData{Character: cmd.Character, Open: cmd.Open}
	case CommandTabClosed:
		body = tabData{Tab: cmd.Tab}
	}
	code := commandCode(cmd)
	if body == nil {
		return code, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", code, err)
	}
	return code + " " + string(data), nil
}

func commandCode(cmd Command) string {
	switch cmd.Kind {
	case CommandLogin:
		return CodeIdentify
	case CommandJoin:
		return CodeJoinChannel
	case CommandLeave:
		return CodeLeaveChannel
	case CommandChannelMessage:
		return CodeChannelMessage
	case CommandPrivateMessage:
		return CodePrivateMessage
	case CommandStatus:
		return CodeStatus
	case CommandTyping:
		return CodeTyping
	case CommandPMSubscription:
		return CodePMSubscription
	case CommandTabClosed:
		return CodeTabClosed
	case CommandChannelList:
		return CodeChannelList
	case CommandOpenChannelList:
		return CodeOpenChannelList
	case CommandPing:
		return CodePing
	default:
		return cmd.Code
	}
}

// Encode renders a server message as a protocol line.
func Encode(msg ServerMessage) (string, error) {
	if _, ok := msg.(Ping); ok {
		return CodePing, nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", msg.Code(), err)
	}
	return msg.Code() + " " + string(data), nil
}

// SplitLine returns the code and raw JSON body of a server line.
func SplitLine(line string) (string, json.RawMessage, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 {
		return "", nil, ErrMalformed
	}
	body := strings.TrimSpace(line[3:])
	if body == "" {
		return line[:3], nil, nil
	}
	return line[:3], json.RawMessage(body), nil
}
