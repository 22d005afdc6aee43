package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

type chatOptions struct {
	addr      string
	account   string
	ticket    string
	character string
	channel   string
}

// chatCmd is a minimal terminal client speaking the legacy line protocol,
// handy for poking at a running gateway.
func chatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to a gateway as a legacy client",
		Long: `Connect to a gateway as a legacy client.

Lines typed are sent to the current channel. Commands:
  /join <channel>         join and switch to a channel
  /leave <channel>        leave a channel
  /pm <character> <text>  send a private message
  /status <status> [msg]  change status
  /list                   list official channels
  /raw <line>             send a protocol line as is`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "ws://localhost:8080/ws", "gateway websocket address")
	cmd.Flags().StringVar(&opts.account, "account", "demo", "account name")
	cmd.Flags().StringVar(&opts.ticket, "ticket", "demo-ticket", "login ticket")
	cmd.Flags().StringVar(&opts.character, "character", "Ada", "character to log in as")
	cmd.Flags().StringVar(&opts.channel, "channel", "Frontpage", "channel to join after login")
	return cmd
}

func runChat(parent context.Context, opts *chatOptions, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, opts.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(cmd proto.Command) error {
		line, err := proto.EncodeCommand(cmd)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, []byte(line))
	}

	if err := send(proto.Command{Kind: proto.CommandLogin, Account: opts.account, Ticket: opts.ticket, Character: opts.character}); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	if opts.channel != "" {
		if err := send(proto.Command{Kind: proto.CommandJoin, Channel: opts.channel}); err != nil {
			return fmt.Errorf("send join: %w", err)
		}
	}

	fmt.Fprintf(out, "Connected to %s as %s\n", opts.addr, opts.character)
	fmt.Fprintln(out, "Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		chatReadLoop(ctx, conn, out, send)
	}()

	current := opts.channel
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, raw, err := parseInput(line, current)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if raw != "" {
				err = conn.Write(ctx, websocket.MessageText, []byte(raw))
			} else if cmd != nil {
				if cmd.Kind == proto.CommandJoin {
					current = cmd.Channel
				}
				err = send(*cmd)
			}
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func chatReadLoop(ctx context.Context, conn *websocket.Conn, out io.Writer, send func(proto.Command) error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			fmt.Fprintf(out, "read error: %v\n", err)
			return
		}

		code, _, _ := proto.SplitLine(string(data))
		if code == proto.CodePing {
			if err := send(proto.Command{Kind: proto.CommandPing}); err != nil {
				return
			}
			continue
		}
		if text := formatLine(string(data)); text != "" {
			fmt.Fprintln(out, text)
		}
	}
}

// parseInput turns a typed line into a command, or a raw protocol line for /raw.
// Blank input yields neither.
func parseInput(line, current string) (*proto.Command, string, error) {
	text := strings.TrimSpace(line)
	if text == "" {
		return nil, "", nil
	}
	if !strings.HasPrefix(text, "/") {
		if current == "" {
			return nil, "", errors.New("not in a channel; use /join <channel>")
		}
		return &proto.Command{Kind: proto.CommandChannelMessage, Channel: current, Message: text}, "", nil
	}

	verb, rest, _ := strings.Cut(text[1:], " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "join", "leave":
		if rest == "" {
			return nil, "", fmt.Errorf("usage: /%s <channel>", verb)
		}
		kind := proto.CommandJoin
		if verb == "leave" {
			kind = proto.CommandLeave
		}
		return &proto.Command{Kind: kind, Channel: rest}, "", nil
	case "pm":
		who, msg, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(msg) == "" {
			return nil, "", errors.New("usage: /pm <character> <text>")
		}
		return &proto.Command{Kind: proto.CommandPrivateMessage, Character: who, Message: strings.TrimSpace(msg)}, "", nil
	case "status":
		if rest == "" {
			return nil, "", errors.New("usage: /status <status> [message]")
		}
		status, msg, _ := strings.Cut(rest, " ")
		return &proto.Command{Kind: proto.CommandStatus, Status: status, StatusMessage: strings.TrimSpace(msg)}, "", nil
	case "list":
		return &proto.Command{Kind: proto.CommandChannelList}, "", nil
	case "raw":
		if rest == "" {
			return nil, "", errors.New("usage: /raw <line>")
		}
		return nil, rest, nil
	default:
		return nil, "", fmt.Errorf("unknown command /%s", verb)
	}
}

// formatLine renders a server line for the terminal. Bootstrap noise the
// user does not need comes back empty.
func formatLine(line string) string {
	code, body, err := proto.SplitLine(line)
	if err != nil {
		return line
	}

	decode := func(v any) bool {
		return len(body) > 0 && json.Unmarshal(body, v) == nil
	}

	switch code {
	case proto.CodeChannelMessage:
		var m proto.ChannelMessage
		if decode(&m) {
			return fmt.Sprintf("[%s] %s: %s", m.Channel, m.Character, m.Message)
		}
	case proto.CodePrivateMessage:
		var m proto.PrivateMessage
		if decode(&m) {
			return fmt.Sprintf("[pm] %s: %s", m.Character, m.Message)
		}
	case proto.CodeHistory:
		var m proto.History
		if decode(&m) {
			where := m.Channel
			if where == "" {
				where = "pm " + m.Character
			}
			return fmt.Sprintf("[%s] (history) %s: %s", where, m.From, m.Message)
		}
	case proto.CodeJoinChannel:
		var m proto.ChannelJoin
		if decode(&m) {
			return fmt.Sprintf("[%s] %s joined", m.Channel, m.Character.Identity)
		}
	case proto.CodeLeaveChannel:
		var m proto.ChannelLeave
		if decode(&m) {
			return fmt.Sprintf("[%s] %s left", m.Channel, m.Character)
		}
	case proto.CodeIdentify:
		var m proto.Identity
		if decode(&m) {
			return "identified as " + m.Character
		}
	case proto.CodeHello:
		var m proto.Hello
		if decode(&m) {
			return m.Message
		}
	case proto.CodeError:
		var m proto.Error
		if decode(&m) {
			return fmt.Sprintf("error %d: %s", m.Number, m.Message)
		}
	case proto.CodeSystem:
		var m proto.System
		if decode(&m) {
			return "* " + m.Message
		}
	case proto.CodeVariable, proto.CodeConnected, proto.CodeOperators, proto.CodeUsers,
		proto.CodeOnline, proto.CodeOffline, proto.CodeStatus, proto.CodeChannelOps,
		proto.CodeChannelRoster, proto.CodeFriends, proto.CodeIgnore:
		return ""
	}
	return line
}
