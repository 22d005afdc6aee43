package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "gateway dev\n", out.String())
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    *proto.Command
		raw     string
		wantErr bool
	}{
		{name: "blank", line: "   "},
		{name: "channel text", line: "hello all", want: &proto.Command{Kind: proto.CommandChannelMessage, Channel: "Frontpage", Message: "hello all"}},
		{name: "join", line: "/join Helpdesk", want: &proto.Command{Kind: proto.CommandJoin, Channel: "Helpdesk"}},
		{name: "leave", line: "/leave Frontpage", want: &proto.Command{Kind: proto.CommandLeave, Channel: "Frontpage"}},
		{name: "join without channel", line: "/join", wantErr: true},
		{name: "pm", line: "/pm Linus  are you there?", want: &proto.Command{Kind: proto.CommandPrivateMessage, Character: "Linus", Message: "are you there?"}},
		{name: "pm without text", line: "/pm Linus", wantErr: true},
		{name: "status", line: "/status busy in a meeting", want: &proto.Command{Kind: proto.CommandStatus, Status: "busy", StatusMessage: "in a meeting"}},
		{name: "list", line: "/list", want: &proto.Command{Kind: proto.CommandChannelList}},
		{name: "raw", line: "/raw ORS", raw: "ORS"},
		{name: "unknown", line: "/dance", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, raw, err := parseInput(tt.line, "Frontpage")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
			assert.Equal(t, tt.raw, raw)
		})
	}
}

func TestParseInputWithoutChannel(t *testing.T) {
	_, _, err := parseInput("hello", "")
	assert.Error(t, err)
}

func TestFormatLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: `MSG {"channel":"Frontpage","character":"Linus","message":"hi"}`, want: "[Frontpage] Linus: hi"},
		{line: `PRI {"character":"Linus","message":"psst"}`, want: "[pm] Linus: psst"},
		{line: `HIS {"channel":"Frontpage","from":"Ada","message":"old","timestamp":1}`, want: "[Frontpage] (history) Ada: old"},
		{line: `HIS {"character":"Linus","from":"Linus","message":"old pm","timestamp":1}`, want: "[pm Linus] (history) Linus: old pm"},
		{line: `JCH {"channel":"Frontpage","character":{"identity":"Ada"},"title":"Frontpage"}`, want: "[Frontpage] Ada joined"},
		{line: `LCH {"channel":"Frontpage","character":"Ada"}`, want: "[Frontpage] Ada left"},
		{line: `ERR {"number":44,"message":"not in channel"}`, want: "error 44: not in channel"},
		{line: `SYS {"message":"Unsupported command \"XYZ\"."}`, want: `* Unsupported command "XYZ".`},
		{line: `NLN {"identity":"Linus","gender":"male","status":"busy"}`, want: ""},
		{line: `PMU {"character":"Linus","count":2}`, want: `PMU {"character":"Linus","count":2}`},
		{line: "x", want: "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatLine(tt.line), tt.line)
	}
}
