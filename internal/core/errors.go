package core

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

var (
	// ErrRegistryClosed is returned by CreateSession after Shutdown started.
	ErrRegistryClosed = errors.New("registry closed")
	// ErrDuplicateEntry is returned when adding an entry that is already present.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrUnknownEntry is returned when updating an entry that is not present.
	ErrUnknownEntry = errors.New("unknown entry")
	// ErrClientGone is returned when the client disconnects before identifying.
	ErrClientGone = errors.New("client disconnected")
)

// GatewayError is a failure reported to the client as an ERR message.
// During the handshake it ends the session; afterwards the session keeps running.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

func gatewayError(code int, format string, args ...any) *GatewayError {
	return &GatewayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func channelNotFound(name string) *GatewayError {
	return gatewayError(proto.ErrChannelNotFound, "could not locate the requested channel %q", name)
}

func characterNotFound(name string) *GatewayError {
	return gatewayError(proto.ErrCharacterNotFound, "could not locate the requested character %q", name)
}

func notInChannel(name string) *GatewayError {
	return gatewayError(proto.ErrNotInChannel, "you are not in channel %q", name)
}

func (e *GatewayError) toMessage() proto.Error {
	return proto.Error{Number: e.Code, Message: e.Message}
}
