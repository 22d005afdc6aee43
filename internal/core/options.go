package core

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultHistoryLimit = 50
	defaultWelcome      = "Welcome. Connected through the legacy gateway."
)

// Capabilities announced to the client in the capability notice.
var Capabilities = []string{"history-replay", "pm-subscriptions", "pm-unread"}

// Options tunes session behaviour.
type Options struct {
	WelcomeMessage string
	// AutoEnableChat enables a character for chat on login instead of
	// rejecting it. The legacy protocol assumes every account character can chat.
	AutoEnableChat   bool
	HistoryLimit     int
	RecentMessageTTL time.Duration
	Clock            clock.Clock
}

// DefaultOptions returns the options the gateway runs with unless configured otherwise.
func DefaultOptions() Options {
	return Options{
		WelcomeMessage:   defaultWelcome,
		AutoEnableChat:   true,
		HistoryLimit:     defaultHistoryLimit,
		RecentMessageTTL: DefaultRecentTTL,
		Clock:            clock.New(),
	}
}

func (o Options) withDefaults() Options {
	if o.WelcomeMessage == "" {
		o.WelcomeMessage = defaultWelcome
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.RecentMessageTTL <= 0 {
		o.RecentMessageTTL = DefaultRecentTTL
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}
