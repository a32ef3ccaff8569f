// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import (
	"errors"
	"fmt"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/scrobble"
)

// Op represents an operation that can fail.
type Op string

const (
	// Setup
	OpConfigLoad   Op = "load config"
	OpConfigWrite  Op = "write example config"
	OpLogSetup     Op = "set up logging"
	OpStoreOpen    Op = "open plays database"
	OpSourceCreate Op = "create playback source"
	OpSourceCheck  Op = "reach playback source"

	// Authorization
	OpAuthSpotify Op = "authorize Spotify"
	OpAuthLastfm  Op = "authorize Last.fm"

	// Running
	OpPoll  Op = "poll playback source"
	OpServe Op = "serve HTTP API"
	OpWatch Op = "run dashboard"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("Failed to %s: %v", op, err)
	if hint := Hint(err); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	msg := fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
	if hint := Hint(err); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

// Hint suggests a next step for errors the user can fix.
func Hint(err error) string {
	switch {
	case playback.IsUnauthorized(err), errors.Is(err, scrobble.ErrUnauthorized):
		return "run playlog -auth to sign in again"
	case errors.Is(err, scrobble.ErrNotConfigured):
		return "check the [[scrobblers]] settings"
	case errors.Is(err, playback.ErrInvalidConfig):
		return "check the [source] section of the config"
	case errors.Is(err, playback.ErrUnavailable):
		return "is the player running?"
	case playback.IsRateLimited(err), errors.Is(err, scrobble.ErrRateLimited):
		return "rate limited, try again later"
	}
	return ""
}
