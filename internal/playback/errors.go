package playback

import "errors"

var (
	ErrNotPlaying    = errors.New("playback: nothing playing")
	ErrUnauthorized  = errors.New("playback: unauthorized")
	ErrRateLimited   = errors.New("playback: rate limited")
	ErrTemporary     = errors.New("playback: temporary failure")
	ErrUnavailable   = errors.New("playback: source unavailable")
	ErrInvalidConfig = errors.New("playback: invalid config")
)

func IsNotPlaying(err error) bool   { return errors.Is(err, ErrNotPlaying) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsRateLimited(err error) bool  { return errors.Is(err, ErrRateLimited) }
func IsTemporary(err error) bool    { return errors.Is(err, ErrTemporary) }
