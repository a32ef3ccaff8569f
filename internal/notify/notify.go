// Package notify shows desktop notifications for recorded plays.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

// Urgency represents freedesktop notification priority levels.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification contains data for a desktop notification.
type Notification struct {
	Title      string
	Body       string
	Icon       string
	Timeout    int32 // ms, -1 = server default, 0 = never expire
	ReplacesID uint32
	Urgency    Urgency
}

// Notifier sends desktop notifications.
type Notifier interface {
	// Notify returns the notification ID, or 0 when notifications are
	// unavailable.
	Notify(n Notification) (uint32, error)
	Close(id uint32) error
}

// Observer announces every recorded play. Each notification replaces
// the previous one so they don't pile up.
type Observer struct {
	notifier Notifier
	logger   *slog.Logger
	lastID   uint32
}

func NewObserver(n Notifier, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{notifier: n, logger: logger}
}

func (o *Observer) NowPlaying(context.Context, playback.Snapshot) {}
func (o *Observer) Progress(context.Context, playback.Snapshot)   {}

func (o *Observer) Recorded(_ context.Context, p store.Play, _ playback.Snapshot) {
	body := strings.Join(p.Artists, ", ")
	if p.Album != "" {
		body += " - " + p.Album
	}
	id, err := o.notifier.Notify(Notification{
		Title:      "Recorded: " + p.TrackName,
		Body:       body,
		Icon:       "audio-x-generic",
		Timeout:    5000,
		ReplacesID: o.lastID,
		Urgency:    UrgencyLow,
	})
	if err != nil {
		o.logger.Warn("desktop notification failed", slog.Any("err", err))
		return
	}
	o.lastID = id
}
