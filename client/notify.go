package client

import (
	"errors"
	"io"
	"log/slog"
	"maps"
	"strconv"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// ErrNotPermitted is returned by a SystemNotifier when the platform denies notifications.
var ErrNotPermitted = errors.New("client: notifications not permitted")

// Sound plays an audio cue.
type Sound interface {
	Play() error
}

// SystemNotifier raises a local system notification.
type SystemNotifier interface {
	Notify(title, body string) error
}

// BellSound writes the terminal bell to W.
type BellSound struct {
	W io.Writer
}

func (b BellSound) Play() error {
	if b.W == nil {
		return nil
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}

// LogNotifier records notifications on a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(title, body string) error {
	if n.Log == nil {
		return ErrNotPermitted
	}
	n.Log.Info("client.notify", "title", title, "body", body)
	return nil
}

const badgeCap = 9

// NotificationDispatcher keeps per-sender unread counters and raises alerts for messages
// outside the active conversation. Session owns it; it is not safe for concurrent use.
type NotificationDispatcher struct {
	log      *slog.Logger
	sound    Sound
	notifier SystemNotifier
	unread   map[string]int
}

// NewNotificationDispatcher builds a dispatcher. sound and notifier may be nil.
func NewNotificationDispatcher(log *slog.Logger, sound Sound, notifier SystemNotifier) *NotificationDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationDispatcher{
		log:      log,
		sound:    sound,
		notifier: notifier,
		unread:   make(map[string]int),
	}
}

// OnIncoming counts and alerts for m unless it is the caller's own echo or comes from the
// active counterpart. It reports whether an alert was raised.
func (d *NotificationDispatcher) OnIncoming(m v1.Message, active, self string) bool {
	if m.SenderID == self || m.SenderID == active {
		return false
	}

	d.unread[m.SenderID]++

	if d.sound != nil {
		if err := d.sound.Play(); err != nil {
			d.log.Debug("client.sound.fail", "err", err)
		}
	}
	if d.notifier != nil {
		if err := d.notifier.Notify("New message from "+m.SenderID, preview(m)); err != nil && !errors.Is(err, ErrNotPermitted) {
			d.log.Debug("client.notify.fail", "err", err)
		}
	}
	return true
}

// Reset zeroes the counter for id.
func (d *NotificationDispatcher) Reset(id string) {
	delete(d.unread, id)
}

func (d *NotificationDispatcher) Unread(id string) int { return d.unread[id] }

// Badge renders the unread counter for display: empty for zero, capped at "9+".
func (d *NotificationDispatcher) Badge(id string) string {
	n := d.unread[id]
	switch {
	case n <= 0:
		return ""
	case n > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(n)
	}
}

func (d *NotificationDispatcher) snapshot() map[string]int {
	return maps.Clone(d.unread)
}

func preview(m v1.Message) string {
	const previewRunes = 80
	if m.Text == "" {
		if m.Media != nil {
			return "Sent an attachment"
		}
		return ""
	}
	r := []rune(m.Text)
	if len(r) <= previewRunes {
		return m.Text
	}
	return string(r[:previewRunes-1]) + "…"
}
