// Package notify delivers local reminders to the user.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

type Notification struct {
	Title string
	Body  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a plain function to Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// QuickModeEnding is the reminder sent shortly before Quick Mode expires.
func QuickModeEnding(minutes int) Notification {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return Notification{
		Title: "Quick Mode ending soon",
		Body:  fmt.Sprintf("Your Quick Mode ends in %d %s. Open the app to extend it.", minutes, unit),
	}
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	log zerolog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (ln *LogNotifier) Notify(_ context.Context, n Notification) error {
	ln.log.Info().Str("title", n.Title).Msg(n.Body)
	return nil
}

// WriterNotifier prints notifications, one per line pair, for terminals.
type WriterNotifier struct {
	lock   sync.Mutex
	w      io.Writer
	prefix string
}

var _ Notifier = (*WriterNotifier)(nil)

func NewWriterNotifier(w io.Writer, prefix string) *WriterNotifier {
	return &WriterNotifier{w: w, prefix: prefix}
}

func (wn *WriterNotifier) Notify(_ context.Context, n Notification) error {
	wn.lock.Lock()
	defer wn.lock.Unlock()

	_, err := fmt.Fprintf(wn.w, "%s%s\n%s\n", wn.prefix, n.Title, n.Body)
	return err
}
