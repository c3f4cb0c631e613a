package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jrsteele09/flashybank-client/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestQuickModeEnding(t *testing.T) {
	n := notify.QuickModeEnding(30)
	require.Equal(t, "Quick Mode ending soon", n.Title)
	require.Equal(t, "Your Quick Mode ends in 30 minutes. Open the app to extend it.", n.Body)

	require.Equal(t, "Your Quick Mode ends in 1 minute. Open the app to extend it.", notify.QuickModeEnding(1).Body)
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewWriterNotifier(&buf, "* ")

	require.NoError(t, n.Notify(context.Background(), notify.Notification{Title: "T", Body: "B"}))
	require.Equal(t, "* T\nB\n", buf.String())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), notify.QuickModeEnding(5)))
	require.Contains(t, buf.String(), `"title":"Quick Mode ending soon"`)
	require.Contains(t, buf.String(), "ends in 5 minutes")
}

func TestNotifierFunc(t *testing.T) {
	var got notify.Notification
	var n notify.Notifier = notify.NotifierFunc(func(_ context.Context, note notify.Notification) error {
		got = note
		return nil
	})

	require.NoError(t, n.Notify(context.Background(), notify.Notification{Title: "hi"}))
	require.Equal(t, "hi", got.Title)
}
