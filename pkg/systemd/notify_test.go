package systemd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	logx "tgrelay/pkg/logx"
)

func TestNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	sent, err := Ready()
	require.NoError(t, err)
	require.False(t, sent)

	sent, err = Status("relaying %d chats", 3)
	require.NoError(t, err)
	require.False(t, sent)

	// No WatchdogSec: returns immediately instead of blocking on ctx.
	require.NoError(t, Watchdog(context.Background(), logx.Nop(), nil))
}
