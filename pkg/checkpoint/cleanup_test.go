package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/pkg/chat"
)

func retentionConfig(maxAgeDays int) config.CheckpointConfig {
	return config.CheckpointConfig{MaxAgeDays: maxAgeDays, CleanupSchedule: "0 3 * * *"}
}

func backdate(t *testing.T, store *Store, threadID string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(store.path(threadID), old, old))
}

func TestCleanup_SweepDeletesExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "stale", chat.State{Messages: []chat.Message{chat.NewUserMessage("old")}}))
	require.NoError(t, store.Save(ctx, "fresh", chat.State{Messages: []chat.Message{chat.NewUserMessage("new")}}))
	backdate(t, store, "stale", 40*24*time.Hour)

	cleanup := NewCleanup(store, retentionConfig(30), zerolog.Nop())
	require.NoError(t, cleanup.SweepNow())

	threads, err := store.ListThreads()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, threads)
}

func TestCleanup_ZeroMaxAgeKeepsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ancient", chat.State{Messages: []chat.Message{chat.NewUserMessage("old")}}))
	backdate(t, store, "ancient", 365*24*time.Hour)

	cleanup := NewCleanup(store, retentionConfig(0), zerolog.Nop())
	require.NoError(t, cleanup.SweepNow())

	threads, err := store.ListThreads()
	require.NoError(t, err)
	assert.Equal(t, []string{"ancient"}, threads)

	// Start with retention disabled never schedules a sweep
	require.NoError(t, cleanup.Start())
	assert.False(t, cleanup.IsRunning())
}

func TestCleanup_StartStop(t *testing.T) {
	store := newTestStore(t)

	cleanup := NewCleanup(store, retentionConfig(30), zerolog.Nop())
	require.NoError(t, cleanup.Start())
	assert.True(t, cleanup.IsRunning())

	assert.Error(t, cleanup.Start())

	cleanup.Stop()
	assert.False(t, cleanup.IsRunning())
}

func TestCleanup_RejectsBadSchedule(t *testing.T) {
	store := newTestStore(t)

	cleanup := NewCleanup(store, config.CheckpointConfig{MaxAgeDays: 30, CleanupSchedule: "not a cron line"}, zerolog.Nop())
	assert.Error(t, cleanup.Start())
}
