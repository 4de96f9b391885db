package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, runID := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.RecordStart(ctx, domain.RunRecord{
			RunID:         runID,
			SystemID:      "api",
			ApplicationID: "shop",
			Kind:          domain.CommandKindStart,
			PID:           1000 + i,
			Command:       "npm start",
			Directory:     "/src/shop",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.RecordStart(ctx, domain.RunRecord{
		RunID: "other", SystemID: "web", ApplicationID: "shop", Kind: domain.CommandKindDeploy,
		PID: 7, Command: "make deploy", Directory: "/src", StartedAt: base,
	}))

	code := 137
	require.NoError(t, store.RecordExit(ctx, "r1", base.Add(30*time.Second), &code, "killed", domain.RunOutcomeKilled))

	runs, err := store.ListRuns(ctx, "api", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, domain.RunOutcomeRunning, runs[0].Outcome)
	assert.Nil(t, runs[0].EndedAt)
	assert.Equal(t, "r2", runs[1].RunID)

	runs, err = store.ListRuns(ctx, "api", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	first := runs[2]
	assert.Equal(t, "r1", first.RunID)
	assert.Equal(t, domain.RunOutcomeKilled, first.Outcome)
	require.NotNil(t, first.ExitCode)
	assert.Equal(t, 137, *first.ExitCode)
	assert.Equal(t, "killed", first.Signal)
	require.NotNil(t, first.EndedAt)
	assert.True(t, first.EndedAt.Equal(base.Add(30*time.Second)))
	assert.True(t, first.StartedAt.Equal(base))
}

func TestStore_RecordExitUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.RecordExit(context.Background(), "missing", time.Now(), nil, "", domain.RunOutcomeFailed)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_RejectsUnknownKind(t *testing.T) {
	store := openTestStore(t)
	err := store.RecordStart(context.Background(), domain.RunRecord{RunID: "x", SystemID: "s", Kind: "restart", StartedAt: time.Now()})
	assert.True(t, errors.IsIOError(err))
}
