package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

func newTestStore(t *testing.T) *ProcessStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "import.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewProcessStore(context.Background(), db)
	require.NoError(t, err)
	return store
}

func sampleState(id string, stage model.Stage) *model.ProcessState {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.ProcessState{
		ProcessID: id,
		Stage:     stage,
		Files: map[string][]model.DecodedLine{
			"bank.csv": {{
				Time:       &when,
				Columns:    map[string]string{"amount": "100.00", "type": "DEPOSIT"},
				SegmentID:  "seg-1",
				LineNumber: 2,
			}},
		},
		Formats:  map[string]string{"bank.csv": "bank-csv"},
		Segments: map[string]model.Segment{"seg-1": {ID: "seg-1", Time: when}},
	}
}

func TestProcessStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState("proc-1", model.StageSegmented)
	require.NoError(t, store.SaveState(ctx, state))

	loaded, err := store.LoadState(ctx, "proc-1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestProcessStoreUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState("proc-1", model.StageSegmented)
	require.NoError(t, store.SaveState(ctx, state))

	state.Stage = model.StageWaiting
	state.Directions = &model.Directions{
		Type: "ui",
		Key:  "rule",
		Element: model.UIElement{
			Type: model.ElementRuleEditor, SegmentID: "seg-1",
			Question: "No import rule matches these lines",
		},
	}
	require.NoError(t, store.SaveState(ctx, state))

	loaded, err := store.LoadState(ctx, "proc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageWaiting, loaded.Stage)
	require.NotNil(t, loaded.Directions)
	assert.Equal(t, "rule", loaded.Directions.Key)

	infos, err := store.ListProcesses(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1, "upsert does not grow the listing")
	assert.Equal(t, model.StageWaiting, infos[0].Stage)
}

func TestProcessStoreListOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, sampleState("proc-old", model.StageApplied)))
	require.NoError(t, store.SaveState(ctx, sampleState("proc-new", model.StageWaiting)))

	infos, err := store.ListProcesses(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "proc-new", infos[0].ProcessID)
}

func TestProcessStoreMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadState(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrProcessNotFound)

	err = store.DeleteProcess(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrProcessNotFound)
}

func TestProcessStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, sampleState("proc-1", model.StageApplied)))
	require.NoError(t, store.DeleteProcess(ctx, "proc-1"))

	_, err := store.LoadState(ctx, "proc-1")
	assert.ErrorIs(t, err, common.ErrProcessNotFound)
}
