package trace

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRun_RecordsControllerOutput(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	clk := clock.NewManual()

	run, err := store.StartRun(ctx, "north left", clk)
	require.NoError(t, err)

	cfg := junction.DefaultConfig()
	cfg.Clock = clk
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl, err := junction.New(junction.StandardRules(), cfg, run.Listen)
	require.NoError(t, err)
	defer ctrl.Close()

	ctrl.ReportSensor(junction.NorthLeft, true)
	clk.Advance(100 * time.Millisecond)
	ctrl.ReportSensor(junction.NorthLeft, false)
	clk.Advance(6 * time.Second)
	require.NoError(t, run.Err())

	entries, err := store.Entries(ctx, run.ID())
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, 1, entries[0].Seq)
	assert.Nil(t, entries[0].Green)
	assert.Equal(t, junction.Red, entries[0].Lights[junction.NorthLeft])

	assert.Equal(t, []junction.SensorID{junction.NorthLeft, junction.SouthLeft}, entries[1].Green)
	assert.Equal(t, clock.Epoch, entries[1].At)

	assert.Equal(t, []junction.SensorID{junction.NorthLeft, junction.SouthLeft}, entries[2].Yellow)
	assert.Equal(t, clock.Epoch.Add(4*time.Second), entries[2].At)
	assert.Equal(t, junction.Yellow, entries[2].Lights[junction.SouthLeft])
	assert.Len(t, entries[2].Lights, 9)

	assert.Nil(t, entries[3].Green)
	assert.Nil(t, entries[3].Yellow)
	assert.Equal(t, clock.Epoch.Add(5*time.Second), entries[3].At)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	clk := clock.NewManual()

	first, err := store.StartRun(ctx, "first", clk)
	require.NoError(t, err)
	first.Listen(junction.AllRed([]junction.SensorID{junction.NorthLeft}))
	first.Listen(junction.AllRed([]junction.SensorID{junction.NorthLeft}))

	clk.Advance(time.Minute)
	_, err = store.StartRun(ctx, "second", clk)
	require.NoError(t, err)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "first", runs[0].Name)
	assert.Equal(t, 2, runs[0].States)
	assert.Equal(t, clock.Epoch, runs[0].StartedAt)
	assert.Equal(t, "second", runs[1].Name)
	assert.Zero(t, runs[1].States)
	assert.Equal(t, clock.Epoch.Add(time.Minute), runs[1].StartedAt)
}

func TestOpen_ExistingTrace(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)

	_, err := store.StartRun(ctx, "kept", clock.NewManual())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].Name)
}

func TestRun_KeepsFirstWriteError(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	run, err := store.StartRun(ctx, "closed", clock.NewManual())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	run.Listen(junction.AllRed([]junction.SensorID{junction.NorthLeft}))
	run.Listen(junction.AllRed([]junction.SensorID{junction.NorthLeft}))

	assert.Error(t, run.Err())
}

func TestEntries_UnknownRun(t *testing.T) {
	store, _ := openTestStore(t)

	entries, err := store.Entries(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
