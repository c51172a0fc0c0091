package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"codeberg.org/mutker/pulsemon/internal/metrics"
	"codeberg.org/mutker/pulsemon/internal/pulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) metrics.Config {
	t.Helper()

	dir := t.TempDir()
	return metrics.Config{
		Enabled:   true,
		DBPath:    filepath.Join(dir, "metrics.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 2,
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc, err := metrics.NewService(metrics.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	assert.NoError(t, svc.Record(context.Background(), &metrics.Snapshot{}))
	assert.Empty(t, svc.Session())
	assert.NoError(t, svc.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, metrics.Config{}.Validate())

	err := metrics.Config{Enabled: true}.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))

	err = metrics.Config{Enabled: true, DBPath: "x.db", BatchSize: -1}.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidBatch))
}

func TestServiceRecordsReadingsAndHeartbeats(t *testing.T) {
	cfg := testConfig(t)

	svc, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	session := svc.Session()
	require.NotEmpty(t, session)

	now := time.Now()
	snapshots := []*metrics.Snapshot{
		{Timestamp: now, Elapsed: 1000},
		{
			Timestamp:  now.Add(time.Second),
			Elapsed:    2000,
			BPM:        75,
			Available:  true,
			HistoryLen: 2,
			Beats: []pulse.Heartbeat{
				{Value: 800, Timestamp: 1000},
				{Value: 810, Timestamp: 1800},
			},
		},
		{
			Timestamp:  now.Add(2 * time.Second),
			Elapsed:    3000,
			BPM:        75,
			Available:  true,
			Jitter:     5 * time.Millisecond,
			HasJitter:  true,
			HistoryLen: 3,
			Beats:      []pulse.Heartbeat{{Value: 790, Timestamp: 2600}},
		},
	}
	for _, s := range snapshots {
		require.NoError(t, svc.Record(context.Background(), s))
	}

	require.NoError(t, svc.Close())

	db := openDB(t, cfg.DBPath)
	assert.Equal(t, 3, count(t, db, "SELECT COUNT(*) FROM readings WHERE session = ?", session))
	assert.Equal(t, 3, count(t, db, "SELECT COUNT(*) FROM heartbeats WHERE session = ?", session))
	assert.Equal(t, 1, count(t, db, "SELECT COUNT(*) FROM readings WHERE bpm IS NULL"))

	var jitter float64
	require.NoError(t, db.QueryRow("SELECT jitter_ms FROM readings WHERE elapsed_ms = 3000").Scan(&jitter))
	assert.InDelta(t, 5.0, jitter, 1e-9)
}

func TestServiceRejectsNilSnapshot(t *testing.T) {
	svc, err := metrics.NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer svc.Close()

	err = svc.Record(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidMetrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Record(ctx, &metrics.Snapshot{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 10 * time.Millisecond

	repo, err := metrics.NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record("s1", &metrics.Snapshot{Timestamp: time.Now(), Elapsed: 1000}))

	db := openDB(t, cfg.DBPath)
	assert.Eventually(t, func() bool {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&n); err != nil {
			return false
		}
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)

	old := openDB(t, cfg.DBPath)
	_, err := old.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE readings (legacy INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	repo, err := metrics.NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "metrics_v99_")

	db := openDB(t, cfg.DBPath)
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestGetSchemaVersionEmptyDatabase(t *testing.T) {
	db := openDB(t, filepath.Join(t.TempDir(), "empty.db"))

	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}
