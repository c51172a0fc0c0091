package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBoundsBufferWhenFlushFails(t *testing.T) {
	cfg := Config{
		Enabled:   true,
		DBPath:    filepath.Join(t.TempDir(), "metrics.db"),
		BatchSize: 3,
	}

	r, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	repo := r.(*repository)

	// Every flush fails from here on.
	require.NoError(t, repo.db.Close())

	limit := cfg.BatchSize * maxPendingBatches
	var last *Snapshot
	for i := 0; i < limit+7; i++ {
		last = &Snapshot{Timestamp: time.UnixMilli(int64(i)), Elapsed: 1000}
		err := repo.Record("session", last)
		if i+1 >= cfg.BatchSize {
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ErrTransactionFailed))
		}
		assert.LessOrEqual(t, len(repo.buffer), limit)
	}

	require.Len(t, repo.buffer, limit)
	assert.Same(t, last, repo.buffer[len(repo.buffer)-1].snapshot)
	assert.Equal(t, int64(7), repo.buffer[0].snapshot.Timestamp.UnixMilli())

	assert.Error(t, repo.Close())
}
