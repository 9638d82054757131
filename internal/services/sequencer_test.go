// internal/services/sequencer_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
)

func newTestSequencer(t *testing.T) (*Sequencer, *gorm.DB) {
	t.Helper()
	db, err := database.Initialize(testConfig().Database)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { database.Close(db) })
	return NewSequencer(db), db
}

func TestAtomicRollsBack(t *testing.T) {
	seq, db := newTestSequencer(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&models.Batch{BatchID: "b-1", OwnerID: "coop"}).Error; err != nil {
			return err
		}
		// Collaborators see the same transaction through the context.
		var count int64
		require.NoError(t, database.Conn(ctx, db).Model(&models.Batch{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Batch{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAfterCommitRunsOnlyOnCommit(t *testing.T) {
	seq, _ := newTestSequencer(t)
	ctx := context.Background()

	var ran []string
	err := seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		afterCommit(ctx, func() { ran = append(ran, "rolled back") })
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, ran)

	err = seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		afterCommit(ctx, func() { ran = append(ran, "first") })
		afterCommit(ctx, func() { ran = append(ran, "second") })
		assert.Empty(t, ran)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)

	afterCommit(ctx, func() { ran = append(ran, "direct") })
	assert.Equal(t, "direct", ran[len(ran)-1])
}

func TestAtomicCommits(t *testing.T) {
	seq, db := newTestSequencer(t)

	err := seq.Atomic(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&models.Batch{BatchID: "b-1", OwnerID: "coop"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Batch{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAtomicSerializes(t *testing.T) {
	seq, _ := newTestSequencer(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = seq.Atomic(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestSequencerClock(t *testing.T) {
	seq, _ := newTestSequencer(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("UTC+2", 2*3600))
	seq.SetClock(func() time.Time { return fixed })

	assert.True(t, seq.Now().Equal(fixed))
	assert.Equal(t, time.UTC, seq.Now().Location())
}
