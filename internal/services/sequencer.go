// internal/services/sequencer.go
package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
)

// Sequencer serializes every mutating operation of the ledgers, the scheduler
// and the dispatcher. An operation runs to completion, committed or rolled
// back, before the next one starts.
type Sequencer struct {
	mu  sync.Mutex
	db  *gorm.DB
	now func() time.Time
}

func NewSequencer(db *gorm.DB) *Sequencer {
	return &Sequencer{
		db:  db,
		now: time.Now,
	}
}

// SetClock replaces the time source. Used by tests and the seed command.
func (s *Sequencer) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Sequencer) Now() time.Time {
	return s.now().UTC()
}

// Do runs fn while holding the sequencer.
func (s *Sequencer) Do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Atomic runs fn while holding the sequencer inside one database transaction.
// The transaction is also carried by the context handed to fn.
func (s *Sequencer) Atomic(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return s.Do(func() error {
		return s.inTx(ctx, fn)
	})
}

type commitHooksKey struct{}

type commitHooks struct {
	fns []func()
}

// afterCommit defers fn until the sequenced transaction carried by ctx has
// committed. It is dropped when the transaction rolls back. Without a
// sequenced transaction fn runs at once.
func afterCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn()
}

// inTx must only be called while the sequencer is held.
func (s *Sequencer) inTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if _, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		return database.InTx(ctx, s.db, fn)
	}

	hooks := &commitHooks{}
	if err := database.InTx(context.WithValue(ctx, commitHooksKey{}, hooks), s.db, fn); err != nil {
		return err
	}
	for _, hook := range hooks.fns {
		hook()
	}
	return nil
}
