package service

import (
	"context"
	"sync"
)

// cardLocks hands out one exclusivity token per card id. Entries are
// reference counted and removed once no goroutine holds or waits on them.
type cardLocks struct {
	mu    sync.Mutex
	locks map[int64]*cardLock
}

type cardLock struct {
	token chan struct{}
	refs  int
}

func newCardLocks() *cardLocks {
	return &cardLocks{locks: make(map[int64]*cardLock)}
}

// acquire blocks until the token for cardID is held or ctx ends. The returned
// release func must be called exactly once.
func (l *cardLocks) acquire(ctx context.Context, cardID int64) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[cardID]
	if !ok {
		lk = &cardLock{token: make(chan struct{}, 1)}
		l.locks[cardID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.token <- struct{}{}:
		return func() {
			<-lk.token
			l.unref(cardID, lk)
		}, nil
	case <-ctx.Done():
		l.unref(cardID, lk)
		return nil, ctx.Err()
	}
}

func (l *cardLocks) unref(cardID int64, lk *cardLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, cardID)
	}
}

// size returns the number of live entries.
func (l *cardLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
