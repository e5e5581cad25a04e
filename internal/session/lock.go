package session

import (
	"github.com/moby/locker"
	"go.uber.org/zap"
)

// HandleLocker serializes work per handle within one process. Entries are
// dropped by the underlying locker once nobody holds or waits on them.
type HandleLocker struct {
	locks *locker.Locker
}

func NewHandleLocker() *HandleLocker {
	return &HandleLocker{locks: locker.New()}
}

// Lock blocks until the handle is free and returns the matching unlock func.
func (l *HandleLocker) Lock(handle string) func() {
	l.locks.Lock(handle)
	return func() {
		if err := l.locks.Unlock(handle); err != nil {
			zap.L().Error("Handle unlock failed", zap.Error(err))
		}
	}
}
