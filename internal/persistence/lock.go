package persistence

import (
	"github.com/gofrs/flock"

	"spot-grid-bot-go/internal/models"
)

// Lock is an exclusive advisory lock next to the state file. Two bots sharing a state
// file would race on the single active order.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes <statePath>.lock without blocking. It fails if another process holds it.
func AcquireLock(statePath string) (*Lock, error) {
	fl := flock.New(statePath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, models.NewError(models.KindPersistence, "lock state", err)
	}
	if !locked {
		return nil, models.Errorf(models.KindPersistence, "lock state", "%s is in use by another process", fl.Path())
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the state file.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
