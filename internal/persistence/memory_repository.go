package persistence

import (
	"sync"

	"spot-grid-bot-go/internal/models"
)

// MemoryRepository keeps the state in memory. Backtests use it so a replay never touches the live state file.
type MemoryRepository struct {
	mu    sync.Mutex
	state *models.GridState
	saves int
}

// NewMemoryRepository returns an empty repository; LoadState yields (nil, nil) until the first save.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) SaveState(state models.GridState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := state.Clone()
	r.state = &c
	r.saves++
	return nil
}

func (r *MemoryRepository) LoadState() (*models.GridState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, nil
	}
	c := r.state.Clone()
	return &c, nil
}

// Saves reports how many times SaveState has been called.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *MemoryRepository) Close() error {
	return nil
}
