package persistence

import "spot-grid-bot-go/internal/models"

// StateRepository defines the interface for state persistence.
// The orchestrator only talks to this interface so tests can swap in an in-memory store.
type StateRepository interface {
	// SaveState atomically replaces the stored state.
	SaveState(state models.GridState) error

	// LoadState loads the stored state.
	// If no state has ever been saved, it returns (nil, nil).
	LoadState() (*models.GridState, error)

	// Close releases any resources held by the repository.
	Close() error
}

// FillJournal is an append-only log of fills. It is auxiliary: the state file stays the
// single source of truth for recovery.
type FillJournal interface {
	Append(record models.FillRecord) error
	List() ([]models.FillRecord, error)
	Close() error
}
