package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-grid-bot-go/internal/models"
)

func TestBadgerJournal_AppendAndList(t *testing.T) {
	journal, err := NewBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fills := []models.FillRecord{
		{OrderID: "b", Side: models.Sell, Price: 104.62, Qty: 0.24, GridIndex: 3, RealizedPnL: 1.2, FilledAt: t0.Add(time.Minute)},
		{OrderID: "a", Side: models.Buy, Price: 99.5, Qty: 0.25, GridIndex: 2, FilledAt: t0},
	}
	for _, f := range fills {
		require.NoError(t, journal.Append(f))
	}

	got, err := journal.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].OrderID, "fills are returned oldest first")
	assert.Equal(t, "b", got[1].OrderID)
	assert.Equal(t, 1.2, got[1].RealizedPnL)
	assert.True(t, got[1].FilledAt.Equal(t0.Add(time.Minute)))
}

func TestInMemoryJournal(t *testing.T) {
	journal, err := NewInMemoryJournal()
	require.NoError(t, err)
	defer journal.Close()

	got, err := journal.List()
	require.NoError(t, err)
	assert.Empty(t, got)

	err = journal.Append(models.FillRecord{})
	assert.Equal(t, models.KindPersistence, models.KindOf(err))
}
