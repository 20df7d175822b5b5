package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"spot-grid-bot-go/internal/models"
)

const fillPrefix = "fill/"

// badgerJournal is the BadgerDB implementation of the FillJournal.
type badgerJournal struct {
	db *badger.DB
}

// NewBadgerJournal opens (or creates) a fill journal in dbPath.
func NewBadgerJournal(dbPath string) (FillJournal, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the bot's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil
	return openJournal(opts)
}

// NewInMemoryJournal returns a journal that is discarded on Close. Used by backtests.
func NewInMemoryJournal() (FillJournal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openJournal(opts)
}

func openJournal(opts badger.Options) (FillJournal, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, models.NewError(models.KindPersistence, "open journal", err)
	}
	return &badgerJournal{db: db}, nil
}

// Append stores a fill under a time-ordered key so List returns fills chronologically.
func (j *badgerJournal) Append(record models.FillRecord) error {
	if record.OrderID == "" {
		return models.Errorf(models.KindPersistence, "append fill", "fill record has no order id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return models.NewError(models.KindPersistence, "encode fill", err)
	}
	key := []byte(fmt.Sprintf("%s%020d/%s", fillPrefix, record.FilledAt.UnixNano(), record.OrderID))

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	return models.NewError(models.KindPersistence, "append fill", err)
}

// List returns every recorded fill, oldest first.
func (j *badgerJournal) List() ([]models.FillRecord, error) {
	var records []models.FillRecord

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fillPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				if len(val) == 0 {
					return errors.New("fill value is empty in journal")
				}
				var rec models.FillRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, models.NewError(models.KindPersistence, "list fills", err)
	}
	return records, nil
}

// Close gracefully closes the connection to the database.
func (j *badgerJournal) Close() error {
	return j.db.Close()
}
