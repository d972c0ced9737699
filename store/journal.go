package store

import (
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"gitlab.com/auditker/auditk"
)

// Journal is the append only audit history of one project
type Journal struct {
	Store    *badger.DB
	filepath string
	project  string
	closeMu  sync.RWMutex
	closed   bool
}

// NewJournal for the project, stored in the badger directory at filepath
func NewJournal(filepath, project string) *Journal {
	return &Journal{filepath: filepath, project: project}
}

// Init the journal storage
func (j *Journal) Init() error {
	var err error

	if err = os.MkdirAll(j.filepath, 0755); err != nil {
		return err
	}

	opts := badger.DefaultOptions(j.filepath).WithLogger(nil)
	j.Store, err = badger.Open(opts)

	if errors.Is(err, badger.ErrTruncateNeeded) {
		log.Warn().Msg("there was a failure re-opening journal, trying to recover")
		opts.Truncate = true
		j.Store, err = badger.Open(opts)
	}

	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	return nil
}

// Record an event. Failures are logged, the caller is never blocked by the
// journal.
func (j *Journal) Record(evt *auditk.JournalEvent) {
	if evt == nil {
		return
	}
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed || j.Store == nil {
		return
	}

	if evt.ID == "" {
		evt.ID = uuid.NewV4().String()
	}
	if evt.Project == "" {
		evt.Project = j.project
	}

	val, err := EncodeEvent(evt)
	if err != nil {
		log.Warn().Err(err).Str("event", evt.Type.String()).Msg("failed to encode journal event")
		return
	}

	err = j.Store.Update(func(txn *badger.Txn) error {
		return txn.Set(EventKey(evt.Time, evt.ID), val)
	})
	if err != nil {
		log.Warn().Err(err).Str("event", evt.Type.String()).Msg("failed to record journal event")
	}
}

// Events newest first, limit <= 0 returns everything
func (j *Journal) Events(limit int) ([]*auditk.JournalEvent, error) {
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed || j.Store == nil {
		return nil, errors.New("journal is not open")
	}

	events := make([]*auditk.JournalEvent, 0)
	prefix := MakeKey(nil, eventPredicate)

	err := j.Store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				evt, err := DecodeEvent(val)
				if err != nil {
					return err
				}
				events = append(events, evt)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read journal")
	}
	return events, nil
}

// Close the journal
func (j *Journal) Close() error {
	j.closeMu.Lock()
	defer j.closeMu.Unlock()
	if j.closed || j.Store == nil {
		j.closed = true
		return nil
	}
	j.closed = true
	return j.Store.Close()
}

// NopJournal is used when no journal directory is configured
type NopJournal struct{}

// Record does nothing
func (NopJournal) Record(*auditk.JournalEvent) {}

// Events is always empty
func (NopJournal) Events(int) ([]*auditk.JournalEvent, error) {
	return []*auditk.JournalEvent{}, nil
}

// Close does nothing
func (NopJournal) Close() error { return nil }
