package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v4"
	"gitlab.com/auditker/auditk"
)

const eventPredicate = "evt"

// MakeKey of a predicate and id
func MakeKey(id []byte, predicate string) []byte {
	key := []byte(predicate)
	key = append(key, byte(':'))
	key = append(key, id...)
	return key
}

// GetID of key from a pred:key
func GetID(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	if len(split) == 1 {
		return []byte{}
	}
	return split[1]
}

// GetPredicate from pred:key
func GetPredicate(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	return split[0]
}

// EventKey orders journal entries by time, the id breaks ties
func EventKey(t time.Time, id string) []byte {
	return MakeKey([]byte(fmt.Sprintf("%020d:%s", t.UnixNano(), id)), eventPredicate)
}

// EncodeEvent into a msgpack []byte slice
func EncodeEvent(evt *auditk.JournalEvent) ([]byte, error) {
	return msgpack.Marshal(evt)
}

// DecodeEvent from its msgpack form
func DecodeEvent(val []byte) (*auditk.JournalEvent, error) {
	evt := &auditk.JournalEvent{}
	if err := msgpack.Unmarshal(val, evt); err != nil {
		return nil, err
	}
	return evt, nil
}
