// Package trace records the raw JSON-RPC traffic of language server sessions
// into a bbolt database, one bucket per session keyed by sequence number.
package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"lspclient/src/internal/common"
	"lspclient/src/server/protocol"
)

// ErrNoSuchSession is returned when a session has no recorded traffic
var ErrNoSuchSession = fmt.Errorf("no such trace session")

// Entry is one recorded payload
type Entry struct {
	Seq       uint64             `json:"-"`
	Time      time.Time          `json:"time"`
	Direction protocol.Direction `json:"dir"`
	Payload   json.RawMessage    `json:"payload"`
}

// Session summarizes one recorded session
type Session struct {
	ID      string
	Entries int
}

// Store is an append-only trace database
type Store struct {
	db  *bolt.DB
	log *common.SafeLogger
	now func() time.Time
}

// Open opens or creates the trace database at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open trace database %s: %w", path, err)
	}
	return &Store{db: db, log: common.ClientLogger.Named("trace"), now: time.Now}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores payload as the next entry of session and returns its sequence number
func (s *Store) Append(session string, dir protocol.Direction, payload []byte) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(session))
		if err != nil {
			return err
		}
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		value, err := json.Marshal(Entry{Time: s.now(), Direction: dir, Payload: rawPayload(payload)})
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), value)
	})
	return seq, err
}

// rawPayload keeps invalid JSON storable by recording it as a string
func rawPayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return append(json.RawMessage(nil), payload...)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

// Sessions lists recorded sessions in id order, which is also start order
func (s *Store) Sessions() ([]Session, error) {
	var sessions []Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			sessions = append(sessions, Session{ID: string(name), Entries: b.Stats().KeyN})
			return nil
		})
	})
	return sessions, err
}

// Iterate calls f with every entry of session in sequence order. Iteration stops
// at the first error f returns.
func (s *Store) Iterate(session string, f func(Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(session))
		if b == nil {
			return ErrNoSuchSession
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt trace entry %d: %w", unmarshalSeq(k), err)
			}
			e.Seq = unmarshalSeq(k)
			if err := f(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Entries returns all entries of session
func (s *Store) Entries(session string) ([]Entry, error) {
	var entries []Entry
	err := s.Iterate(session, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Delete removes a session's recording
func (s *Store) Delete(session string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(session)) == nil {
			return ErrNoSuchSession
		}
		return tx.DeleteBucket([]byte(session))
	})
}

// Recorder returns a transport tap appending to session
func (s *Store) Recorder(session string) protocol.Tap {
	return recorder{store: s, session: session}
}

type recorder struct {
	store   *Store
	session string
}

func (r recorder) Record(dir protocol.Direction, payload []byte) {
	if _, err := r.store.Append(r.session, dir, payload); err != nil {
		r.store.log.Warn("Failed to record %s payload for %s: %v", dir, r.session, err)
	}
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
