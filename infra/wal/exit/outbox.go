package exit

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Message --------------------

// Message is one pending event or history row. Key is the partition
// key used by publishers (market name or user id).
type Message struct {
	Seq         uint64          `json:"-"`
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	State       ExitState       `json:"-"`
	Retries     uint32          `json:"-"`
	LastAttempt int64           `json:"-"`
}

// Body is the JSON document handed to brokers.
func (m Message) Body() ([]byte, error) {
	return json.Marshal(m)
}

// binary encoding: [state:1][retries:4][lastAttempt:8][json body]
const stateHeader = 13

func encodeMessage(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, stateHeader+len(body))
	buf[0] = byte(m.State)
	binary.BigEndian.PutUint32(buf[1:5], m.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(m.LastAttempt))
	copy(buf[stateHeader:], body)
	return buf, nil
}

func decodeMessage(seq uint64, b []byte) (Message, error) {
	if len(b) < stateHeader {
		return Message{}, errors.New("invalid outbox record length")
	}
	var m Message
	if err := json.Unmarshal(b[stateHeader:], &m); err != nil {
		return Message{}, errors.Wrapf(err, "decode outbox record %d", seq)
	}
	m.Seq = seq
	m.State = ExitState(b[0])
	m.Retries = binary.BigEndian.Uint32(b[1:5])
	m.LastAttempt = int64(binary.BigEndian.Uint64(b[5:13]))
	return m, nil
}

// -------------------- Outbox --------------------

// Outbox is the durable queue between the engine and the publishers.
// Messages are keyed by a local sequence so scans return them in the
// order they were produced.
type Outbox struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	o := &Outbox{db: db}
	if o.seq, err = o.lastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- API --------------------

// PutNew appends a NEW message and returns its sequence.
func (o *Outbox) PutNew(kind Kind, key string, payload any) (uint64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrapf(err, "encode %s payload", kind)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	seq := o.seq + 1
	b, err := encodeMessage(Message{
		ID:      uuid.NewString(),
		Kind:    kind,
		Key:     key,
		Payload: body,
		State:   StateNew,
	})
	if err != nil {
		return 0, err
	}
	if err := o.db.Set(keyFor(seq), b, pebble.Sync); err != nil {
		return 0, err
	}
	o.seq = seq
	return seq, nil
}

// UpdateState updates state after send / ack / failure.
func (o *Outbox) UpdateState(seq uint64, state ExitState, retries uint32) error {
	m, err := o.Get(seq)
	if err != nil {
		return err
	}
	m.State = state
	m.Retries = retries
	m.LastAttempt = time.Now().UnixNano()

	b, err := encodeMessage(m)
	if err != nil {
		return err
	}
	return o.db.Set(keyFor(seq), b, pebble.Sync)
}

// Delete removes ACKED records (cleanup).
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

func (o *Outbox) Get(seq uint64) (Message, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Message{}, err
	}
	defer closer.Close()

	return decodeMessage(seq, val)
}

// -------------------- Scan --------------------

// ScanByState iterates records in the given state in sequence order.
// A limit of zero scans everything. It is used by the Broadcaster.
func (o *Outbox) ScanByState(state ExitState, limit int, fn func(Message) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || ExitState(val[0]) != state {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		m, err := decodeMessage(seq, val)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}

		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "msg/"
	keyUpper  = "msg/~"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &seq)
	return seq, err
}
