// Package ledger keeps a durable index of every buffer a workspace has
// carved out and where it is in its lifecycle. Anything still LIVE
// once all workspaces are closed is a leak; SYNC_FAILED entries mark
// buffers that were deliberately not freed after a failed wait. The
// telemetry publisher drains RELEASED and SYNC_FAILED entries.
package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"wsalloc/domain/workspace"
)

// -------------------- State --------------------

type State uint8

const (
	StateLive State = iota
	StateReleased
	StateSyncFailed
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "LIVE"
	case StateReleased:
		return "RELEASED"
	case StateSyncFailed:
		return "SYNC_FAILED"
	case StatePublished:
		return "PUBLISHED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	Workspace uint64
	Space     workspace.SpaceID
	Size      uint64
	Align     uint64
	State     State
	UpdatedAt int64
}

// binary encoding: [state:1][size:8][align:8][updatedAt:8]
// workspace id and space live in the key.
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+8+8+8)
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint64(buf[1:9], r.Size)
	binary.BigEndian.PutUint64(buf[9:17], r.Align)
	binary.BigEndian.PutUint64(buf[17:25], uint64(r.UpdatedAt))
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) != 25 {
		return Record{}, errors.New("ledger: invalid record length")
	}
	return Record{
		State:     State(b[0]),
		Size:      binary.BigEndian.Uint64(b[1:9]),
		Align:     binary.BigEndian.Uint64(b[9:17]),
		UpdatedAt: int64(binary.BigEndian.Uint64(b[17:25])),
	}, nil
}

// -------------------- Ledger --------------------

type Ledger struct {
	db *pebble.DB
}

func Open(dir string) (*Ledger, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // an allocation index that loses writes is useless
	})
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// -------------------- API --------------------

// PutLive records a freshly allocated buffer.
func (l *Ledger) PutLive(ws uint64, space workspace.SpaceID, size, align uint64) error {
	rec := Record{
		Workspace: ws,
		Space:     space,
		Size:      size,
		Align:     align,
		State:     StateLive,
		UpdatedAt: time.Now().UnixNano(),
	}
	return l.db.Set(keyFor(ws, space), encodeRecord(rec), pebble.Sync)
}

// Transition moves a buffer to a new lifecycle state.
func (l *Ledger) Transition(ws uint64, space workspace.SpaceID, state State) error {
	rec, err := l.Get(ws, space)
	if err != nil {
		return err
	}
	rec.State = state
	rec.UpdatedAt = time.Now().UnixNano()
	return l.db.Set(keyFor(ws, space), encodeRecord(rec), pebble.Sync)
}

// Delete drops a buffer's entry once it has been published downstream.
func (l *Ledger) Delete(ws uint64, space workspace.SpaceID) error {
	return l.db.Delete(keyFor(ws, space), pebble.Sync)
}

// Get returns the current record for a buffer.
func (l *Ledger) Get(ws uint64, space workspace.SpaceID) (Record, error) {
	val, closer, err := l.db.Get(keyFor(ws, space))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	rec, err := decodeRecord(val)
	if err != nil {
		return Record{}, err
	}
	rec.Workspace = ws
	rec.Space = space
	return rec, nil
}

// -------------------- Scan --------------------

// ScanByState iterates all records in the given state in key order.
func (l *Ledger) ScanByState(state State, fn func(Record) error) error {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("buf/"),
		UpperBound: []byte("buf/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}

		ws, space, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec.Workspace = ws
		rec.Space = space

		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

func keyFor(ws uint64, space workspace.SpaceID) []byte {
	return []byte(fmt.Sprintf("buf/%020d/%d", ws, space))
}

func parseKey(b []byte) (uint64, workspace.SpaceID, error) {
	var ws uint64
	var space uint8
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("buf/"))), "%d/%d", &ws, &space)
	return ws, workspace.SpaceID(space), err
}
