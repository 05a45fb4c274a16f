package trace

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

// Journal is the append-only trace log. It assigns sequence numbers
// itself so records stay strictly monotonic across segments.
type Journal struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	current  *segment
	segIndex int

	seq atomic.Uint64
}

func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 4 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	// Resume after existing segments so sequence numbers stay
	// monotonic across restarts. Writes always go to a fresh segment;
	// old ones are never appended to.
	lastSeq, lastIndex, err := scanSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	segIndex := 0
	if lastIndex >= 0 {
		segIndex = lastIndex + 1
	}

	seg, err := openSegment(cfg.Dir, segIndex)
	if err != nil {
		return nil, err
	}

	j := &Journal{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: segIndex,
	}
	j.seq.Store(lastSeq)
	return j, nil
}

// scanSegments returns the highest sequence number and segment index
// found in dir. lastIndex is -1 when no segments exist.
func scanSegments(dir string) (lastSeq uint64, lastIndex int, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "trace-*.log"))
	if err != nil {
		return 0, -1, err
	}
	lastIndex = -1
	for _, path := range files {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(path), "trace-%06d.log", &idx); err != nil {
			continue
		}
		if idx > lastIndex {
			lastIndex = idx
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			return 0, -1, fmt.Errorf("trace: scanning %s: %w", path, err)
		}
		if maxSeq > lastSeq {
			lastSeq = maxSeq
		}
	}
	return lastSeq, lastIndex, nil
}

// Append journals one region event and returns its sequence number.
func (j *Journal) Append(t RecordType, info RegionInfo) (uint64, error) {
	r := newRecord(t, j.seq.Add(1), info.Encode())
	return r.Seq, j.append(r)
}

func (j *Journal) append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, 1+8+8+4+payloadLen+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.current.append(buf); err != nil {
		return err
	}
	if j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	return nil
}

// LastSeq returns the most recently issued sequence number.
func (j *Journal) LastSeq() uint64 { return j.seq.Load() }

// TruncateBefore drops whole segments whose records are all <= seq.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(j.dir, "trace-*.log"))
	if err != nil {
		return err
	}
	for _, path := range files {
		if j.current != nil && path == j.current.file.Name() {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.close()
}
