package entry

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// headerSize is [type:1][seq:8][time:8][len:4].
const headerSize = 21

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs after each Append.
	SyncEveryWrite bool
}

// WAL is the append-only operation log. Appends are serialized.
type WAL struct {
	mu         sync.Mutex
	cfg        Config
	current    *segment
	lastRotate time.Time
}

// Open resumes the newest segment in cfg.Dir, or creates the first one.
// A torn frame left at the end of the newest segment is cut off first.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(cfg.Dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	last := 0
	for _, f := range files {
		if idx, ok := segmentIndex(f); ok && idx > last {
			last = idx
		}
	}

	if _, err := repairTail(segmentPath(cfg.Dir, last)); err != nil {
		return nil, err
	}

	seg, err := openSegment(cfg.Dir, last)
	if err != nil {
		return nil, err
	}

	return &WAL{
		cfg:        cfg,
		current:    seg,
		lastRotate: time.Now(),
	}, nil
}

func encodeFrame(r *Record) []byte {
	payloadLen := uint32(len(r.Data))

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, headerSize+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.current.append(encodeFrame(r)); err != nil {
		return err
	}
	if w.cfg.SyncEveryWrite {
		if err := w.current.sync(); err != nil {
			return err
		}
	}
	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.cfg.SegmentSize > 0 && w.current.offset >= w.cfg.SegmentSize {
		return true
	}
	return w.cfg.SegmentDuration > 0 && time.Since(w.lastRotate) >= w.cfg.SegmentDuration
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()

	seg, err := openSegment(w.cfg.Dir, w.current.index+1)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		return err
	}
	return w.current.close()
}

// TruncateBefore removes closed segments whose records are all at or
// below seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(w.cfg.Dir, segmentPattern))
	if err != nil {
		return err
	}

	for _, path := range files {
		if idx, ok := segmentIndex(path); !ok || idx == w.current.index {
			continue
		}
		maxSeq, err := lastSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}
