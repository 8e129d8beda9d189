package entry

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var ErrCorrupt = errors.New("wal: corrupt record")

type ReplayHandler func(*Record) error

// Replay feeds every record with Seq > after to fn, in log order. A
// truncated frame at the tail of the newest segment ends the replay
// without error, since it is what a crash during Append leaves behind.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return 0, err
	}

	lastSeq = after
	var prev uint64
	for i, path := range files {
		tail := i == len(files)-1
		if err := replaySegment(path, tail, func(rec *Record) error {
			if prev != 0 && rec.Seq <= prev {
				return errors.Wrapf(ErrCorrupt, "non-monotonic seq %d after %d in %s", rec.Seq, prev, filepath.Base(path))
			}
			prev = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			lastSeq = rec.Seq
			return fn(rec)
		}); err != nil {
			return lastSeq, err
		}
	}

	return lastSeq, nil
}

func replaySegment(path string, tail bool, fn ReplayHandler) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		rec, err := readRecord(f)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if tail && err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, filepath.Base(path))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func readRecord(r io.Reader) (*Record, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	data := make([]byte, h.size+4)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := data[:h.size]
	crc := binary.BigEndian.Uint32(data[h.size:])

	if !CRC32Valid(append(h.raw[:], payload...), crc) {
		return nil, fmt.Errorf("%w: crc mismatch at seq %d", ErrCorrupt, h.seq)
	}

	return &Record{
		Type: h.typ,
		Seq:  h.seq,
		Time: h.time,
		Data: payload,
	}, nil
}
