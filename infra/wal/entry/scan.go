package entry

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type frameHeader struct {
	raw  [headerSize]byte
	typ  RecordType
	seq  uint64
	time int64
	size uint32
}

func readHeader(r io.Reader) (frameHeader, error) {
	var h frameHeader
	if _, err := io.ReadFull(r, h.raw[:]); err != nil {
		return h, err
	}
	h.typ = RecordType(h.raw[0])
	h.seq = binary.BigEndian.Uint64(h.raw[1:9])
	h.time = int64(binary.BigEndian.Uint64(h.raw[9:17]))
	h.size = binary.BigEndian.Uint32(h.raw[17:21])
	return h, nil
}

// lastSeqInSegment walks the frame headers of a closed segment without
// decoding payloads. A short tail counts as the end of the segment.
func lastSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var last uint64
	for {
		h, err := readHeader(r)
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return last, nil
		default:
			return last, err
		}
		last = max(last, h.seq)

		if _, err := r.Discard(int(h.size) + 4); err != nil {
			if err == io.EOF {
				return last, nil
			}
			return last, err
		}
	}
}

// validLength returns the byte length of the complete frames at the
// head of a segment. A frame cut short by a crash ends the count; a
// complete frame with a bad checksum is reported as corruption.
func validLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var n int64
	for {
		rec, err := readRecord(r)
		switch err {
		case nil:
			n += int64(headerSize + len(rec.Data) + 4)
		case io.EOF, io.ErrUnexpectedEOF:
			return n, nil
		default:
			return n, err
		}
	}
}

// repairTail cuts a torn frame off the end of path so the next Append
// starts on a frame boundary.
func repairTail(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := validLength(path)
	if err != nil {
		return 0, errors.Wrap(err, filepath.Base(path))
	}
	if n == st.Size() {
		return 0, nil
	}
	if err := os.Truncate(path, n); err != nil {
		return 0, err
	}
	return st.Size() - n, nil
}
