package entry

import (
	"fmt"
	"os"
	"path/filepath"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	file   *os.File
	index  int
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, index: index, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return err
	}
	s.offset += int64(n)
	return nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// segmentIndex parses the index out of a segment file name.
func segmentIndex(path string) (int, bool) {
	var idx int
	if _, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx); err != nil {
		return 0, false
	}
	return idx, true
}
