package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
)

const fileName = "snapshot.bin"

type Writer struct {
	Dir string
}

// Path is where Write puts the snapshot.
func (w *Writer) Path() string {
	return filepath.Join(w.Dir, fileName)
}

// Write replaces the previous snapshot atomically.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.Path())
}
