package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// Load reads the snapshot at path. A missing file yields an empty
// snapshot.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil // snapshot optional
		}
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &s, nil
}
