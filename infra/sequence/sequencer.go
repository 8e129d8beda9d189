package sequence

import "sync/atomic"

// Sequencer mints strictly increasing ids. Order ids, deal ids, envelope
// ids and operation log positions each get their own instance.
type Sequencer struct {
	last atomic.Uint64
}

// New starts after start: the first Next returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Restore moves the sequencer forward to v after a snapshot load or a
// replay. It never moves backwards so ids are never reused.
func (s *Sequencer) Restore(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
