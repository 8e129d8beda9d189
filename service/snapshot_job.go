package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/snapshot"
)

// Truncater drops operation log segments a snapshot already covers.
type Truncater interface {
	TruncateBefore(seq uint64) error
}

// TakeSnapshot captures state under the service lock and writes it
// outside of it. It returns the sequence the snapshot covers.
func (s *OrderService) TakeSnapshot(w *snapshot.Writer) (uint64, error) {
	s.mu.Lock()
	snap := snapshot.Capture(s.seq.Current(), s.engine, s.envelopes)
	s.mu.Unlock()

	if err := w.Write(snap); err != nil {
		return 0, errors.Wrap(err, "write snapshot")
	}
	s.log.Info("snapshot written",
		zap.Uint64("seq", snap.Seq),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("envelopes", len(snap.Envelopes)),
	)
	return snap.Seq, nil
}

// RestoreSnapshot loads snap into an empty engine. Replay continues
// from the returned sequence.
func (s *OrderService) RestoreSnapshot(snap *snapshot.Snapshot) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Empty() {
		return 0, nil
	}
	if err := snap.Restore(s.engine, s.envelopes); err != nil {
		return 0, err
	}
	s.seq.Restore(snap.Seq)
	for _, m := range s.engine.Markets() {
		s.bookGauges(m)
	}
	s.log.Info("snapshot restored",
		zap.Uint64("seq", snap.Seq),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("envelopes", len(snap.Envelopes)),
	)
	return snap.Seq, nil
}

// StartSnapshotJob snapshots every interval until ctx is done. After a
// successful write the operation log is truncated up to the snapshot.
func (s *OrderService) StartSnapshotJob(ctx context.Context, w *snapshot.Writer, interval time.Duration, log Truncater) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			seq, err := s.TakeSnapshot(w)
			if err != nil {
				s.log.Error("snapshot", zap.Error(err))
				continue
			}
			if log == nil {
				continue
			}
			if err := log.TruncateBefore(seq); err != nil {
				s.log.Warn("truncate operation log", zap.Uint64("seq", seq), zap.Error(err))
			}
		}
	}()
}

// StartExpiryJob cancels expired envelopes every interval until ctx is
// done.
func (s *OrderService) StartExpiryJob(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.ExpireEnvelopes()
			}
		}
	}()
}
