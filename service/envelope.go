package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	entrywal "github.com/gnuser/red-envelope-server/infra/wal/entry"
)

// PutEnvelope freezes the supply and creates an envelope.
func (s *OrderService) PutEnvelope(req EnvelopePutRequest) (envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.envelopeRequest(req)
	if err != nil {
		return envelope.Envelope{}, s.reject("envelope_put", err)
	}
	e, err := s.envelopes.Put(matching.Live, in)
	if err != nil {
		return e, s.reject("envelope_put", err)
	}

	s.appendLog(entrywal.RecordEnvelopePut, entrywal.EnvelopePutOp{
		UserID:      in.UserID,
		Asset:       in.Asset,
		Supply:      in.Supply.String(),
		Share:       uint32(in.Share),
		Type:        uint32(in.Type),
		ExpireHours: in.ExpireHours,
		Time:        in.Time,
	}.Marshal())
	metrics.EnvelopeCounterInc("put")
	return e, nil
}

// OpenEnvelope hands the caller a share. The asset must match the
// envelope's, otherwise the envelope is reported as not found.
func (s *OrderService) OpenEnvelope(req EnvelopeOpenRequest) (num.Decimal, envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.envelopes.Get(req.EnvelopeID)
	if !ok || cur.Asset != req.Asset {
		return num.Zero, envelope.Envelope{}, s.reject("envelope_open", errors.Wrapf(envelope.ErrNotFound, "id %d", req.EnvelopeID))
	}

	now := s.clock()
	amount, e, err := s.envelopes.Open(matching.Live, req.EnvelopeID, req.UserID, now)
	if err != nil && !errors.Is(err, matching.ErrInternal) {
		return amount, e, s.reject("envelope_open", err)
	}

	// A repeated open returns the earlier share and changes nothing.
	if e.Count() > cur.Count() {
		s.appendLog(entrywal.RecordEnvelopeOpen, entrywal.EnvelopeOpenOp{
			ID:     req.EnvelopeID,
			UserID: req.UserID,
			Time:   now,
		}.Marshal())
		metrics.EnvelopeCounterInc("open")
	}
	if err != nil {
		return amount, e, s.reject("envelope_open", err)
	}
	return amount, e, nil
}

// CancelEnvelope returns what is left to the owner and drops the
// envelope.
func (s *OrderService) CancelEnvelope(id uint64) (envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.cancelEnvelope(id, s.clock())
	if err != nil {
		return e, s.reject("envelope_cancel", err)
	}
	return e, nil
}

func (s *OrderService) cancelEnvelope(id uint64, now float64) (envelope.Envelope, error) {
	// A failed cancel leaves the envelope in place, so nothing is logged.
	e, err := s.envelopes.Cancel(matching.Live, id, now)
	if err != nil {
		return e, err
	}
	s.appendLog(entrywal.RecordEnvelopeCancel, entrywal.EnvelopeCancelOp{
		ID:   id,
		Time: now,
	}.Marshal())
	metrics.EnvelopeCounterInc("cancel")
	return e, nil
}

// ExpireEnvelopes cancels every envelope past its expiry and returns
// how many were cancelled.
func (s *OrderService) ExpireEnvelopes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	n := 0
	for _, id := range s.envelopes.Expired(now) {
		if _, err := s.cancelEnvelope(id, now); err != nil {
			s.log.Error("expire envelope", zap.Uint64("envelope", id), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("expired envelopes", zap.Int("count", n))
	}
	return n
}
