package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	entrywal "github.com/gnuser/red-envelope-server/infra/wal/entry"
)

/*
ReplayFromWAL rebuilds in-memory state from the entry WAL.

IMPORTANT:
- This MUST run before accepting traffic
- Records run in Replay mode: books, envelopes and counters move, the
  balance store and the outbox do not, since both already hold the
  effects of every logged command
- Exit WAL is NOT replayed
*/
func (s *OrderService) ReplayFromWAL(walDir string, after uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	lastSeq, err := entrywal.Replay(walDir, after, func(rec *entrywal.Record) error {
		if err := s.apply(rec); err != nil {
			return errors.Wrapf(err, "replay %s seq %d", rec.Type, rec.Seq)
		}
		n++
		return nil
	})
	if err != nil {
		return lastSeq, err
	}

	// Resume sequencing AFTER replay
	s.seq.Restore(lastSeq)
	metrics.ReplayedAdd(n)

	s.log.Info("WAL replay completed",
		zap.Uint64("after", after),
		zap.Uint64("last_seq", lastSeq),
		zap.Int("records", n),
	)
	return lastSeq, nil
}

func (s *OrderService) apply(rec *entrywal.Record) error {
	switch rec.Type {
	case entrywal.RecordLimitOrder:
		var op entrywal.OrderOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		m, base, err := s.replayOrder(op)
		if err != nil {
			return err
		}
		price, err := parseOpDecimal(op.Price)
		if err != nil {
			return err
		}
		makerFee, err := parseOpDecimal(op.MakerFee)
		if err != nil {
			return err
		}
		_, err = s.engine.PlaceLimit(matching.Replay, m, matching.LimitRequest{
			UserID:   base.UserID,
			Side:     base.Side,
			Amount:   base.Amount,
			Price:    price,
			TakerFee: base.TakerFee,
			MakerFee: makerFee,
			Source:   base.Source,
			Discount: base.Discount,
			Time:     base.Time,
			Dropped:  op.Dropped,
		})
		return tolerateInternal(err)

	case entrywal.RecordMarketOrder:
		var op entrywal.OrderOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		m, base, err := s.replayOrder(op)
		if err != nil {
			return err
		}
		_, err = s.engine.PlaceMarket(matching.Replay, m, base)
		return tolerateInternal(err)

	case entrywal.RecordCancelOrder:
		var op entrywal.CancelOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		m, err := s.market(op.Market)
		if err != nil {
			return err
		}
		_, err = s.engine.CancelByID(matching.Replay, m, op.UserID, op.OrderID)
		return err

	case entrywal.RecordEnvelopePut:
		var op entrywal.EnvelopePutOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		supply, err := parseOpDecimal(op.Supply)
		if err != nil {
			return err
		}
		_, err = s.envelopes.Put(matching.Replay, envelope.PutRequest{
			UserID:      op.UserID,
			Asset:       op.Asset,
			Supply:      supply,
			Share:       int(op.Share),
			Type:        envelope.Type(op.Type),
			ExpireHours: op.ExpireHours,
			Time:        op.Time,
		})
		return err

	case entrywal.RecordEnvelopeOpen:
		var op entrywal.EnvelopeOpenOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		_, _, err := s.envelopes.Open(matching.Replay, op.ID, op.UserID, op.Time)
		return tolerateInternal(err)

	case entrywal.RecordEnvelopeCancel:
		var op entrywal.EnvelopeCancelOp
		if err := op.Unmarshal(rec.Data); err != nil {
			return err
		}
		_, err := s.envelopes.Cancel(matching.Replay, op.ID, op.Time)
		return tolerateInternal(err)

	default:
		return errors.Errorf("unknown record type %d", rec.Type)
	}
}

// replayOrder decodes the fields limit and market orders share.
func (s *OrderService) replayOrder(op entrywal.OrderOp) (*orderbook.Market, matching.MarketRequest, error) {
	var out matching.MarketRequest
	m, err := s.market(op.Market)
	if err != nil {
		return nil, out, err
	}
	if out.Amount, err = parseOpDecimal(op.Amount); err != nil {
		return nil, out, err
	}
	if out.TakerFee, err = parseOpDecimal(op.TakerFee); err != nil {
		return nil, out, err
	}
	if op.Token != "" {
		out.Token = op.Token
		if out.Discount.Discount, err = parseOpDecimal(op.Discount); err != nil {
			return nil, out, err
		}
		if out.TokenRate, err = parseOpDecimal(op.TokenRate); err != nil {
			return nil, out, err
		}
		if out.AssetRate, err = parseOpDecimal(op.AssetRate); err != nil {
			return nil, out, err
		}
	}
	out.UserID = op.UserID
	out.Side = orderbook.Side(op.Side)
	out.Source = op.Source
	out.Time = op.Time
	return m, out, nil
}

// tolerateInternal lets replay continue past a command that failed with
// ErrInternal when it ran live. It was logged because it changed state,
// and its record carries enough to end in the same state again.
func tolerateInternal(err error) error {
	if errors.Is(err, matching.ErrInternal) {
		return nil
	}
	return err
}
