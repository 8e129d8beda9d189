package envelope

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/sequence"
)

type PutRequest struct {
	UserID      uint32
	Asset       string
	Supply      num.Decimal
	Share       int
	Type        Type
	ExpireHours uint32
	// Time pins create_time during replay. Zero means now.
	Time float64
}

type Store struct {
	log    *logging.Logger
	ledger ledger.Ledger
	sink   Sink
	clock  func() float64

	ids       *sequence.Sequencer
	envelopes map[uint64]*Envelope
	users     map[uint32]map[uint64]struct{}
}

func NewStore(log *logging.Logger, l ledger.Ledger, sink Sink) *Store {
	return &Store{
		log:       log.Named("envelope"),
		ledger:    l,
		sink:      sink,
		clock:     func() float64 { return float64(time.Now().UnixMicro()) / 1e6 },
		ids:       sequence.New(0),
		envelopes: make(map[uint64]*Envelope),
		users:     make(map[uint32]map[uint64]struct{}),
	}
}

// LastID is the last minted envelope id.
func (s *Store) LastID() uint64 {
	return s.ids.Current()
}

func (s *Store) RestoreLastID(id uint64) {
	s.ids.Restore(id)
}

// Put freezes the supply and splits it into shares.
func (s *Store) Put(mode matching.Mode, req PutRequest) (Envelope, error) {
	if req.Share < MinShare || req.Share > MaxShare {
		return Envelope{}, errors.Wrapf(ErrInvalid, "share %d out of [%d, %d]", req.Share, MinShare, MaxShare)
	}
	if !req.Supply.IsPositive() {
		return Envelope{}, errors.Wrap(ErrInvalid, "supply must be positive")
	}
	if req.Type != Average && req.Type != Random {
		return Envelope{}, errors.Wrapf(ErrInvalid, "type %d", req.Type)
	}
	if req.Supply.LessThan(num.Unit(AmountPrec).Mul(num.DecimalFromInt(int64(req.Share)))) {
		return Envelope{}, errors.Wrap(ErrInvalid, "supply too small to split")
	}
	if mode == matching.Live {
		bal, ok := s.ledger.Get(req.UserID, ledger.Available, req.Asset)
		if !ok || bal.LessThan(req.Supply) {
			return Envelope{}, ErrInsufficientBalance
		}
	}

	now := req.Time
	if now <= 0 {
		now = s.clock()
	}
	e := &Envelope{
		ID:          s.ids.Next(),
		UserID:      req.UserID,
		Asset:       req.Asset,
		Type:        req.Type,
		Supply:      req.Supply,
		Leave:       req.Supply,
		Share:       req.Share,
		ExpireHours: req.ExpireHours,
		CreateTime:  now,
	}
	if e.Type == Average {
		e.Shares = splitAverage(e.Supply, e.Share)
	} else {
		e.Shares = splitRandom(e.Supply, e.Share, e.ID, math.Float64bits(now))
	}

	if mode == matching.Live {
		if err := s.ledger.Freeze(e.UserID, e.Asset, e.Supply); err != nil {
			return Envelope{}, errors.Wrap(ErrInsufficientBalance, err.Error())
		}
		s.history(e, e.UserID, RoleMaker, e.Supply, now)
		s.event(EventPut, e)
	}

	s.envelopes[e.ID] = e
	set, ok := s.users[e.UserID]
	if !ok {
		set = make(map[uint64]struct{})
		s.users[e.UserID] = set
	}
	set[e.ID] = struct{}{}
	return e.Clone(), nil
}

// Open hands user the next share. Opening twice returns the first share
// again without moving anything.
func (s *Store) Open(mode matching.Mode, id uint64, user uint32, at float64) (num.Decimal, Envelope, error) {
	e, ok := s.envelopes[id]
	if !ok {
		return num.Zero, Envelope{}, ErrNotFound
	}
	if i, ok := e.openingOf(user); ok {
		return e.Openings[i].Amount, e.Clone(), nil
	}
	if e.Done() {
		return num.Zero, e.Clone(), ErrFinished
	}

	now := at
	if now <= 0 {
		now = s.clock()
	}
	amount := e.Shares[e.Count()]

	if mode == matching.Live && amount.IsPositive() {
		if err := s.pay(e, user, amount); err != nil {
			s.log.Error("open envelope",
				zap.Uint64("envelope", e.ID),
				zap.Uint32("user", user),
				zap.Error(err),
			)
			return num.Zero, e.Clone(), errors.Wrap(matching.ErrInternal, err.Error())
		}
	}

	e.Openings = append(e.Openings, Opening{UserID: user, Amount: amount, Time: now})
	e.Leave = e.Leave.Sub(amount)

	if mode == matching.Live {
		s.history(e, user, RoleTaker, amount, now)
		s.event(EventOpen, e)
	}
	out := e.Clone()
	if e.Done() {
		if mode == matching.Live {
			s.event(EventFinish, e)
		}
		s.remove(e)
	}
	return amount, out, nil
}

func (s *Store) pay(e *Envelope, user uint32, amount num.Decimal) error {
	if user == e.UserID {
		return s.ledger.Unfreeze(e.UserID, e.Asset, amount)
	}
	if _, err := s.ledger.Sub(e.UserID, ledger.Frozen, e.Asset, amount); err != nil {
		return err
	}
	_, err := s.ledger.Add(user, ledger.Available, e.Asset, amount)
	return err
}

// Cancel removes the envelope and returns what is left to the owner.
func (s *Store) Cancel(mode matching.Mode, id uint64, at float64) (Envelope, error) {
	e, ok := s.envelopes[id]
	if !ok {
		return Envelope{}, ErrNotFound
	}
	now := at
	if now <= 0 {
		now = s.clock()
	}
	if mode == matching.Live && !e.Done() && e.Leave.IsPositive() {
		if err := s.ledger.Unfreeze(e.UserID, e.Asset, e.Leave); err != nil {
			s.log.Error("unfreeze envelope",
				zap.Uint64("envelope", e.ID),
				zap.Error(err),
			)
			return e.Clone(), errors.Wrap(matching.ErrInternal, err.Error())
		}
		s.history(e, e.UserID, RoleExpire, e.Leave, now)
	}
	if mode == matching.Live {
		s.event(EventFinish, e)
	}
	out := e.Clone()
	s.remove(e)
	return out, nil
}

// Expired lists, by id, every envelope past its expiry at now.
func (s *Store) Expired(now float64) []uint64 {
	var ids []uint64
	for id, e := range s.envelopes {
		if e.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Expire cancels every envelope past its expiry at now.
func (s *Store) Expire(mode matching.Mode, now float64) ([]Envelope, error) {
	var out []Envelope
	for _, id := range s.Expired(now) {
		e, err := s.Cancel(mode, id, now)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Get(id uint64) (Envelope, bool) {
	e, ok := s.envelopes[id]
	if !ok {
		return Envelope{}, false
	}
	return e.Clone(), true
}

// UserEnvelopes returns the user's live envelopes, newest first.
func (s *Store) UserEnvelopes(user uint32) []Envelope {
	set := s.users[user]
	out := make([]Envelope, 0, len(set))
	for id := range set {
		out = append(out, s.envelopes[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// All returns every live envelope ordered by id.
func (s *Store) All() []Envelope {
	out := make([]Envelope, 0, len(s.envelopes))
	for _, e := range s.envelopes {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore inserts a snapshotted envelope as is.
func (s *Store) Restore(e Envelope) {
	cp := e.Clone()
	s.envelopes[cp.ID] = &cp
	set, ok := s.users[cp.UserID]
	if !ok {
		set = make(map[uint64]struct{})
		s.users[cp.UserID] = set
	}
	set[cp.ID] = struct{}{}
	s.ids.Restore(cp.ID)
}

func (s *Store) remove(e *Envelope) {
	delete(s.envelopes, e.ID)
	if set, ok := s.users[e.UserID]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(s.users, e.UserID)
		}
	}
}

func (s *Store) history(e *Envelope, user uint32, role Role, amount num.Decimal, now float64) {
	row := Row{Time: now, UserID: user, Asset: e.Asset, EnvelopeID: e.ID, Role: role, Amount: amount}
	if err := s.sink.EnvelopeHistory(row); err != nil {
		s.log.Error("append envelope history", zap.Uint64("envelope", e.ID), zap.Error(err))
	}
}

func (s *Store) event(kind EventKind, e *Envelope) {
	if err := s.sink.EnvelopeEvent(kind, e.Clone()); err != nil {
		s.log.Error("envelope event", zap.Uint64("envelope", e.ID), zap.Error(err))
	}
}
