package service

import (
	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

const (
	// SourceMaxLen bounds the free form order source tag.
	SourceMaxLen = 30
	// CancelBatchMax bounds one CancelBatch call.
	CancelBatchMax = 999
	// DefaultExpireHours applies when an envelope request leaves it unset.
	DefaultExpireHours = 24
)

// Decimal fields are strings so that precision is checked against the
// market before any rounding happens.

type LimitOrderRequest struct {
	UserID   uint32         `json:"user_id"`
	Market   string         `json:"market"`
	Side     orderbook.Side `json:"side"`
	Amount   string         `json:"amount"`
	Price    string         `json:"price"`
	TakerFee string         `json:"taker_fee"`
	MakerFee string         `json:"maker_fee"`
	Source   string         `json:"source"`
	Token    string         `json:"token,omitempty"`
	Discount string         `json:"discount,omitempty"`
}

// MarketOrderRequest spends Amount of stock for an ask and Amount of
// money for a bid.
type MarketOrderRequest struct {
	UserID   uint32         `json:"user_id"`
	Market   string         `json:"market"`
	Side     orderbook.Side `json:"side"`
	Amount   string         `json:"amount"`
	TakerFee string         `json:"taker_fee"`
	Source   string         `json:"source"`
	Token    string         `json:"token,omitempty"`
	Discount string         `json:"discount,omitempty"`
}

type CancelRequest struct {
	UserID  uint32 `json:"user_id"`
	Market  string `json:"market"`
	OrderID uint64 `json:"order_id"`
}

type CancelBatchRequest struct {
	UserID   uint32   `json:"user_id"`
	Market   string   `json:"market"`
	OrderIDs []uint64 `json:"order_ids"`
}

// CancelResult is the outcome for one id of a batch.
type CancelResult struct {
	OrderID uint64           `json:"order_id"`
	Code    Code             `json:"code"`
	Order   *orderbook.Order `json:"order,omitempty"`
}

type EnvelopePutRequest struct {
	UserID      uint32        `json:"user_id"`
	Asset       string        `json:"asset"`
	Supply      string        `json:"supply"`
	Share       int           `json:"share"`
	Type        envelope.Type `json:"type"`
	ExpireHours uint32        `json:"expire_hours"`
}

type EnvelopeOpenRequest struct {
	UserID     uint32 `json:"user_id"`
	Asset      string `json:"asset"`
	EnvelopeID uint64 `json:"envelope_id"`
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(matching.ErrValidation, format, args...)
}

func parsePositive(field, s string, prec int) (num.Decimal, error) {
	d, err := num.Parse(s, prec)
	if err != nil || !d.IsPositive() {
		return num.Zero, invalid("%s %q", field, s)
	}
	return d, nil
}

// parseFee accepts 0 <= fee < 1 at prec. An empty fee is zero.
func parseFee(field, s string, prec int) (num.Decimal, error) {
	if s == "" {
		return num.Zero, nil
	}
	d, err := num.Parse(s, prec)
	if err != nil || d.IsNegative() || !d.LessThan(num.One) {
		return num.Zero, invalid("%s %q", field, s)
	}
	return d, nil
}

func checkSide(side orderbook.Side) error {
	if side != orderbook.Ask && side != orderbook.Bid {
		return invalid("side %d", side)
	}
	return nil
}

func checkSource(source string) error {
	if len(source) > SourceMaxLen {
		return invalid("source longer than %d", SourceMaxLen)
	}
	return nil
}

// discount resolves the fee token block. The asset whose CNY rate
// converts the fee is money for an ask and stock for a bid.
func (s *OrderService) discount(m *orderbook.Market, side orderbook.Side, token, discount string) (orderbook.Discount, error) {
	if token == "" {
		return orderbook.Discount{}, nil
	}
	if !s.tokenAllowed(token) {
		return orderbook.Discount{}, errors.Wrap(ErrTokenNotExist, token)
	}
	// The token leg is debited from available balance, which must stay
	// free for the order's own stock and money legs.
	if token == m.Stock || token == m.Money {
		return orderbook.Discount{}, invalid("token %s is traded in %s", token, m.Name)
	}
	d, err := num.DecimalFromString(discount)
	if err != nil || !d.IsPositive() {
		return orderbook.Discount{}, invalid("discount %q", discount)
	}

	tokenMarket := token + matching.QuoteCNY
	if _, ok := s.engine.Market(tokenMarket); !ok {
		return orderbook.Discount{}, invalid("no rate market %s", tokenMarket)
	}

	asset := m.Stock
	if side == orderbook.Ask {
		asset = m.Money
	}
	assetRate := num.One
	if asset != matching.QuoteCNY {
		assetMarket := asset + matching.QuoteCNY
		if _, ok := s.engine.Market(assetMarket); !ok {
			return orderbook.Discount{}, invalid("no rate market %s", assetMarket)
		}
		assetRate = s.engine.LastPrice(assetMarket)
	}

	return orderbook.Discount{
		Token:     token,
		Discount:  d,
		TokenRate: s.engine.LastPrice(tokenMarket),
		AssetRate: assetRate,
	}, nil
}

func (s *OrderService) tokenAllowed(token string) bool {
	if _, ok := s.assets.AssetPrec(token); !ok {
		return false
	}
	if len(s.tokens) == 0 {
		return true
	}
	_, ok := s.tokens[token]
	return ok
}

func (s *OrderService) market(name string) (*orderbook.Market, error) {
	m, ok := s.engine.Market(name)
	if !ok {
		return nil, errors.Wrap(matching.ErrMarketNotFound, name)
	}
	return m, nil
}

func (s *OrderService) limitRequest(req LimitOrderRequest) (*orderbook.Market, matching.LimitRequest, error) {
	var out matching.LimitRequest
	m, err := s.market(req.Market)
	if err != nil {
		return nil, out, err
	}
	if err := checkSide(req.Side); err != nil {
		return nil, out, err
	}
	if out.Amount, err = parsePositive("amount", req.Amount, m.StockPrec); err != nil {
		return nil, out, err
	}
	if out.Price, err = parsePositive("price", req.Price, m.MoneyPrec); err != nil {
		return nil, out, err
	}
	if out.TakerFee, err = parseFee("taker_fee", req.TakerFee, m.FeePrec); err != nil {
		return nil, out, err
	}
	if out.MakerFee, err = parseFee("maker_fee", req.MakerFee, m.FeePrec); err != nil {
		return nil, out, err
	}
	if err := checkSource(req.Source); err != nil {
		return nil, out, err
	}
	if out.Discount, err = s.discount(m, req.Side, req.Token, req.Discount); err != nil {
		return nil, out, err
	}
	out.UserID = req.UserID
	out.Side = req.Side
	out.Source = req.Source
	out.Time = s.clock()
	return m, out, nil
}

func (s *OrderService) marketRequest(req MarketOrderRequest) (*orderbook.Market, matching.MarketRequest, error) {
	var out matching.MarketRequest
	m, err := s.market(req.Market)
	if err != nil {
		return nil, out, err
	}
	if err := checkSide(req.Side); err != nil {
		return nil, out, err
	}
	prec := m.StockPrec
	if req.Side == orderbook.Bid {
		prec = m.MoneyPrec
	}
	if out.Amount, err = parsePositive("amount", req.Amount, prec); err != nil {
		return nil, out, err
	}
	if out.TakerFee, err = parseFee("taker_fee", req.TakerFee, m.FeePrec); err != nil {
		return nil, out, err
	}
	if err := checkSource(req.Source); err != nil {
		return nil, out, err
	}
	if out.Discount, err = s.discount(m, req.Side, req.Token, req.Discount); err != nil {
		return nil, out, err
	}
	out.UserID = req.UserID
	out.Side = req.Side
	out.Source = req.Source
	out.Time = s.clock()
	return m, out, nil
}

func (s *OrderService) envelopeRequest(req EnvelopePutRequest) (envelope.PutRequest, error) {
	var out envelope.PutRequest
	prec, ok := s.assets.AssetPrec(req.Asset)
	if !ok {
		return out, invalid("asset %q", req.Asset)
	}
	if prec > envelope.AmountPrec {
		prec = envelope.AmountPrec
	}
	supply, err := parsePositive("supply", req.Supply, prec)
	if err != nil {
		return out, err
	}
	if req.Share < envelope.MinShare || req.Share > envelope.MaxShare {
		return out, invalid("share %d", req.Share)
	}
	if req.Type != envelope.Average && req.Type != envelope.Random {
		return out, invalid("type %d", req.Type)
	}
	hours := req.ExpireHours
	if hours == 0 {
		hours = DefaultExpireHours
	}
	return envelope.PutRequest{
		UserID:      req.UserID,
		Asset:       req.Asset,
		Supply:      supply,
		Share:       req.Share,
		Type:        req.Type,
		ExpireHours: hours,
		Time:        s.clock(),
	}, nil
}
