package entry

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Command payloads are encoded as protobuf wire messages without a
// schema file. Decimals travel as their string form so that a replay
// reproduces the exact values the live command saw.

// OrderOp is the payload of RecordLimitOrder and RecordMarketOrder.
// Price and MakerFee are empty for market orders.
type OrderOp struct {
	Market    string
	UserID    uint32
	Side      uint32
	Amount    string
	Price     string
	TakerFee  string
	MakerFee  string
	Source    string
	Token     string
	Discount  string
	TokenRate string
	AssetRate string
	Time      float64
	// Dropped marks a limit order whose remainder could not rest.
	Dropped bool
}

type CancelOp struct {
	Market  string
	UserID  uint32
	OrderID uint64
	Time    float64
}

type EnvelopePutOp struct {
	UserID      uint32
	Asset       string
	Supply      string
	Share       uint32
	Type        uint32
	ExpireHours uint32
	Time        float64
}

type EnvelopeOpenOp struct {
	ID     uint64
	UserID uint32
	Time   float64
}

type EnvelopeCancelOp struct {
	ID   uint64
	Time float64
}

type wireWriter struct {
	b []byte
}

func (w *wireWriter) str(n protowire.Number, s string) {
	if s == "" {
		return
	}
	w.b = protowire.AppendTag(w.b, n, protowire.BytesType)
	w.b = protowire.AppendString(w.b, s)
}

func (w *wireWriter) uint(n protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, n, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

func (w *wireWriter) float(n protowire.Number, v float64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, n, protowire.Fixed64Type)
	w.b = protowire.AppendFixed64(w.b, math.Float64bits(v))
}

// wireField is one decoded field. Bytes is set for length-delimited
// fields, Num for varint and fixed64 fields.
type wireField struct {
	Bytes []byte
	Num   uint64
}

func (f wireField) str() string    { return string(f.Bytes) }
func (f wireField) u32() uint32    { return uint32(f.Num) }
func (f wireField) float() float64 { return math.Float64frombits(f.Num) }

func readFields(b []byte, fn func(protowire.Number, wireField)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "decode tag")
		}
		b = b[n:]

		var f wireField
		switch typ {
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			f.Num, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.Num, n = protowire.ConsumeFixed64(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "decode field %d", num)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "decode field %d", num)
		}
		b = b[n:]
		fn(num, f)
	}
	return nil
}

func (o OrderOp) Marshal() []byte {
	var w wireWriter
	w.str(1, o.Market)
	w.uint(2, uint64(o.UserID))
	w.uint(3, uint64(o.Side))
	w.str(4, o.Amount)
	w.str(5, o.Price)
	w.str(6, o.TakerFee)
	w.str(7, o.MakerFee)
	w.str(8, o.Source)
	w.str(9, o.Token)
	w.str(10, o.Discount)
	w.str(11, o.TokenRate)
	w.str(12, o.AssetRate)
	w.float(13, o.Time)
	if o.Dropped {
		w.uint(14, 1)
	}
	return w.b
}

func (o *OrderOp) Unmarshal(b []byte) error {
	return readFields(b, func(n protowire.Number, f wireField) {
		switch n {
		case 1:
			o.Market = f.str()
		case 2:
			o.UserID = f.u32()
		case 3:
			o.Side = f.u32()
		case 4:
			o.Amount = f.str()
		case 5:
			o.Price = f.str()
		case 6:
			o.TakerFee = f.str()
		case 7:
			o.MakerFee = f.str()
		case 8:
			o.Source = f.str()
		case 9:
			o.Token = f.str()
		case 10:
			o.Discount = f.str()
		case 11:
			o.TokenRate = f.str()
		case 12:
			o.AssetRate = f.str()
		case 13:
			o.Time = f.float()
		case 14:
			o.Dropped = f.Num != 0
		}
	})
}

func (o CancelOp) Marshal() []byte {
	var w wireWriter
	w.str(1, o.Market)
	w.uint(2, uint64(o.UserID))
	w.uint(3, o.OrderID)
	w.float(4, o.Time)
	return w.b
}

func (o *CancelOp) Unmarshal(b []byte) error {
	return readFields(b, func(n protowire.Number, f wireField) {
		switch n {
		case 1:
			o.Market = f.str()
		case 2:
			o.UserID = f.u32()
		case 3:
			o.OrderID = f.Num
		case 4:
			o.Time = f.float()
		}
	})
}

func (o EnvelopePutOp) Marshal() []byte {
	var w wireWriter
	w.uint(1, uint64(o.UserID))
	w.str(2, o.Asset)
	w.str(3, o.Supply)
	w.uint(4, uint64(o.Share))
	w.uint(5, uint64(o.Type))
	w.uint(6, uint64(o.ExpireHours))
	w.float(7, o.Time)
	return w.b
}

func (o *EnvelopePutOp) Unmarshal(b []byte) error {
	return readFields(b, func(n protowire.Number, f wireField) {
		switch n {
		case 1:
			o.UserID = f.u32()
		case 2:
			o.Asset = f.str()
		case 3:
			o.Supply = f.str()
		case 4:
			o.Share = f.u32()
		case 5:
			o.Type = f.u32()
		case 6:
			o.ExpireHours = f.u32()
		case 7:
			o.Time = f.float()
		}
	})
}

func (o EnvelopeOpenOp) Marshal() []byte {
	var w wireWriter
	w.uint(1, o.ID)
	w.uint(2, uint64(o.UserID))
	w.float(3, o.Time)
	return w.b
}

func (o *EnvelopeOpenOp) Unmarshal(b []byte) error {
	return readFields(b, func(n protowire.Number, f wireField) {
		switch n {
		case 1:
			o.ID = f.Num
		case 2:
			o.UserID = f.u32()
		case 3:
			o.Time = f.float()
		}
	})
}

func (o EnvelopeCancelOp) Marshal() []byte {
	var w wireWriter
	w.uint(1, o.ID)
	w.float(2, o.Time)
	return w.b
}

func (o *EnvelopeCancelOp) Unmarshal(b []byte) error {
	return readFields(b, func(n protowire.Number, f wireField) {
		switch n {
		case 1:
			o.ID = f.Num
		case 2:
			o.Time = f.float()
		}
	})
}
