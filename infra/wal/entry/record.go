package entry

import "time"

type RecordType uint8

const (
	RecordLimitOrder RecordType = iota + 1
	RecordMarketOrder
	RecordCancelOrder
	RecordEnvelopePut
	RecordEnvelopeOpen
	RecordEnvelopeCancel
)

func (t RecordType) String() string {
	switch t {
	case RecordLimitOrder:
		return "limit_order"
	case RecordMarketOrder:
		return "market_order"
	case RecordCancelOrder:
		return "cancel_order"
	case RecordEnvelopePut:
		return "envelope_put"
	case RecordEnvelopeOpen:
		return "envelope_open"
	case RecordEnvelopeCancel:
		return "envelope_cancel"
	default:
		return "unknown"
	}
}

// Record is one accepted command. Seq is assigned by the writer and is
// strictly increasing across segments.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
