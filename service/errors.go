package service

import (
	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
)

var (
	ErrTokenNotExist = errors.New("token is not exist")
	ErrTooManyOrders = errors.New("too many orders")
)

// Code is the numeric error code returned to RPC clients.
type Code int

const (
	CodeOK               Code = 0
	CodeInvalidArgument  Code = 1
	CodeInternal         Code = 2
	CodeMarketNotFound   Code = 10
	CodeBalanceNotEnough Code = 11
	CodeAmountTooSmall   Code = 12
	CodeNoCounterparty   Code = 13
	CodeOrderNotFound    Code = 14
	CodeUserNotMatch     Code = 15
	CodeTokenNotExist    Code = 16
	CodeRateZero         Code = 17
	CodeEnvelopeNotFound Code = 18
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeInternal:
		return "internal error"
	case CodeMarketNotFound:
		return "market not found"
	case CodeBalanceNotEnough:
		return "balance not enough"
	case CodeAmountTooSmall:
		return "amount too small"
	case CodeNoCounterparty:
		return "no enough trader"
	case CodeOrderNotFound:
		return "order not found"
	case CodeUserNotMatch:
		return "user not match"
	case CodeTokenNotExist:
		return "token is not exist"
	case CodeRateZero:
		return "rate is zero"
	case CodeEnvelopeNotFound:
		return "envelope not found"
	default:
		return "unknown error"
	}
}

// CodeOf maps an error returned by OrderService to its code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, matching.ErrValidation),
		errors.Is(err, envelope.ErrInvalid),
		errors.Is(err, envelope.ErrFinished),
		errors.Is(err, ErrTooManyOrders):
		return CodeInvalidArgument
	case errors.Is(err, matching.ErrMarketNotFound):
		return CodeMarketNotFound
	case errors.Is(err, matching.ErrInsufficientBalance),
		errors.Is(err, envelope.ErrInsufficientBalance):
		return CodeBalanceNotEnough
	case errors.Is(err, matching.ErrAmountTooSmall):
		return CodeAmountTooSmall
	case errors.Is(err, matching.ErrNoCounterparty):
		return CodeNoCounterparty
	case errors.Is(err, matching.ErrOrderNotFound):
		return CodeOrderNotFound
	case errors.Is(err, matching.ErrUserMismatch):
		return CodeUserNotMatch
	case errors.Is(err, ErrTokenNotExist):
		return CodeTokenNotExist
	case errors.Is(err, matching.ErrRateZero):
		return CodeRateZero
	case errors.Is(err, envelope.ErrNotFound):
		return CodeEnvelopeNotFound
	default:
		return CodeInternal
	}
}
