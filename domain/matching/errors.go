package matching

import "errors"

// User facing outcomes. None of them mutate state.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("balance not enough")
	ErrAmountTooSmall      = errors.New("amount too small")
	ErrNoCounterparty      = errors.New("no counterparty")
	ErrRateZero            = errors.New("discount rate is zero")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUserMismatch        = errors.New("user not match")
	ErrMarketNotFound      = errors.New("market not found")
)

// ErrInternal marks a broken invariant. It is logged at error level and
// should page an operator.
var ErrInternal = errors.New("internal error")
