package floatify

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on the failure category
// without matching individual codes.
type Kind string

const (
	// KindAuthorization means the caller lacks an owner, admin, whitelist,
	// factory or allowance privilege.
	KindAuthorization Kind = "authorization"
	// KindReinitialization means a one-time initializer ran twice.
	KindReinitialization Kind = "reinitialization"
	// KindStaleAuthorization means a permit or relay request carried a stale
	// nonce, expired, or was revoked.
	KindStaleAuthorization Kind = "stale_authorization"
	// KindSlippage means a swap would have paid out less than its floor.
	KindSlippage Kind = "slippage"
	// KindInsufficientBalance means a conversion, transfer or withdrawal ran
	// against a zero or too small balance.
	KindInsufficientBalance Kind = "insufficient_balance"
	// KindInvalidArgument covers malformed input: zero addresses, missing
	// contracts, undecodable calldata, out-of-range amounts.
	KindInvalidArgument Kind = "invalid_argument"
)

// Error is the machine-checkable failure returned by every state-changing
// operation. Two errors are equal under errors.Is when their codes match, so
// package sentinels can be compared against errors that carry extra details.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	out := *e
	out.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		out.Details[k] = v
	}
	for k, v := range details {
		out.Details[k] = v
	}
	return &out
}

// Withf returns a copy of e whose message has a formatted suffix appended.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	out := *e
	out.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return &out
}

// NewError creates a new error
func NewError(kind Kind, code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Errors shared by every component that embeds ownership or one-time
// initialization.
var (
	ErrNotOwner           = NewError(KindAuthorization, "not_owner", "Ownable: caller is not the owner")
	ErrZeroOwner          = NewError(KindInvalidArgument, "zero_owner", "Ownable: new owner is the zero address")
	ErrAlreadyInitialized = NewError(KindReinitialization, "already_initialized", "Initializable: contract instance has already been initialized")
	ErrNotInitialized     = NewError(KindInvalidArgument, "not_initialized", "Initializable: contract instance is not initialized")
	ErrZeroAddress        = NewError(KindInvalidArgument, "zero_address", "address must not be zero")
	ErrInvalidAmount      = NewError(KindInvalidArgument, "invalid_amount", "amount must be within uint256 range")
)
