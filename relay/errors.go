package relay

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrInvalidSignature    = floatify.NewError(floatify.KindAuthorization, "relay_invalid_signature", "relay: signature does not match sender")
	ErrBadNonce            = floatify.NewError(floatify.KindStaleAuthorization, "relay_bad_nonce", "relay: wrong nonce")
	ErrNotRecipient        = floatify.NewError(floatify.KindInvalidArgument, "relay_not_recipient", "relay: target does not accept relayed calls")
	ErrInsufficientDeposit = floatify.NewError(floatify.KindInsufficientBalance, "relay_insufficient_deposit", "relay: recipient balance too low")
	ErrZeroDeposit         = floatify.NewError(floatify.KindInvalidArgument, "relay_zero_deposit", "relay: deposit must be positive")
)
