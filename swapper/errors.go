package swapper

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrNotOwnerOrFactory = floatify.NewError(floatify.KindAuthorization, "not_owner_or_factory", "Swapper: caller is not owner or ForwarderFactory")
	ErrNotValidUser      = floatify.NewError(floatify.KindAuthorization, "not_valid_user", "Swapper: caller is not a valid user")
	ErrUntrustedRelayer  = floatify.NewError(floatify.KindAuthorization, "untrusted_relayer", "Swapper: relayer is not trusted")
	ErrNoAllowance       = floatify.NewError(floatify.KindAuthorization, "no_allowance", "Swapper: user has not approved the Swapper")
	ErrNothingToRedeem   = floatify.NewError(floatify.KindInsufficientBalance, "nothing_to_redeem", "Swapper: no shares to redeem")
	ErrExceedsBalance    = floatify.NewError(floatify.KindInsufficientBalance, "exceeds_balance", "Swapper: amount exceeds the user's share value")
	ErrBaseMismatch      = floatify.NewError(floatify.KindInvalidArgument, "base_mismatch", "Swapper: base asset does not match the yield wrapper")
	ErrUnknownSelector   = floatify.NewError(floatify.KindInvalidArgument, "unknown_selector", "Swapper: method cannot be relayed")
	ErrBadCalldata       = floatify.NewError(floatify.KindInvalidArgument, "bad_calldata", "Swapper: calldata does not decode")
)
