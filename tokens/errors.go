package tokens

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrInsufficientBalance   = floatify.NewError(floatify.KindInsufficientBalance, "insufficient_balance", "ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = floatify.NewError(floatify.KindAuthorization, "insufficient_allowance", "ERC20: transfer amount exceeds allowance")
	ErrZeroRecipient         = floatify.NewError(floatify.KindInvalidArgument, "zero_recipient", "ERC20: transfer to the zero address")
	ErrNotMinter             = floatify.NewError(floatify.KindAuthorization, "not_minter", "caller is not a minter")
	ErrRateTooLow            = floatify.NewError(floatify.KindInvalidArgument, "rate_too_low", "savings rate must be at least one ray")

	ErrPermitZeroHolder = floatify.NewError(floatify.KindInvalidArgument, "permit_zero_holder", "chai/invalid-address-0")
	ErrInvalidPermit    = floatify.NewError(floatify.KindAuthorization, "invalid_permit", "chai/invalid-permit")
	ErrPermitExpired    = floatify.NewError(floatify.KindStaleAuthorization, "permit_expired", "chai/permit-expired")
	ErrInvalidNonce     = floatify.NewError(floatify.KindStaleAuthorization, "invalid_nonce", "chai/invalid-nonce")
	ErrPermitRevoked    = floatify.NewError(floatify.KindStaleAuthorization, "permit_revoked", "chai/permit-revoked")
)
