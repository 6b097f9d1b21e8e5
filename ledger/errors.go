package ledger

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrNoContract         = floatify.NewError(floatify.KindInvalidArgument, "no_contract", "no contract at address")
	ErrContractType       = floatify.NewError(floatify.KindInvalidArgument, "contract_type", "contract does not implement the requested interface")
	ErrAddressTaken       = floatify.NewError(floatify.KindInvalidArgument, "address_taken", "a contract is already deployed at address")
	ErrNotPayable         = floatify.NewError(floatify.KindInvalidArgument, "not_payable", "contract does not accept native transfers")
	ErrInsufficientNative = floatify.NewError(floatify.KindInsufficientBalance, "insufficient_native", "native balance too low")
	ErrAmountRange        = floatify.NewError(floatify.KindInvalidArgument, "amount_range", "amount must be within uint256 range")
	ErrOverflow           = floatify.NewError(floatify.KindInvalidArgument, "overflow", "arithmetic overflow")
	ErrUnderflow          = floatify.NewError(floatify.KindInsufficientBalance, "underflow", "arithmetic underflow")
)
