package swapper

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// AcceptRelayedCall admits relayed calls to the relayable methods from
// whitelisted users, submitted by a trusted relayer. It runs before the hub
// charges the Swapper's deposit, so calls that cannot succeed with the user's
// current shares and allowance are refused here.
func (s *Swapper) AcceptRelayedCall(relayer, from common.Address, data []byte, _ *big.Int) error {
	if !s.IsTrustedRelayer(relayer) {
		return ErrUntrustedRelayer.WithDetails(map[string]interface{}{"relayer": relayer.Hex()})
	}
	call, err := DecodeCall(data)
	if err != nil {
		return err
	}
	if !s.IsValidUser(from) {
		return ErrNotValidUser.WithDetails(map[string]interface{}{"caller": from.Hex()})
	}
	if call.Target == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("target")
	}

	wrapper, err := ledger.At[external.YieldWrapper](s.l, s.wrapper.Get())
	if err != nil {
		return err
	}
	if wrapper.BalanceOf(from).Sign() == 0 {
		return ErrNothingToRedeem.WithDetails(map[string]interface{}{"user": from.Hex()})
	}
	if wrapper.Allowance(from, s.addr).Sign() == 0 {
		return ErrNoAllowance.WithDetails(map[string]interface{}{"user": from.Hex()})
	}
	if !floatify.IsMaxUint256(call.Amount) {
		if value := wrapper.BaseValueOf(from); call.Amount.Cmp(value) > 0 {
			return ErrExceedsBalance.WithDetails(map[string]interface{}{
				"user":   from.Hex(),
				"amount": call.Amount.String(),
				"value":  value.String(),
			})
		}
	}
	return nil
}

// HandleRelayedCall decodes data and runs the relayed method.
func (s *Swapper) HandleRelayedCall(f *ledger.Frame, data []byte) error {
	call, err := DecodeCall(data)
	if err != nil {
		return err
	}
	switch call.Method {
	case MethodWithdrawChaiAsDai:
		_, err = s.WithdrawChaiAsDai(f, call.Target, call.Amount)
	case MethodTransferChai:
		_, err = s.TransferChai(f, call.Target, call.Amount)
	default:
		err = ErrUnknownSelector.Withf("%s", call.Method)
	}
	return err
}
