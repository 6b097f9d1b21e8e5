package forwarder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// MintAndForwardYield wraps the forwarder's whole base balance into yield
// shares credited to the owner. Owner or admin.
func (fw *Forwarder) MintAndForwardYield(f *ledger.Frame) (*big.Int, error) {
	if err := fw.requireOwnerOrAdmin(f.Sender()); err != nil {
		return nil, err
	}
	return fw.forwardBase(f)
}

// ConvertAndForwardNative swaps the forwarder's entire native balance into
// base and forwards it as yield. The swap must return at least the fresh
// quote less the slippage allowance. Owner or admin.
func (fw *Forwarder) ConvertAndForwardNative(f *ledger.Frame) (*big.Int, error) {
	if err := fw.requireOwnerOrAdmin(f.Sender()); err != nil {
		return nil, err
	}
	amount := f.NativeBalance(fw.addr)
	if amount.Sign() == 0 {
		return nil, ErrNothingToForward.Withf("native")
	}
	out, err := fw.swap(f, floatify.NativeAsset, amount)
	if err != nil {
		return nil, err
	}
	f.Emit(EventNativeConverted, map[string]interface{}{
		"amount":     amount,
		"baseAmount": new(big.Int).Set(out),
	})
	return fw.forwardBase(f)
}

// ConvertAndForwardToken swaps the forwarder's entire balance of token into
// base and forwards it as yield. Base is forwarded without a swap and yield
// shares are passed to the owner as they are. Owner or admin.
func (fw *Forwarder) ConvertAndForwardToken(f *ledger.Frame, token common.Address) (*big.Int, error) {
	if err := fw.requireOwnerOrAdmin(f.Sender()); err != nil {
		return nil, err
	}
	switch token {
	case fw.base.Get():
		return fw.forwardBase(f)
	case fw.wrapper.Get():
		amount, err := fw.sweepToken(f, token)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			return nil, ErrNothingToForward.Withf("%s", token.Hex())
		}
		return amount, nil
	}

	tok, tf, err := ledger.Bind[external.AssetLedger](f, token)
	if err != nil {
		return nil, err
	}
	amount := tok.BalanceOf(fw.addr)
	if amount.Sign() == 0 {
		return nil, ErrNothingToForward.Withf("%s", token.Hex())
	}
	// The router pulls exactly amount, leaving no standing allowance.
	if err := tok.Approve(tf, fw.router.Get(), amount); err != nil {
		return nil, err
	}
	out, err := fw.swap(f, token, amount)
	if err != nil {
		return nil, err
	}
	f.Emit(EventTokenConverted, map[string]interface{}{
		"token":      token,
		"amount":     amount,
		"baseAmount": new(big.Int).Set(out),
	})
	return fw.forwardBase(f)
}

// SweepRawTokens transfers the forwarder's whole balance of token to the
// owner untouched. An empty balance is not an error. Owner or admin.
func (fw *Forwarder) SweepRawTokens(f *ledger.Frame, token common.Address) (*big.Int, error) {
	if err := fw.requireOwnerOrAdmin(f.Sender()); err != nil {
		return nil, err
	}
	return fw.sweepToken(f, token)
}

// SweepRawNative transfers the forwarder's whole native balance to the owner.
// Owner or admin.
func (fw *Forwarder) SweepRawNative(f *ledger.Frame) (*big.Int, error) {
	if err := fw.requireOwnerOrAdmin(f.Sender()); err != nil {
		return nil, err
	}
	amount := f.NativeBalance(fw.addr)
	if amount.Sign() > 0 {
		if err := f.TransferNative(fw.own.Owner(), amount); err != nil {
			return nil, err
		}
	}
	f.Emit(EventRawNativeSwept, map[string]interface{}{
		"recipient": fw.own.Owner(),
		"amount":    new(big.Int).Set(amount),
	})
	return amount, nil
}

// forwardBase joins the whole base balance into the wrapper on behalf of the
// owner.
func (fw *Forwarder) forwardBase(f *ledger.Frame) (*big.Int, error) {
	base, _, err := ledger.Bind[external.AssetLedger](f, fw.base.Get())
	if err != nil {
		return nil, err
	}
	amount := base.BalanceOf(fw.addr)
	if amount.Sign() == 0 {
		return nil, ErrNothingToForward.Withf("base")
	}
	wrapper, wf, err := ledger.Bind[external.YieldWrapper](f, fw.wrapper.Get())
	if err != nil {
		return nil, err
	}
	if err := wrapper.Join(wf, fw.own.Owner(), amount); err != nil {
		return nil, err
	}
	f.Emit(EventYieldForwarded, map[string]interface{}{
		"recipient":    fw.own.Owner(),
		"amountInBase": new(big.Int).Set(amount),
	})
	return amount, nil
}

// swap trades amount of src for base through the router, requiring at least
// the fresh quote less the slippage allowance.
func (fw *Forwarder) swap(f *ledger.Frame, src common.Address, amount *big.Int) (*big.Int, error) {
	routerAddr := fw.router.Get()
	base := fw.base.Get()
	quoter, err := ledger.At[external.SwapRouter](f.Ledger(), routerAddr)
	if err != nil {
		return nil, err
	}
	quote, err := quoter.Quote(src, base, amount)
	if err != nil {
		return nil, err
	}
	minOut := floatify.ApplySlippage(quote, fw.defaults.MaxSlippageBps)

	var (
		r  external.SwapRouter
		rf *ledger.Frame
	)
	if src == floatify.NativeAsset {
		r, rf, err = ledger.BindValue[external.SwapRouter](f, routerAddr, amount)
	} else {
		r, rf, err = ledger.Bind[external.SwapRouter](f, routerAddr)
	}
	if err != nil {
		return nil, err
	}
	return r.Swap(rf, src, base, amount, minOut)
}

func (fw *Forwarder) sweepToken(f *ledger.Frame, token common.Address) (*big.Int, error) {
	tok, tf, err := ledger.Bind[external.AssetLedger](f, token)
	if err != nil {
		return nil, err
	}
	amount := tok.BalanceOf(fw.addr)
	if amount.Sign() > 0 {
		if err := tok.Transfer(tf, fw.own.Owner(), amount); err != nil {
			return nil, err
		}
	}
	f.Emit(EventRawTokensSwept, map[string]interface{}{
		"token":     token,
		"recipient": fw.own.Owner(),
		"amount":    new(big.Int).Set(amount),
	})
	return amount, nil
}
