// Package external declares the collaborator contracts the forwarding core
// calls into. Reference implementations live in the tokens, router and relay
// packages; the core only ever binds to these interfaces.
//
// State-changing methods take the *ledger.Frame of the call, so the callee
// sees the calling contract as Sender.
package external

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/floatify/floatify/go/ledger"
)

// AssetLedger is a fungible token.
type AssetLedger interface {
	Symbol() string
	Decimals() uint8
	BalanceOf(holder common.Address) *big.Int
	Allowance(holder, spender common.Address) *big.Int
	Transfer(f *ledger.Frame, to common.Address, amount *big.Int) error
	TransferFrom(f *ledger.Frame, from, to common.Address, amount *big.Int) error
	Approve(f *ledger.Frame, spender common.Address, amount *big.Int) error
}

// YieldWrapper wraps a base asset into shares whose base value grows with a
// monotonically non-decreasing rate. Its AssetLedger balances are shares.
type YieldWrapper interface {
	AssetLedger

	// BaseAsset is the wrapped token.
	BaseAsset() common.Address
	// Chi is the current base value of one share in ray (1e27) precision.
	Chi() *big.Int
	// BaseValueOf is the base amount holder's shares redeem for right now.
	BaseValueOf(holder common.Address) *big.Int
	// Nonces is holder's next permit nonce.
	Nonces(holder common.Address) *big.Int

	// Join pulls amount of base from the caller and credits dst with shares.
	Join(f *ledger.Frame, dst common.Address, amount *big.Int) error
	// Exit burns shares of src and pays their base value to the caller. It
	// returns the base amount paid.
	Exit(f *ledger.Frame, src common.Address, shares *big.Int) (*big.Int, error)
	// Draw burns enough shares of src to pay amount of base to the caller. It
	// returns the shares burned.
	Draw(f *ledger.Frame, src common.Address, amount *big.Int) (*big.Int, error)
	// Move transfers shares worth amount of base from src to dst.
	Move(f *ledger.Frame, src, dst common.Address, amount *big.Int) error
	// Permit applies a holder-signed approval of spender.
	Permit(f *ledger.Frame, holder, spender common.Address, nonce, expiry *big.Int, allowed bool, v uint8, r, s [32]byte) error
}

// SwapRouter exchanges one asset for another at a quoted rate. The native
// currency is addressed by floatify.NativeAsset and is passed as call value.
type SwapRouter interface {
	// Quote returns the output amountIn of src buys in dst.
	Quote(src, dst common.Address, amountIn *big.Int) (*big.Int, error)
	// Swap pulls amountIn of src from the caller and pays the output in dst to
	// the caller, failing if it would be below minOut.
	Swap(f *ledger.Frame, src, dst common.Address, amountIn, minOut *big.Int) (*big.Int, error)
}

// RelayGateway keeps the prepaid operating funds of relay recipients.
type RelayGateway interface {
	// BalanceOf is the prepaid balance of recipient.
	BalanceOf(recipient common.Address) *big.Int
	// DepositFor credits the call value to recipient.
	DepositFor(f *ledger.Frame, recipient common.Address) error
	// Withdraw pays amount of the caller's prepaid balance to dest.
	Withdraw(f *ledger.Frame, amount *big.Int, dest common.Address) error
}
