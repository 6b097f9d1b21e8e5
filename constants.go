// Package floatify holds the error taxonomy and shared constants of the
// forwarding and permit-gated redemption engine. The contracts themselves
// live in the forwarder, factory, swapper and redemption subpackages and run
// on the in-process ledger in the ledger subpackage.
package floatify

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

const (
	// Version is the contract version reported by every initialized component.
	Version = 1

	// DefaultMaxSlippageBps is the default floor applied to router quotes:
	// a swap must return at least 97% of the quoted amount.
	DefaultMaxSlippageBps = 300

	// BpsDenominator is the basis-point denominator.
	BpsDenominator = 10000
)

var (
	// NativeAsset is the pseudo-token address that stands for the native
	// currency in router calls.
	NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
)

// MaxUint256 returns 2^256-1. Passed as an amount it means "entire balance";
// as an allowance it means unlimited.
func MaxUint256() *big.Int {
	return new(big.Int).Set(math.MaxBig256)
}

// IsMaxUint256 reports whether x is the 2^256-1 sentinel.
func IsMaxUint256(x *big.Int) bool {
	return x != nil && x.Cmp(math.MaxBig256) == 0
}

// ApplySlippage returns quote reduced by bps basis points, rounding down.
func ApplySlippage(quote *big.Int, bps uint64) *big.Int {
	if bps >= BpsDenominator {
		return new(big.Int)
	}
	out := new(big.Int).Mul(quote, new(big.Int).SetUint64(BpsDenominator-bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}
