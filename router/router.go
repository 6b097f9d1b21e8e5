// Package router is the reference swap router of a local deployment. It
// trades at rates set by its operator out of its own reserves. A configurable
// execution skew makes swaps pay less than quoted, which is how tests stage
// price movement between quote and execution.
package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// Router events
const (
	EventSwapped    = "Swapped"
	EventRateSet    = "RateSet"
	EventSkewSet    = "SkewSet"
	EventReservesIn = "ReservesReceived"
)

// RateUnit is the fixed-point unit of rates: amountOut = amountIn * rate / RateUnit.
var RateUnit = big.NewInt(1e18)

type pair struct {
	src common.Address
	dst common.Address
}

// Router trades at operator-set rates.
type Router struct {
	addr     common.Address
	operator common.Address

	rates *ledger.Map[pair, *big.Int]
	skew  *ledger.Value[uint64]
}

var (
	_ external.SwapRouter = (*Router)(nil)
	_ ledger.Payable      = (*Router)(nil)
)

// New creates a router deployed at addr and operated by operator.
func New(addr, operator common.Address) *Router {
	return &Router{
		addr:     addr,
		operator: operator,
		rates:    ledger.NewMap[pair, *big.Int](),
		skew:     ledger.NewValue(uint64(0)),
	}
}

// Address returns the router's ledger address.
func (r *Router) Address() common.Address { return r.addr }

// Rate returns the rate of src in dst and whether one is set.
func (r *Router) Rate(src, dst common.Address) (*big.Int, bool) {
	rate, ok := r.rates.Get(pair{src, dst})
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(rate), true
}

// Skew returns the execution skew in basis points.
func (r *Router) Skew() uint64 { return r.skew.Get() }

// SetRate sets the rate of src in dst scaled by RateUnit. Operator only.
func (r *Router) SetRate(f *ledger.Frame, src, dst common.Address, rate *big.Int) error {
	if f.Sender() != r.operator {
		return ErrNotOperator
	}
	if err := ledger.CheckAmount(rate); err != nil {
		return err
	}
	if src == dst {
		return ErrSamePair
	}
	r.rates.Set(f, pair{src, dst}, new(big.Int).Set(rate))
	f.Emit(EventRateSet, map[string]interface{}{"src": src, "dst": dst, "rate": new(big.Int).Set(rate)})
	return nil
}

// SetSkew makes swaps pay bps basis points less than quoted. Operator only.
func (r *Router) SetSkew(f *ledger.Frame, bps uint64) error {
	if f.Sender() != r.operator {
		return ErrNotOperator
	}
	if bps > floatify.BpsDenominator {
		return ErrSkewRange
	}
	r.skew.Set(f, bps)
	f.Emit(EventSkewSet, map[string]interface{}{"bps": bps})
	return nil
}

// Receive accepts native reserves.
func (r *Router) Receive(f *ledger.Frame) error {
	f.Emit(EventReservesIn, map[string]interface{}{"from": f.Sender(), "amount": f.Value()})
	return nil
}

// Quote returns the output amountIn of src buys in dst.
func (r *Router) Quote(src, dst common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := ledger.CheckAmount(amountIn); err != nil {
		return nil, err
	}
	rate, ok := r.rates.Get(pair{src, dst})
	if !ok {
		return nil, ErrNoRoute.WithDetails(map[string]interface{}{"src": src.Hex(), "dst": dst.Hex()})
	}
	return ledger.MulDiv(amountIn, rate, RateUnit)
}

// Swap pulls amountIn of src from the caller, or takes it from the call
// value for the native asset, and pays the output in dst to the caller.
func (r *Router) Swap(f *ledger.Frame, src, dst common.Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := ledger.CheckAmount(minOut); err != nil {
		return nil, err
	}
	quoted, err := r.Quote(src, dst, amountIn)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(quoted, new(big.Int).SetUint64(floatify.BpsDenominator-r.skew.Get()))
	out.Quo(out, big.NewInt(floatify.BpsDenominator))
	if out.Cmp(minOut) < 0 {
		return nil, ErrSlippage.WithDetails(map[string]interface{}{
			"amountOut": out.String(),
			"minOut":    minOut.String(),
		})
	}

	trader := f.Sender()
	if src == floatify.NativeAsset {
		if f.Value().Cmp(amountIn) != 0 {
			return nil, ErrValueMismatch.WithDetails(map[string]interface{}{
				"value":    f.Value().String(),
				"amountIn": amountIn.String(),
			})
		}
	} else {
		tok, tf, err := ledger.Bind[external.AssetLedger](f, src)
		if err != nil {
			return nil, err
		}
		if err := tok.TransferFrom(tf, trader, r.addr, amountIn); err != nil {
			return nil, err
		}
	}

	if dst == floatify.NativeAsset {
		if f.NativeBalance(r.addr).Cmp(out) < 0 {
			return nil, ErrInsufficientReserves.WithDetails(map[string]interface{}{"asset": dst.Hex()})
		}
		if err := f.TransferNative(trader, out); err != nil {
			return nil, err
		}
	} else {
		tok, tf, err := ledger.Bind[external.AssetLedger](f, dst)
		if err != nil {
			return nil, err
		}
		if tok.BalanceOf(r.addr).Cmp(out) < 0 {
			return nil, ErrInsufficientReserves.WithDetails(map[string]interface{}{"asset": dst.Hex()})
		}
		if err := tok.Transfer(tf, trader, out); err != nil {
			return nil, err
		}
	}

	f.Emit(EventSwapped, map[string]interface{}{
		"trader":    trader,
		"src":       src,
		"dst":       dst,
		"amountIn":  new(big.Int).Set(amountIn),
		"amountOut": new(big.Int).Set(out),
	})
	return out, nil
}
