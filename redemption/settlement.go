// Package redemption implements the settlement utility that liquidates
// holdings into a single settlement asset and pays them to a fixed
// destination. Once initialized anyone may trigger conversions and sweeps;
// value only ever leaves the utility to the destination chosen by its owner.
package redemption

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/access"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// Settlement events
const (
	EventYieldRedeemed                 = "YieldRedeemed"
	EventNativeConverted               = "NativeConverted"
	EventTokenConverted                = "TokenConverted"
	EventTokenSwept                    = "TokenSwept"
	EventNativeSwept                   = "NativeSwept"
	EventDestinationChanged            = "DestinationChanged"
	EventBaseAssetAddressChanged       = "BaseAssetAddressChanged"
	EventYieldWrapperAddressChanged    = "YieldWrapperAddressChanged"
	EventRouterAddressChanged          = "RouterAddressChanged"
	EventSettlementAssetAddressChanged = "SettlementAssetAddressChanged"
)

// Addresses are the collaborator contracts of a Settlement.
type Addresses struct {
	Base         common.Address `json:"base"`
	YieldWrapper common.Address `json:"yieldWrapper"`
	Router       common.Address `json:"router"`
	Settlement   common.Address `json:"settlement"`
}

// Defaults is the code-level configuration a Settlement starts from.
type Defaults struct {
	Addresses
	MaxSlippageBps uint64 `json:"maxSlippageBps"`
}

// Settlement is the redemption utility.
type Settlement struct {
	addr     common.Address
	defaults Defaults

	own         *access.Ownable
	init        *access.Initializable
	version     *ledger.Value[uint64]
	destination *ledger.Value[common.Address]
	base        *ledger.Value[common.Address]
	wrapper     *ledger.Value[common.Address]
	router      *ledger.Value[common.Address]
	settlement  *ledger.Value[common.Address]
}

var _ ledger.Payable = (*Settlement)(nil)

// New creates an uninitialized Settlement at addr.
func New(addr common.Address, defaults Defaults) *Settlement {
	if defaults.MaxSlippageBps == 0 {
		defaults.MaxSlippageBps = floatify.DefaultMaxSlippageBps
	}
	return &Settlement{
		addr:        addr,
		defaults:    defaults,
		own:         access.NewOwnable(),
		init:        access.NewInitializable(),
		version:     ledger.NewValue(uint64(0)),
		destination: ledger.NewValue(common.Address{}),
		base:        ledger.NewValue(common.Address{}),
		wrapper:     ledger.NewValue(common.Address{}),
		router:      ledger.NewValue(common.Address{}),
		settlement:  ledger.NewValue(common.Address{}),
	}
}

// Address returns the utility's ledger address.
func (s *Settlement) Address() common.Address { return s.addr }

// Owner returns the account allowed to change the configuration.
func (s *Settlement) Owner() common.Address { return s.own.Owner() }

// Version returns the contract version, zero before Initialize.
func (s *Settlement) Version() uint64 { return s.version.Get() }

// Initialized reports whether Initialize has run.
func (s *Settlement) Initialized() bool { return s.init.Initialized() }

// Destination returns where sweeps pay out.
func (s *Settlement) Destination() common.Address { return s.destination.Get() }

// Addresses returns the collaborator addresses in effect.
func (s *Settlement) Addresses() Addresses {
	return Addresses{
		Base:         s.base.Get(),
		YieldWrapper: s.wrapper.Get(),
		Router:       s.router.Get(),
		Settlement:   s.settlement.Get(),
	}
}

// Initialize makes the caller owner and destination. It runs once.
func (s *Settlement) Initialize(f *ledger.Frame) error {
	if err := s.init.Initialize(f); err != nil {
		return err
	}
	if err := s.own.SetOwner(f, f.Sender()); err != nil {
		return err
	}
	s.version.Set(f, floatify.Version)
	s.destination.Set(f, f.Sender())
	s.base.Set(f, s.defaults.Base)
	s.wrapper.Set(f, s.defaults.YieldWrapper)
	s.router.Set(f, s.defaults.Router)
	s.settlement.Set(f, s.defaults.Settlement)
	return nil
}

// requireReady fails until Initialize has set a destination.
func (s *Settlement) requireReady() error {
	if err := s.init.RequireInitialized(); err != nil {
		return err
	}
	if s.destination.Get() == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("destination")
	}
	return nil
}

// Receive accepts native deposits.
func (s *Settlement) Receive(*ledger.Frame) error { return nil }

// RedeemYield pulls yield shares worth amount of base from the caller and
// redeems them into base held by the utility. The caller must have granted an
// allowance; the MaxUint256 sentinel redeems every share. Returns the base
// received.
func (s *Settlement) RedeemYield(f *ledger.Frame, amount *big.Int) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if err := ledger.CheckAmount(amount); err != nil {
		return nil, err
	}
	holder := f.Sender()
	wrapper, wf, err := ledger.Bind[external.YieldWrapper](f, s.wrapper.Get())
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Set(amount)
	if floatify.IsMaxUint256(amount) {
		shares := wrapper.BalanceOf(holder)
		if shares.Sign() == 0 {
			return nil, ErrNothingToConvert.Withf("no shares")
		}
		if received, err = wrapper.Exit(wf, holder, shares); err != nil {
			return nil, err
		}
	} else if _, err := wrapper.Draw(wf, holder, amount); err != nil {
		return nil, err
	}
	f.Emit(EventYieldRedeemed, map[string]interface{}{
		"holder":     holder,
		"baseAmount": new(big.Int).Set(received),
	})
	return received, nil
}

// ConvertNative swaps the whole native balance into the settlement asset.
func (s *Settlement) ConvertNative(f *ledger.Frame) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	amount := f.NativeBalance(s.addr)
	if amount.Sign() == 0 {
		return nil, ErrNothingToConvert.Withf("native")
	}
	out, err := s.swap(f, floatify.NativeAsset, amount)
	if err != nil {
		return nil, err
	}
	f.Emit(EventNativeConverted, map[string]interface{}{
		"amount":           amount,
		"settlementAmount": new(big.Int).Set(out),
	})
	return out, nil
}

// ConvertToken swaps the whole balance of token into the settlement asset.
func (s *Settlement) ConvertToken(f *ledger.Frame, token common.Address) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if token == s.settlement.Get() {
		return nil, ErrSettlementAsset.Withf("%s", token.Hex())
	}
	tok, tf, err := ledger.Bind[external.AssetLedger](f, token)
	if err != nil {
		return nil, err
	}
	amount := tok.BalanceOf(s.addr)
	if amount.Sign() == 0 {
		return nil, ErrNothingToConvert.Withf("%s", token.Hex())
	}
	if err := tok.Approve(tf, s.router.Get(), amount); err != nil {
		return nil, err
	}
	out, err := s.swap(f, token, amount)
	if err != nil {
		return nil, err
	}
	f.Emit(EventTokenConverted, map[string]interface{}{
		"token":            token,
		"amount":           amount,
		"settlementAmount": new(big.Int).Set(out),
	})
	return out, nil
}

// SweepToken pays the whole balance of token to the destination. An empty
// balance is not an error.
func (s *Settlement) SweepToken(f *ledger.Frame, token common.Address) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	tok, tf, err := ledger.Bind[external.AssetLedger](f, token)
	if err != nil {
		return nil, err
	}
	amount := tok.BalanceOf(s.addr)
	if amount.Sign() > 0 {
		if err := tok.Transfer(tf, s.destination.Get(), amount); err != nil {
			return nil, err
		}
	}
	f.Emit(EventTokenSwept, map[string]interface{}{
		"token":       token,
		"destination": s.destination.Get(),
		"amount":      new(big.Int).Set(amount),
	})
	return amount, nil
}

// SweepNative pays the whole native balance to the destination.
func (s *Settlement) SweepNative(f *ledger.Frame) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	amount := f.NativeBalance(s.addr)
	if amount.Sign() > 0 {
		if err := f.TransferNative(s.destination.Get(), amount); err != nil {
			return nil, err
		}
	}
	f.Emit(EventNativeSwept, map[string]interface{}{
		"destination": s.destination.Get(),
		"amount":      new(big.Int).Set(amount),
	})
	return amount, nil
}

// Liquidate converts any native and base holdings into the settlement asset
// and sweeps the settlement asset to the destination. Returns the amount
// swept.
func (s *Settlement) Liquidate(f *ledger.Frame) (*big.Int, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if f.NativeBalance(s.addr).Sign() > 0 {
		if _, err := s.ConvertNative(f); err != nil {
			return nil, err
		}
	}
	base, _, err := ledger.Bind[external.AssetLedger](f, s.base.Get())
	if err != nil {
		return nil, err
	}
	if base.BalanceOf(s.addr).Sign() > 0 {
		if _, err := s.ConvertToken(f, s.base.Get()); err != nil {
			return nil, err
		}
	}
	return s.SweepToken(f, s.settlement.Get())
}

// TransferOwnership hands the utility to newOwner. Owner only.
func (s *Settlement) TransferOwnership(f *ledger.Frame, newOwner common.Address) error {
	return s.own.TransferOwnership(f, f.Sender(), newOwner)
}

// UpdateDestination changes where sweeps pay out. Owner only.
func (s *Settlement) UpdateDestination(f *ledger.Frame, destination common.Address) error {
	return s.update(f, s.destination, EventDestinationChanged, destination)
}

// UpdateBaseAssetAddress replaces the base asset. Owner only.
func (s *Settlement) UpdateBaseAssetAddress(f *ledger.Frame, base common.Address) error {
	return s.update(f, s.base, EventBaseAssetAddressChanged, base)
}

// UpdateYieldWrapperAddress replaces the yield wrapper. Owner only.
func (s *Settlement) UpdateYieldWrapperAddress(f *ledger.Frame, wrapper common.Address) error {
	return s.update(f, s.wrapper, EventYieldWrapperAddressChanged, wrapper)
}

// UpdateRouterAddress replaces the router. Owner only.
func (s *Settlement) UpdateRouterAddress(f *ledger.Frame, router common.Address) error {
	return s.update(f, s.router, EventRouterAddressChanged, router)
}

// UpdateSettlementAssetAddress replaces the settlement asset. Owner only.
func (s *Settlement) UpdateSettlementAssetAddress(f *ledger.Frame, settlement common.Address) error {
	return s.update(f, s.settlement, EventSettlementAssetAddressChanged, settlement)
}

func (s *Settlement) update(f *ledger.Frame, slot *ledger.Value[common.Address], event string, next common.Address) error {
	if err := s.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return floatify.ErrZeroAddress
	}
	previous := slot.Get()
	slot.Set(f, next)
	f.Emit(event, map[string]interface{}{
		"previousAddress": previous,
		"newAddress":      next,
	})
	return nil
}

func (s *Settlement) swap(f *ledger.Frame, src common.Address, amount *big.Int) (*big.Int, error) {
	routerAddr := s.router.Get()
	dst := s.settlement.Get()
	quoter, err := ledger.At[external.SwapRouter](f.Ledger(), routerAddr)
	if err != nil {
		return nil, err
	}
	quote, err := quoter.Quote(src, dst, amount)
	if err != nil {
		return nil, err
	}
	minOut := floatify.ApplySlippage(quote, s.defaults.MaxSlippageBps)

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
	return r.Swap(rf, src, dst, amount, minOut)
}
