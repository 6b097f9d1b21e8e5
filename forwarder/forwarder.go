// Package forwarder implements the per-user deposit agent. A Forwarder
// receives base, yield, miscellaneous tokens and native currency at its
// address, converts them into yield shares and forwards the shares to its
// owner. Deployments create one template and clone it per user.
package forwarder

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/access"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// Forwarder events
const (
	EventAdminAddressChanged        = "AdminAddressChanged"
	EventBaseAssetAddressChanged    = "BaseAssetAddressChanged"
	EventYieldWrapperAddressChanged = "YieldWrapperAddressChanged"
	EventRouterAddressChanged       = "RouterAddressChanged"
	EventYieldForwarded             = "YieldForwarded"
	EventNativeConverted            = "NativeConverted"
	EventTokenConverted             = "TokenConverted"
	EventRawTokensSwept             = "RawTokensSwept"
	EventRawNativeSwept             = "RawNativeSwept"
)

// Addresses are the collaborator contracts a Forwarder talks to.
type Addresses struct {
	Base         common.Address `json:"base"`
	YieldWrapper common.Address `json:"yieldWrapper"`
	Router       common.Address `json:"router"`
}

// Defaults is the code-level configuration every instance starts from. A
// clone shares its template's defaults.
type Defaults struct {
	Addresses
	MaxSlippageBps uint64 `json:"maxSlippageBps"`
}

// Approval is a standing allowance granted by a Forwarder.
type Approval struct {
	Granter common.Address `json:"granter"`
	Grantee common.Address `json:"grantee"`
	Asset   common.Address `json:"asset"`
	Limit   *big.Int       `json:"limit"`
}

type approvalKey struct {
	asset   common.Address
	grantee common.Address
}

// Forwarder is one user's deposit agent.
type Forwarder struct {
	addr     common.Address
	defaults Defaults

	own     *access.Ownable
	init    *access.Initializable
	admin   *ledger.Value[common.Address]
	version *ledger.Value[uint64]
	base    *ledger.Value[common.Address]
	wrapper *ledger.Value[common.Address]
	router  *ledger.Value[common.Address]

	approvals *ledger.Map[approvalKey, Approval]
}

var (
	_ ledger.Cloneable = (*Forwarder)(nil)
	_ ledger.Payable   = (*Forwarder)(nil)
)

// New creates an uninitialized Forwarder at addr.
func New(addr common.Address, defaults Defaults) *Forwarder {
	if defaults.MaxSlippageBps == 0 {
		defaults.MaxSlippageBps = floatify.DefaultMaxSlippageBps
	}
	return &Forwarder{
		addr:      addr,
		defaults:  defaults,
		own:       access.NewOwnable(),
		init:      access.NewInitializable(),
		admin:     ledger.NewValue(common.Address{}),
		version:   ledger.NewValue(uint64(0)),
		base:      ledger.NewValue(common.Address{}),
		wrapper:   ledger.NewValue(common.Address{}),
		router:    ledger.NewValue(common.Address{}),
		approvals: ledger.NewMap[approvalKey, Approval](),
	}
}

// NewClone returns a fresh instance sharing f's defaults.
func (fw *Forwarder) NewClone(addr common.Address) ledger.Contract {
	return New(addr, fw.defaults)
}

// Address returns the forwarder's ledger address.
func (fw *Forwarder) Address() common.Address { return fw.addr }

// Owner returns the user the forwarder forwards to.
func (fw *Forwarder) Owner() common.Address { return fw.own.Owner() }

// Admin returns the operational admin.
func (fw *Forwarder) Admin() common.Address { return fw.admin.Get() }

// Version returns 1 once initialized.
func (fw *Forwarder) Version() uint64 { return fw.version.Get() }

// Initialized reports whether Initialize has run.
func (fw *Forwarder) Initialized() bool { return fw.init.Initialized() }

// Defaults returns the code-level configuration.
func (fw *Forwarder) Defaults() Defaults { return fw.defaults }

// Addresses returns the collaborator addresses in effect.
func (fw *Forwarder) Addresses() Addresses {
	return Addresses{Base: fw.base.Get(), YieldWrapper: fw.wrapper.Get(), Router: fw.router.Get()}
}

// StandingApprovals lists every non-zero allowance the forwarder has
// granted, ordered by asset and grantee.
func (fw *Forwarder) StandingApprovals() []Approval {
	var out []Approval
	fw.approvals.Range(func(_ approvalKey, a Approval) bool {
		a.Limit = new(big.Int).Set(a.Limit)
		out = append(out, a)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Asset.Bytes(), out[j].Asset.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Grantee.Bytes(), out[j].Grantee.Bytes()) < 0
	})
	return out
}

// Initialize sets owner and admin, copies the default addresses and grants
// the yield wrapper an unlimited allowance over the base asset. It runs once.
func (fw *Forwarder) Initialize(f *ledger.Frame, owner, admin common.Address) error {
	if err := fw.init.Initialize(f); err != nil {
		return err
	}
	if admin == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("admin")
	}
	if err := fw.own.SetOwner(f, owner); err != nil {
		return err
	}
	fw.admin.Set(f, admin)
	fw.version.Set(f, floatify.Version)
	fw.base.Set(f, fw.defaults.Base)
	fw.wrapper.Set(f, fw.defaults.YieldWrapper)
	fw.router.Set(f, fw.defaults.Router)
	return fw.approve(f, fw.defaults.Base, fw.defaults.YieldWrapper, floatify.MaxUint256())
}

// TransferOwnership hands the forwarder to newOwner. Owner only.
func (fw *Forwarder) TransferOwnership(f *ledger.Frame, newOwner common.Address) error {
	return fw.own.TransferOwnership(f, f.Sender(), newOwner)
}

// UpdateAdminAddress replaces the admin. Admin only.
func (fw *Forwarder) UpdateAdminAddress(f *ledger.Frame, admin common.Address) error {
	if err := fw.requireAdmin(f.Sender()); err != nil {
		return err
	}
	if admin == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("admin")
	}
	previous := fw.admin.Get()
	fw.admin.Set(f, admin)
	emitChange(f, EventAdminAddressChanged, previous, admin)
	return nil
}

// UpdateBaseAssetAddress switches the base asset, moving the wrapper's
// standing allowance from the old base to the new one. Admin only.
func (fw *Forwarder) UpdateBaseAssetAddress(f *ledger.Frame, base common.Address) error {
	if err := fw.requireAdmin(f.Sender()); err != nil {
		return err
	}
	previous := fw.base.Get()
	wrapper := fw.wrapper.Get()
	if err := fw.rotate(f, approvalKey{previous, wrapper}, approvalKey{base, wrapper}); err != nil {
		return err
	}
	fw.base.Set(f, base)
	emitChange(f, EventBaseAssetAddressChanged, previous, base)
	return nil
}

// UpdateYieldWrapperAddress switches the wrapper, moving the standing base
// allowance from the old wrapper to the new one. Admin only.
func (fw *Forwarder) UpdateYieldWrapperAddress(f *ledger.Frame, wrapper common.Address) error {
	if err := fw.requireAdmin(f.Sender()); err != nil {
		return err
	}
	previous := fw.wrapper.Get()
	base := fw.base.Get()
	if err := fw.rotate(f, approvalKey{base, previous}, approvalKey{base, wrapper}); err != nil {
		return err
	}
	fw.wrapper.Set(f, wrapper)
	emitChange(f, EventYieldWrapperAddressChanged, previous, wrapper)
	return nil
}

// UpdateRouterAddress switches the router. The forwarder holds no standing
// router allowance. Admin only.
func (fw *Forwarder) UpdateRouterAddress(f *ledger.Frame, router common.Address) error {
	if err := fw.requireAdmin(f.Sender()); err != nil {
		return err
	}
	previous := fw.router.Get()
	fw.router.Set(f, router)
	emitChange(f, EventRouterAddressChanged, previous, router)
	return nil
}

// Receive accepts native deposits.
func (fw *Forwarder) Receive(*ledger.Frame) error { return nil }

func (fw *Forwarder) requireAdmin(caller common.Address) error {
	if caller == (common.Address{}) || caller != fw.admin.Get() {
		return ErrNotAdmin.WithDetails(map[string]interface{}{"caller": caller.Hex()})
	}
	return nil
}

func (fw *Forwarder) requireOwnerOrAdmin(caller common.Address) error {
	if fw.own.IsOwner(caller) {
		return nil
	}
	if caller != (common.Address{}) && caller == fw.admin.Get() {
		return nil
	}
	return ErrNotOwnerOrAdmin.WithDetails(map[string]interface{}{"caller": caller.Hex()})
}

// rotate revokes the allowance at from and grants an unlimited one at to.
func (fw *Forwarder) rotate(f *ledger.Frame, from, to approvalKey) error {
	if from == to {
		return nil
	}
	if _, held := fw.approvals.Get(from); held {
		if err := fw.approve(f, from.asset, from.grantee, new(big.Int)); err != nil {
			return err
		}
	}
	return fw.approve(f, to.asset, to.grantee, floatify.MaxUint256())
}

// approve sets the forwarder's allowance on asset for grantee and keeps the
// capability table in step.
func (fw *Forwarder) approve(f *ledger.Frame, asset, grantee common.Address, limit *big.Int) error {
	tok, tf, err := ledger.Bind[external.AssetLedger](f, asset)
	if err != nil {
		return err
	}
	if err := tok.Approve(tf, grantee, limit); err != nil {
		return err
	}
	key := approvalKey{asset, grantee}
	if limit.Sign() == 0 {
		fw.approvals.Delete(f, key)
		return nil
	}
	fw.approvals.Set(f, key, Approval{
		Granter: fw.addr,
		Grantee: grantee,
		Asset:   asset,
		Limit:   new(big.Int).Set(limit),
	})
	return nil
}

func emitChange(f *ledger.Frame, name string, previous, next common.Address) {
	f.Emit(name, map[string]interface{}{
		"previousAddress": previous,
		"newAddress":      next,
	})
}
