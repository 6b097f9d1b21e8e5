// Package swapper lets whitelisted users redeem or transfer their yield
// shares through gasless relayed calls. Users grant the Swapper an allowance
// once by permit; every later withdrawal or transfer is signed off-chain and
// submitted by a relayer, with the Swapper's relay deposit paying for it.
package swapper

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/access"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/relay"
)

// Swapper events
const (
	EventNewUserAdded                   = "NewUserAdded"
	EventUserRemoved                    = "UserRemoved"
	EventRelayerAdded                   = "RelayerAdded"
	EventRelayerRemoved                 = "RelayerRemoved"
	EventChaiWithdrawnAsDai             = "ChaiWithdrawnAsDai"
	EventChaiTransferred                = "ChaiTransferred"
	EventForwarderFactoryAddressChanged = "ForwarderFactoryAddressChanged"
	EventBaseAssetAddressChanged        = "BaseAssetAddressChanged"
	EventYieldWrapperAddressChanged     = "YieldWrapperAddressChanged"
	EventRouterAddressChanged           = "RouterAddressChanged"
	EventRelayHubAddressChanged         = "RelayHubAddressChanged"
)

// Addresses are the collaborator contracts of a Swapper.
type Addresses struct {
	Base         common.Address `json:"base"`
	YieldWrapper common.Address `json:"yieldWrapper"`
	Router       common.Address `json:"router"`
	RelayHub     common.Address `json:"relayHub"`
}

// Swapper is the relay recipient serving whitelisted users.
type Swapper struct {
	addr     common.Address
	l        *ledger.Ledger
	defaults Addresses

	own     *access.Ownable
	init    *access.Initializable
	version *ledger.Value[uint64]
	factory *ledger.Value[common.Address]
	base    *ledger.Value[common.Address]
	wrapper *ledger.Value[common.Address]
	router  *ledger.Value[common.Address]
	hub     *ledger.Value[common.Address]

	whitelist *ledger.Map[common.Address, bool]
	relayers  *ledger.Map[common.Address, bool]
}

var _ relay.Recipient = (*Swapper)(nil)

// New creates an uninitialized Swapper at addr on l.
func New(addr common.Address, l *ledger.Ledger, defaults Addresses) *Swapper {
	return &Swapper{
		addr:      addr,
		l:         l,
		defaults:  defaults,
		own:       access.NewOwnable(),
		init:      access.NewInitializable(),
		version:   ledger.NewValue(uint64(0)),
		factory:   ledger.NewValue(common.Address{}),
		base:      ledger.NewValue(common.Address{}),
		wrapper:   ledger.NewValue(common.Address{}),
		router:    ledger.NewValue(common.Address{}),
		hub:       ledger.NewValue(common.Address{}),
		whitelist: ledger.NewMap[common.Address, bool](),
		relayers:  ledger.NewMap[common.Address, bool](),
	}
}

// Address returns the Swapper's ledger address.
func (s *Swapper) Address() common.Address { return s.addr }

// Owner returns the account managing users, relayers and addresses.
func (s *Swapper) Owner() common.Address { return s.own.Owner() }

// Version returns the contract version, zero before InitializeSwapper.
func (s *Swapper) Version() uint64 { return s.version.Get() }

// Initialized reports whether InitializeSwapper has run.
func (s *Swapper) Initialized() bool { return s.init.Initialized() }

// ForwarderFactory returns the factory allowed to add users.
func (s *Swapper) ForwarderFactory() common.Address { return s.factory.Get() }

// RelayHub returns the hub whose relayed sender is trusted.
func (s *Swapper) RelayHub() common.Address { return s.hub.Get() }

// Addresses returns the collaborator addresses in effect. Router is kept for
// configuration parity with the forwarders and is not used by any Swapper
// operation.
func (s *Swapper) Addresses() Addresses {
	return Addresses{
		Base:         s.base.Get(),
		YieldWrapper: s.wrapper.Get(),
		Router:       s.router.Get(),
		RelayHub:     s.hub.Get(),
	}
}

// InitializeSwapper makes the caller owner and records the factory allowed
// to register users. It runs once.
func (s *Swapper) InitializeSwapper(f *ledger.Frame, factory common.Address) error {
	if err := s.init.Initialize(f); err != nil {
		return err
	}
	if err := s.own.SetOwner(f, f.Sender()); err != nil {
		return err
	}
	s.version.Set(f, floatify.Version)
	s.factory.Set(f, factory)
	s.base.Set(f, s.defaults.Base)
	s.wrapper.Set(f, s.defaults.YieldWrapper)
	s.router.Set(f, s.defaults.Router)
	s.hub.Set(f, s.defaults.RelayHub)
	return nil
}

// TransferOwnership hands the Swapper to newOwner. Owner only.
func (s *Swapper) TransferOwnership(f *ledger.Frame, newOwner common.Address) error {
	return s.own.TransferOwnership(f, f.Sender(), newOwner)
}

// IsValidUser reports whether user is whitelisted.
func (s *Swapper) IsValidUser(user common.Address) bool {
	ok, _ := s.whitelist.Get(user)
	return ok
}

// AddUser whitelists user. Re-adding is a no-op. Owner or factory.
func (s *Swapper) AddUser(f *ledger.Frame, user common.Address) error {
	caller := f.Sender()
	if !s.own.IsOwner(caller) && (caller == (common.Address{}) || caller != s.factory.Get()) {
		return ErrNotOwnerOrFactory.WithDetails(map[string]interface{}{"caller": caller.Hex()})
	}
	if user == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("user")
	}
	if s.IsValidUser(user) {
		return nil
	}
	s.whitelist.Set(f, user, true)
	f.Emit(EventNewUserAdded, map[string]interface{}{"user": user})
	return nil
}

// RemoveUser drops user from the whitelist. Owner only.
func (s *Swapper) RemoveUser(f *ledger.Frame, user common.Address) error {
	if err := s.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	if !s.IsValidUser(user) {
		return nil
	}
	s.whitelist.Delete(f, user)
	f.Emit(EventUserRemoved, map[string]interface{}{"user": user})
	return nil
}

// IsTrustedRelayer reports whether relayer may submit relayed calls paid
// from the Swapper's deposit.
func (s *Swapper) IsTrustedRelayer(relayer common.Address) bool {
	ok, _ := s.relayers.Get(relayer)
	return ok
}

// AddRelayer trusts relayer to submit relayed calls. Re-adding is a no-op.
// Owner only.
func (s *Swapper) AddRelayer(f *ledger.Frame, relayer common.Address) error {
	if err := s.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	if relayer == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("relayer")
	}
	if s.IsTrustedRelayer(relayer) {
		return nil
	}
	s.relayers.Set(f, relayer, true)
	f.Emit(EventRelayerAdded, map[string]interface{}{"relayer": relayer})
	return nil
}

// RemoveRelayer stops trusting relayer. Owner only.
func (s *Swapper) RemoveRelayer(f *ledger.Frame, relayer common.Address) error {
	if err := s.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	if !s.IsTrustedRelayer(relayer) {
		return nil
	}
	s.relayers.Delete(f, relayer)
	f.Emit(EventRelayerRemoved, map[string]interface{}{"relayer": relayer})
	return nil
}

// WithdrawChaiAsDai redeems the caller's yield shares and sends the base
// proceeds to destination. amount is in base units; the MaxUint256 sentinel
// redeems every share. The configured base asset must be the wrapper's.
// Returns the base amount paid.
func (s *Swapper) WithdrawChaiAsDai(f *ledger.Frame, destination common.Address, amount *big.Int) (*big.Int, error) {
	user, err := s.effectiveUser(f)
	if err != nil {
		return nil, err
	}
	if destination == (common.Address{}) {
		return nil, floatify.ErrZeroAddress.Withf("destination")
	}
	if err := ledger.CheckAmount(amount); err != nil {
		return nil, err
	}
	wrapper, wf, err := ledger.Bind[external.YieldWrapper](f, s.wrapper.Get())
	if err != nil {
		return nil, err
	}
	if wrapper.BaseAsset() != s.base.Get() {
		return nil, ErrBaseMismatch.WithDetails(map[string]interface{}{
			"base":        s.base.Get().Hex(),
			"wrapperBase": wrapper.BaseAsset().Hex(),
		})
	}

	paid := new(big.Int).Set(amount)
	if floatify.IsMaxUint256(amount) {
		shares := wrapper.BalanceOf(user)
		if shares.Sign() == 0 {
			return nil, ErrNothingToRedeem.WithDetails(map[string]interface{}{"user": user.Hex()})
		}
		if paid, err = wrapper.Exit(wf, user, shares); err != nil {
			return nil, err
		}
	} else if _, err := wrapper.Draw(wf, user, amount); err != nil {
		return nil, err
	}

	base, bf, err := ledger.Bind[external.AssetLedger](f, s.base.Get())
	if err != nil {
		return nil, err
	}
	if err := base.Transfer(bf, destination, paid); err != nil {
		return nil, err
	}
	f.Emit(EventChaiWithdrawnAsDai, map[string]interface{}{
		"user":        user,
		"daiAmount":   new(big.Int).Set(paid),
		"destination": destination,
	})
	return paid, nil
}

// TransferChai moves yield shares worth amount of base from the caller to
// recipient; the MaxUint256 sentinel moves every share. Returns the base
// value moved.
func (s *Swapper) TransferChai(f *ledger.Frame, recipient common.Address, amount *big.Int) (*big.Int, error) {
	user, err := s.effectiveUser(f)
	if err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		return nil, floatify.ErrZeroAddress.Withf("recipient")
	}
	if err := ledger.CheckAmount(amount); err != nil {
		return nil, err
	}
	wrapper, wf, err := ledger.Bind[external.YieldWrapper](f, s.wrapper.Get())
	if err != nil {
		return nil, err
	}

	moved := new(big.Int).Set(amount)
	if floatify.IsMaxUint256(amount) {
		shares := wrapper.BalanceOf(user)
		moved = wrapper.BaseValueOf(user)
		if err := wrapper.TransferFrom(wf, user, recipient, shares); err != nil {
			return nil, err
		}
	} else if err := wrapper.Move(wf, user, recipient, amount); err != nil {
		return nil, err
	}
	f.Emit(EventChaiTransferred, map[string]interface{}{
		"sender":    user,
		"recipient": recipient,
		"daiAmount": new(big.Int).Set(moved),
	})
	return moved, nil
}

// WithdrawRelayHubFunds pays amount of the Swapper's relay deposit to
// recipient. Owner only.
func (s *Swapper) WithdrawRelayHubFunds(f *ledger.Frame, amount *big.Int, recipient common.Address) error {
	if err := s.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	hub, hf, err := ledger.Bind[external.RelayGateway](f, s.hub.Get())
	if err != nil {
		return err
	}
	return hub.Withdraw(hf, amount, recipient)
}

// GetRecipientBalance returns the Swapper's prepaid relay deposit.
func (s *Swapper) GetRecipientBalance() (*big.Int, error) {
	hub, err := ledger.At[external.RelayGateway](s.l, s.hub.Get())
	if err != nil {
		return nil, err
	}
	return hub.BalanceOf(s.addr), nil
}

// UpdateForwarderFactoryAddress replaces the factory allowed to add users.
// Owner only.
func (s *Swapper) UpdateForwarderFactoryAddress(f *ledger.Frame, factory common.Address) error {
	return s.update(f, s.factory, EventForwarderFactoryAddressChanged, factory)
}

// UpdateBaseAssetAddress replaces the base asset withdrawals pay out in.
// Withdrawals fail unless it matches the yield wrapper's base asset. Owner
// only.
func (s *Swapper) UpdateBaseAssetAddress(f *ledger.Frame, base common.Address) error {
	return s.update(f, s.base, EventBaseAssetAddressChanged, base)
}

// UpdateYieldWrapperAddress replaces the yield wrapper. Users must permit the
// Swapper on the new wrapper before they can use it. Owner only.
func (s *Swapper) UpdateYieldWrapperAddress(f *ledger.Frame, wrapper common.Address) error {
	return s.update(f, s.wrapper, EventYieldWrapperAddressChanged, wrapper)
}

// UpdateRouterAddress replaces the router address. Owner only.
func (s *Swapper) UpdateRouterAddress(f *ledger.Frame, router common.Address) error {
	return s.update(f, s.router, EventRouterAddressChanged, router)
}

// UpdateRelayHubAddress replaces the trusted relay hub. Owner only.
func (s *Swapper) UpdateRelayHubAddress(f *ledger.Frame, hub common.Address) error {
	return s.update(f, s.hub, EventRelayHubAddressChanged, hub)
}

func (s *Swapper) update(f *ledger.Frame, slot *ledger.Value[common.Address], event string, next common.Address) error {
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

// effectiveUser resolves the caller, trusting the relayed sender only from the
// configured hub, and requires it to be whitelisted.
func (s *Swapper) effectiveUser(f *ledger.Frame) (common.Address, error) {
	user := relay.MsgSender(f, s.hub.Get())
	if !s.IsValidUser(user) {
		return common.Address{}, ErrNotValidUser.WithDetails(map[string]interface{}{"caller": user.Hex()})
	}
	return user, nil
}
