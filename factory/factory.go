// Package factory deploys per-user forwarders as minimal-proxy clones of a
// template and keeps the registry of users and their forwarders.
package factory

import (
	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/access"
	"github.com/floatify/floatify/go/ledger"
)

// Factory events
const (
	EventProxyCreated          = "ProxyCreated"
	EventForwarderCreated      = "ForwarderCreated"
	EventForwarderAdminChanged = "ForwarderAdminChanged"
)

// ForwarderInitializer is the initializer every forwarder template exposes.
type ForwarderInitializer interface {
	Initialize(f *ledger.Frame, owner, admin common.Address) error
}

// UserRegistry is the whitelist the factory registers new users with.
type UserRegistry interface {
	AddUser(f *ledger.Frame, user common.Address) error
}

// Factory is the forwarder registry.
type Factory struct {
	addr common.Address
	l    *ledger.Ledger

	own     *access.Ownable
	init    *access.Initializable
	admin   *ledger.Value[common.Address]
	version *ledger.Value[uint64]

	users      *ledger.List[common.Address]
	forwarders *ledger.Map[common.Address, common.Address]
}

// New creates an uninitialized factory at addr on l.
func New(addr common.Address, l *ledger.Ledger) *Factory {
	return &Factory{
		addr:       addr,
		l:          l,
		own:        access.NewOwnable(),
		init:       access.NewInitializable(),
		admin:      ledger.NewValue(common.Address{}),
		version:    ledger.NewValue(uint64(0)),
		users:      ledger.NewList[common.Address](),
		forwarders: ledger.NewMap[common.Address, common.Address](),
	}
}

// Address returns the factory's ledger address.
func (fa *Factory) Address() common.Address { return fa.addr }

// Owner returns the account allowed to create forwarders.
func (fa *Factory) Owner() common.Address { return fa.own.Owner() }

// Version returns the contract version, zero before Initialize.
func (fa *Factory) Version() uint64 { return fa.version.Get() }

// Initialized reports whether Initialize has run.
func (fa *Factory) Initialized() bool { return fa.init.Initialized() }

// Admin returns the admin handed to newly created forwarders.
func (fa *Factory) Admin() common.Address { return fa.admin.Get() }

// Initialize makes the caller owner and forwarder admin. It runs once.
func (fa *Factory) Initialize(f *ledger.Frame) error {
	if err := fa.init.Initialize(f); err != nil {
		return err
	}
	if err := fa.own.SetOwner(f, f.Sender()); err != nil {
		return err
	}
	fa.admin.Set(f, f.Sender())
	fa.version.Set(f, floatify.Version)
	return nil
}

// TransferOwnership hands the factory to newOwner. Owner only.
func (fa *Factory) TransferOwnership(f *ledger.Frame, newOwner common.Address) error {
	return fa.own.TransferOwnership(f, f.Sender(), newOwner)
}

// UpdateForwarderAdmin changes the admin given to forwarders created from now
// on. Existing forwarders keep theirs. Owner only.
func (fa *Factory) UpdateForwarderAdmin(f *ledger.Frame, admin common.Address) error {
	if err := fa.own.RequireOwner(f.Sender()); err != nil {
		return err
	}
	if admin == (common.Address{}) {
		return floatify.ErrZeroAddress.Withf("admin")
	}
	previous := fa.admin.Get()
	fa.admin.Set(f, admin)
	f.Emit(EventForwarderAdminChanged, map[string]interface{}{
		"previousAddress": previous,
		"newAddress":      admin,
	})
	return nil
}

// CreateForwarder clones template for user, initializes the clone with user
// as owner, records it and whitelists user in swapper. Owner only.
func (fa *Factory) CreateForwarder(f *ledger.Frame, template, user, swapper common.Address) (common.Address, error) {
	if err := fa.own.RequireOwner(f.Sender()); err != nil {
		return common.Address{}, err
	}
	if user == (common.Address{}) {
		return common.Address{}, floatify.ErrZeroAddress.Withf("user")
	}
	if existing, ok := fa.forwarders.Get(user); ok {
		return common.Address{}, ErrAlreadyRegistered.WithDetails(map[string]interface{}{
			"user":      user.Hex(),
			"forwarder": existing.Hex(),
		})
	}

	proxy, err := f.DeployClone(template)
	if err != nil {
		return common.Address{}, err
	}
	f.Emit(EventProxyCreated, map[string]interface{}{"proxy": proxy})

	fw, ff, err := ledger.Bind[ForwarderInitializer](f, proxy)
	if err != nil {
		return common.Address{}, err
	}
	if err := fw.Initialize(ff, user, fa.admin.Get()); err != nil {
		return common.Address{}, err
	}

	fa.users.Append(f, user)
	fa.forwarders.Set(f, user, proxy)

	reg, rf, err := ledger.Bind[UserRegistry](f, swapper)
	if err != nil {
		return common.Address{}, err
	}
	if err := reg.AddUser(rf, user); err != nil {
		return common.Address{}, err
	}

	f.Emit(EventForwarderCreated, map[string]interface{}{
		"user":      user,
		"forwarder": proxy,
	})
	return proxy, nil
}

// GetUsers returns every registered user in creation order.
func (fa *Factory) GetUsers() []common.Address {
	return fa.users.Items()
}

// User returns the i-th registered user.
func (fa *Factory) User(i int) (common.Address, error) {
	u, ok := fa.users.At(i)
	if !ok {
		return common.Address{}, ErrUserIndex.WithDetails(map[string]interface{}{
			"index": i,
			"users": fa.users.Len(),
		})
	}
	return u, nil
}

// GetForwarder returns the forwarder of user, or the zero address.
func (fa *Factory) GetForwarder(user common.Address) common.Address {
	fw, _ := fa.forwarders.Get(user)
	return fw
}

// IsClone reports whether candidate is a minimal proxy of template.
func (fa *Factory) IsClone(template, candidate common.Address) bool {
	return fa.l.IsClone(template, candidate)
}
