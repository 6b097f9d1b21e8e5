// Package access holds the ownership and one-time initialization state shared
// by the forwarding contracts.
package access

import (
	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/ledger"
)

// EventOwnershipTransferred is emitted whenever the owner changes, including
// the initial assignment from the zero address.
const EventOwnershipTransferred = "OwnershipTransferred"

// Ownable tracks a single owner principal.
type Ownable struct {
	owner *ledger.Value[common.Address]
}

// NewOwnable creates an Ownable with no owner.
func NewOwnable() *Ownable {
	return &Ownable{owner: ledger.NewValue(common.Address{})}
}

// Owner returns the current owner.
func (o *Ownable) Owner() common.Address {
	return o.owner.Get()
}

// IsOwner reports whether addr is the current owner.
func (o *Ownable) IsOwner(addr common.Address) bool {
	return addr != (common.Address{}) && addr == o.owner.Get()
}

// RequireOwner fails with ErrNotOwner unless caller is the owner.
func (o *Ownable) RequireOwner(caller common.Address) error {
	if !o.IsOwner(caller) {
		return floatify.ErrNotOwner.WithDetails(map[string]interface{}{"caller": caller.Hex()})
	}
	return nil
}

// SetOwner assigns the owner without an authorization check. It is used by
// initializers.
func (o *Ownable) SetOwner(f *ledger.Frame, owner common.Address) error {
	if owner == (common.Address{}) {
		return floatify.ErrZeroOwner
	}
	previous := o.owner.Get()
	o.owner.Set(f, owner)
	f.Emit(EventOwnershipTransferred, map[string]interface{}{
		"previousOwner": previous,
		"newOwner":      owner,
	})
	return nil
}

// TransferOwnership hands ownership to newOwner. Only the current owner,
// resolved by the caller, may do so.
func (o *Ownable) TransferOwnership(f *ledger.Frame, caller, newOwner common.Address) error {
	if err := o.RequireOwner(caller); err != nil {
		return err
	}
	return o.SetOwner(f, newOwner)
}

// Initializable guards a one-time initializer.
type Initializable struct {
	initialized *ledger.Value[bool]
}

// NewInitializable creates an uninitialized guard.
func NewInitializable() *Initializable {
	return &Initializable{initialized: ledger.NewValue(false)}
}

// Initialized reports whether the initializer has run.
func (i *Initializable) Initialized() bool {
	return i.initialized.Get()
}

// Initialize flips the guard, failing with ErrAlreadyInitialized if it was
// already set.
func (i *Initializable) Initialize(f *ledger.Frame) error {
	if i.initialized.Get() {
		return floatify.ErrAlreadyInitialized
	}
	i.initialized.Set(f, true)
	return nil
}

// RequireInitialized fails with ErrNotInitialized before Initialize has run.
func (i *Initializable) RequireInitialized() error {
	if !i.initialized.Get() {
		return floatify.ErrNotInitialized
	}
	return nil
}
