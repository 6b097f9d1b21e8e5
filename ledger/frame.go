package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// tx is the undo journal of one transaction.
type tx struct {
	journal   []func()
	events    []Event
	snapshots []snapshot
}

type snapshot struct {
	journal int
	events  int
}

func (t *tx) record(undo func()) {
	t.journal = append(t.journal, undo)
}

func (t *tx) snapshot() int {
	t.snapshots = append(t.snapshots, snapshot{journal: len(t.journal), events: len(t.events)})
	return len(t.snapshots)
}

// revertTo undoes everything recorded after snapshot id. id 0 is the start of
// the transaction.
func (t *tx) revertTo(id int) {
	var s snapshot
	if id > 0 && id <= len(t.snapshots) {
		s = t.snapshots[id-1]
		t.snapshots = t.snapshots[:id-1]
	} else {
		t.snapshots = nil
	}
	for i := len(t.journal) - 1; i >= s.journal; i-- {
		t.journal[i]()
	}
	t.journal = t.journal[:s.journal]
	t.events = t.events[:s.events]
}

// Frame is the context of a single contract call inside a transaction.
type Frame struct {
	l       *Ledger
	tx      *tx
	sender  common.Address
	self    common.Address
	value   *big.Int
	relayed common.Address
}

// Sender is the transport-level caller: the account that signed the
// transaction or the contract that made this call.
func (f *Frame) Sender() common.Address { return f.sender }

// Self is the address of the executing contract.
func (f *Frame) Self() common.Address { return f.self }

// Value is the native amount sent with the call.
func (f *Frame) Value() *big.Int { return new(big.Int).Set(f.value) }

// RelayedSender is the sender claimed by a relay for this call, or the zero
// address for direct calls. Contracts must only trust it when Sender is the
// relay they trust.
func (f *Frame) RelayedSender() common.Address { return f.relayed }

// Now is the block timestamp.
func (f *Frame) Now() time.Time { return f.l.clock.Now() }

// Ledger returns the executing ledger.
func (f *Frame) Ledger() *Ledger { return f.l }

// ChainID returns the ledger chain id.
func (f *Frame) ChainID() *big.Int { return f.l.ChainID() }

// Call returns the frame for a call from the executing contract to target.
func (f *Frame) Call(target common.Address) *Frame {
	return &Frame{l: f.l, tx: f.tx, sender: f.self, self: target, value: new(big.Int)}
}

// CallValue moves amount of native currency to target and returns the frame
// of the call carrying it.
func (f *Frame) CallValue(target common.Address, amount *big.Int) (*Frame, error) {
	if err := f.l.moveNative(f, f.self, target, amount); err != nil {
		return nil, err
	}
	return &Frame{l: f.l, tx: f.tx, sender: f.self, self: target, value: new(big.Int).Set(amount)}, nil
}

// CallRelayed returns the frame for a call to target that carries from as
// the relayed sender.
func (f *Frame) CallRelayed(target, from common.Address) *Frame {
	return &Frame{l: f.l, tx: f.tx, sender: f.self, self: target, value: new(big.Int), relayed: from}
}

// TransferNative sends amount of the executing contract's native balance to
// to. Contracts that do not implement Payable reject the transfer.
func (f *Frame) TransferNative(to common.Address, amount *big.Int) error {
	if err := f.l.moveNative(f, f.self, to, amount); err != nil {
		return err
	}
	c, ok := f.l.contract(to)
	if !ok {
		return nil
	}
	p, ok := c.(Payable)
	if !ok {
		return ErrNotPayable.Withf("%s", to.Hex())
	}
	return p.Receive(&Frame{l: f.l, tx: f.tx, sender: f.self, self: to, value: new(big.Int).Set(amount)})
}

// NativeBalance returns the native balance of addr.
func (f *Frame) NativeBalance(addr common.Address) *big.Int {
	return f.l.NativeBalance(addr)
}

// Emit appends an event attributed to the executing contract. Events are
// discarded if the transaction, or the snapshot they were emitted under,
// reverts.
func (f *Frame) Emit(name string, args map[string]interface{}) {
	f.tx.events = append(f.tx.events, Event{Address: f.self, Name: name, Args: args})
}

// Snapshot marks a rollback point inside the current transaction.
func (f *Frame) Snapshot() int {
	return f.tx.snapshot()
}

// RevertTo undoes every write and event since the snapshot with the given id.
func (f *Frame) RevertTo(id int) {
	f.tx.revertTo(id)
}

// Deploy registers the contract returned by build at the next CREATE address
// of the executing contract.
func (f *Frame) Deploy(build func(addr common.Address) Contract) (common.Address, error) {
	addr := crypto.CreateAddress(f.self, f.l.nonceOf(f.self))
	return f.l.deploy(f, f.self, build(addr), nil)
}

// Bind looks up the contract at addr as a T and returns it together with the
// frame of a call to it from the executing contract.
func Bind[T any](f *Frame, addr common.Address) (T, *Frame, error) {
	c, err := At[T](f.l, addr)
	if err != nil {
		return c, nil, err
	}
	return c, f.Call(addr), nil
}

// BindValue is Bind for a call that carries native currency.
func BindValue[T any](f *Frame, addr common.Address, amount *big.Int) (T, *Frame, error) {
	c, err := At[T](f.l, addr)
	if err != nil {
		return c, nil, err
	}
	cf, err := f.CallValue(addr, amount)
	if err != nil {
		return c, nil, err
	}
	return c, cf, nil
}
