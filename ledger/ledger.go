// Package ledger is an in-process account ledger that executes contract code
// written in Go. Every transaction runs serialized under one lock against a
// journal of storage writes; a failing or panicking transaction is rolled back
// entirely and leaves only a failed receipt behind.
//
// Contracts are plain Go values registered at an address. Their state lives in
// the journaled Value, Map and List types of this package, and every
// state-changing method takes a *Frame describing the call: who is calling,
// which address is executing, how much native currency came with the call and,
// for relayed calls, the sender claimed by the relay.
package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Contract is any Go value registered at a ledger address.
type Contract interface{}

// Payable is implemented by contracts that accept plain native transfers.
type Payable interface {
	Receive(f *Frame) error
}

// Message is the transport-level envelope of a transaction.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Ledger holds world state: native balances, deployed contracts and their
// code, creation nonces and the committed event log.
type Ledger struct {
	mu      sync.RWMutex
	chainID *big.Int
	clock   Clock
	logger  *zap.Logger

	block     uint64
	txCount   uint64
	native    *Map[common.Address, *big.Int]
	contracts *Map[common.Address, Contract]
	code      *Map[common.Address, []byte]
	nonces    *Map[common.Address, uint64]
	logs      []Event
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithChainID sets the chain id used in EIP-712 domains. Defaults to 1.
func WithChainID(id *big.Int) Option {
	return func(l *Ledger) {
		l.chainID = new(big.Int).Set(id)
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		chainID:   big.NewInt(1),
		clock:     SystemClock{},
		logger:    zap.NewNop(),
		native:    NewMap[common.Address, *big.Int](),
		contracts: NewMap[common.Address, Contract](),
		code:      NewMap[common.Address, []byte](),
		nonces:    NewMap[common.Address, uint64](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ChainID returns the configured chain id.
func (l *Ledger) ChainID() *big.Int {
	return new(big.Int).Set(l.chainID)
}

// Clock returns the ledger clock.
func (l *Ledger) Clock() Clock {
	return l.clock
}

// BlockNumber returns the number of the last mined block.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.block
}

// Execute runs fn as one atomic transaction. The message value is moved from
// msg.From to msg.To before fn runs. When fn is nil the transaction is a plain
// native transfer and msg.To must be an account or a Payable contract.
//
// A non-nil error from fn, a failed value transfer or a panic reverts every
// write the transaction made. The returned receipt is non-nil whenever the
// transaction was mined, successful or not.
func (l *Ledger) Execute(ctx context.Context, msg Message, fn func(f *Frame) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.block++
	l.txCount++
	t := &tx{}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	f := &Frame{l: l, tx: t, sender: msg.From, self: msg.To, value: value}
	receipt := &Receipt{
		TxHash:    l.txHash(msg),
		Block:     l.block,
		Timestamp: l.clock.Now(),
		From:      msg.From,
		To:        msg.To,
	}

	err := l.run(f, msg, fn)
	if err != nil {
		t.revertTo(0)
		receipt.Status = TxStatusFailed
		l.logger.Debug("transaction reverted",
			zap.String("txHash", receipt.TxHash.Hex()),
			zap.String("from", msg.From.Hex()),
			zap.String("to", msg.To.Hex()),
			zap.Error(err))
		return receipt, err
	}

	receipt.Status = TxStatusSuccess
	for i := range t.events {
		t.events[i].Block = receipt.Block
		t.events[i].TxHash = receipt.TxHash
	}
	receipt.Events = t.events
	l.logs = append(l.logs, t.events...)
	return receipt, nil
}

func (l *Ledger) run(f *Frame, msg Message, fn func(f *Frame) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger: execution panicked: %v", r)
		}
	}()

	if f.value.Sign() > 0 {
		if err := l.moveNative(f, msg.From, msg.To, f.value); err != nil {
			return err
		}
	}
	if fn != nil {
		return fn(f)
	}
	if c, ok := l.contract(msg.To); ok {
		p, ok := c.(Payable)
		if !ok {
			if f.value.Sign() > 0 {
				return ErrNotPayable.Withf("%s", msg.To.Hex())
			}
			return nil
		}
		return p.Receive(f)
	}
	return nil
}

// Send transfers native currency from an account in its own transaction.
func (l *Ledger) Send(ctx context.Context, from, to common.Address, amount *big.Int) (*Receipt, error) {
	return l.Execute(ctx, Message{From: from, To: to, Value: amount}, nil)
}

// Deploy registers the contract returned by build at a fresh CREATE address
// derived from from and its creation nonce.
func (l *Ledger) Deploy(ctx context.Context, from common.Address, build func(addr common.Address) Contract) (common.Address, *Receipt, error) {
	var addr common.Address
	receipt, err := l.Execute(ctx, Message{From: from}, func(f *Frame) error {
		var err error
		addr, err = l.deploy(f, from, build(crypto.CreateAddress(from, l.nonceOf(from))), nil)
		return err
	})
	if err != nil {
		return common.Address{}, receipt, err
	}
	return addr, receipt, nil
}

// View runs fn under the read lock so it observes a consistent state while
// other goroutines execute transactions.
func (l *Ledger) View(fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn()
}

// Credit adds amount to the native balance of addr outside any transaction.
// It is meant for genesis allocations.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := Add(l.nativeOf(addr), amount)
	if err != nil {
		return err
	}
	l.native.m[addr] = next
	return nil
}

// NativeBalance returns the native balance of addr.
func (l *Ledger) NativeBalance(addr common.Address) *big.Int {
	return new(big.Int).Set(l.nativeOf(addr))
}

// Code returns the code registered at addr, or nil for accounts.
func (l *Ledger) Code(addr common.Address) []byte {
	code, _ := l.code.Get(addr)
	return common.CopyBytes(code)
}

// IsContract reports whether a contract is registered at addr.
func (l *Ledger) IsContract(addr common.Address) bool {
	_, ok := l.contract(addr)
	return ok
}

// Events returns committed events filtered by emitting address and name. A
// zero address or empty name matches everything.
func (l *Ledger) Events(addr common.Address, name string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.logs {
		if addr != (common.Address{}) && ev.Address != addr {
			continue
		}
		if name != "" && ev.Name != name {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// At returns the contract registered at addr as a T. It does not lock; call
// it inside Execute or View when other goroutines may be executing.
func At[T any](l *Ledger, addr common.Address) (T, error) {
	var zero T
	c, ok := l.contract(addr)
	if !ok {
		return zero, ErrNoContract.Withf("%s", addr.Hex())
	}
	typed, ok := c.(T)
	if !ok {
		return zero, ErrContractType.Withf("%s is %T", addr.Hex(), c)
	}
	return typed, nil
}

func (l *Ledger) contract(addr common.Address) (Contract, bool) {
	return l.contracts.Get(addr)
}

func (l *Ledger) nativeOf(addr common.Address) *big.Int {
	if bal, ok := l.native.Get(addr); ok {
		return bal
	}
	return new(big.Int)
}

func (l *Ledger) nonceOf(addr common.Address) uint64 {
	n, _ := l.nonces.Get(addr)
	return n
}

func (l *Ledger) moveNative(f *Frame, from, to common.Address, amount *big.Int) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	fromBal := l.nativeOf(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientNative.WithDetails(map[string]interface{}{
			"account": from.Hex(),
			"balance": fromBal.String(),
			"amount":  amount.String(),
		})
	}
	if from == to {
		return nil
	}
	toNext, err := Add(l.nativeOf(to), amount)
	if err != nil {
		return err
	}
	l.native.Set(f, from, new(big.Int).Sub(fromBal, amount))
	l.native.Set(f, to, toNext)
	return nil
}

func (l *Ledger) deploy(f *Frame, creator common.Address, c Contract, code []byte) (common.Address, error) {
	nonce := l.nonceOf(creator)
	addr := crypto.CreateAddress(creator, nonce)
	if _, taken := l.contract(addr); taken {
		return common.Address{}, ErrAddressTaken.Withf("%s", addr.Hex())
	}
	l.nonces.Set(f, creator, nonce+1)
	if code == nil {
		code = []byte(fmt.Sprintf("%T", c))
	}
	l.contracts.Set(f, addr, c)
	l.code.Set(f, addr, code)
	return addr, nil
}

func (l *Ledger) txHash(msg Message) common.Hash {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], l.txCount)
	return crypto.Keccak256Hash(l.chainID.Bytes(), msg.From.Bytes(), msg.To.Bytes(), seq[:])
}
