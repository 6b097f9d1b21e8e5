// Package tokens provides the reference fungible assets of a local
// deployment: a mintable ERC-20 style Token and the rate-accruing
// YieldWrapper with DAI-style permits.
package tokens

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/ledger"
)

// Token events
const (
	EventTransfer = "Transfer"
	EventApproval = "Approval"
)

type allowanceKey struct {
	holder  common.Address
	spender common.Address
}

// Mintable is implemented by assets that let privileged callers create supply.
type Mintable interface {
	Mint(f *ledger.Frame, to common.Address, amount *big.Int) error
}

// Token is a fungible asset with a fixed issuer. An allowance of MaxUint256
// is never decremented.
type Token struct {
	addr     common.Address
	name     string
	symbol   string
	decimals uint8
	issuer   common.Address

	supply     *ledger.Value[*big.Int]
	balances   *ledger.Map[common.Address, *big.Int]
	allowances *ledger.Map[allowanceKey, *big.Int]
	minters    *ledger.Map[common.Address, bool]
}

// NewToken creates a token deployed at addr. issuer may mint and add minters.
func NewToken(addr common.Address, name, symbol string, decimals uint8, issuer common.Address) *Token {
	return &Token{
		addr:       addr,
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		issuer:     issuer,
		supply:     ledger.NewValue(new(big.Int)),
		balances:   ledger.NewMap[common.Address, *big.Int](),
		allowances: ledger.NewMap[allowanceKey, *big.Int](),
		minters:    ledger.NewMap[common.Address, bool](),
	}
}

// Address returns the token's ledger address.
func (t *Token) Address() common.Address { return t.addr }

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the ticker.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the number of decimals of one display unit.
func (t *Token) Decimals() uint8 { return t.decimals }

// TotalSupply returns the outstanding supply.
func (t *Token) TotalSupply() *big.Int { return new(big.Int).Set(t.supply.Get()) }

// BalanceOf returns the balance of holder.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	return new(big.Int).Set(t.balanceOf(holder))
}

// Allowance returns how much spender may move on behalf of holder.
func (t *Token) Allowance(holder, spender common.Address) *big.Int {
	if a, ok := t.allowances.Get(allowanceKey{holder, spender}); ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// IsMinter reports whether addr may mint.
func (t *Token) IsMinter(addr common.Address) bool {
	if addr == t.issuer {
		return true
	}
	ok, _ := t.minters.Get(addr)
	return ok
}

// AddMinter lets the issuer grant minting rights.
func (t *Token) AddMinter(f *ledger.Frame, minter common.Address) error {
	if f.Sender() != t.issuer {
		return ErrNotMinter.WithDetails(map[string]interface{}{"caller": f.Sender().Hex()})
	}
	t.minters.Set(f, minter, true)
	return nil
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(f *ledger.Frame, to common.Address, amount *big.Int) error {
	return t.move(f, f.Sender(), to, amount)
}

// TransferFrom moves amount from from to to, spending the caller's allowance
// unless the caller is from.
func (t *Token) TransferFrom(f *ledger.Frame, from, to common.Address, amount *big.Int) error {
	if err := t.spendAllowance(f, from, f.Sender(), amount); err != nil {
		return err
	}
	return t.move(f, from, to, amount)
}

// Approve sets the caller's allowance for spender.
func (t *Token) Approve(f *ledger.Frame, spender common.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	t.setAllowance(f, f.Sender(), spender, amount)
	return nil
}

// Mint creates amount for to. Only minters may call it.
func (t *Token) Mint(f *ledger.Frame, to common.Address, amount *big.Int) error {
	if !t.IsMinter(f.Sender()) {
		return ErrNotMinter.WithDetails(map[string]interface{}{"caller": f.Sender().Hex()})
	}
	return t.mint(f, to, amount)
}

// Burn destroys amount of the caller's balance.
func (t *Token) Burn(f *ledger.Frame, amount *big.Int) error {
	return t.burn(f, f.Sender(), amount)
}

func (t *Token) balanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances.Get(holder); ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) move(f *ledger.Frame, from, to common.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	fromBal := t.balanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance.WithDetails(map[string]interface{}{
			"token":   t.symbol,
			"holder":  from.Hex(),
			"balance": fromBal.String(),
			"amount":  amount.String(),
		})
	}
	if from != to {
		toNext, err := ledger.Add(t.balanceOf(to), amount)
		if err != nil {
			return err
		}
		t.balances.Set(f, from, new(big.Int).Sub(fromBal, amount))
		t.balances.Set(f, to, toNext)
	}
	f.Emit(EventTransfer, map[string]interface{}{
		"from":  from,
		"to":    to,
		"value": new(big.Int).Set(amount),
	})
	return nil
}

func (t *Token) mint(f *ledger.Frame, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	supply, err := ledger.Add(t.supply.Get(), amount)
	if err != nil {
		return err
	}
	bal, err := ledger.Add(t.balanceOf(to), amount)
	if err != nil {
		return err
	}
	t.supply.Set(f, supply)
	t.balances.Set(f, to, bal)
	f.Emit(EventTransfer, map[string]interface{}{
		"from":  common.Address{},
		"to":    to,
		"value": new(big.Int).Set(amount),
	})
	return nil
}

func (t *Token) burn(f *ledger.Frame, from common.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	bal := t.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance.WithDetails(map[string]interface{}{
			"token":   t.symbol,
			"holder":  from.Hex(),
			"balance": bal.String(),
			"amount":  amount.String(),
		})
	}
	t.balances.Set(f, from, new(big.Int).Sub(bal, amount))
	t.supply.Set(f, new(big.Int).Sub(t.supply.Get(), amount))
	f.Emit(EventTransfer, map[string]interface{}{
		"from":  from,
		"to":    common.Address{},
		"value": new(big.Int).Set(amount),
	})
	return nil
}

func (t *Token) setAllowance(f *ledger.Frame, holder, spender common.Address, amount *big.Int) {
	t.allowances.Set(f, allowanceKey{holder, spender}, new(big.Int).Set(amount))
	f.Emit(EventApproval, map[string]interface{}{
		"owner":   holder,
		"spender": spender,
		"value":   new(big.Int).Set(amount),
	})
}

func (t *Token) spendAllowance(f *ledger.Frame, holder, spender common.Address, amount *big.Int) error {
	if holder == spender {
		return nil
	}
	allowed := t.Allowance(holder, spender)
	if floatify.IsMaxUint256(allowed) {
		return nil
	}
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance.WithDetails(map[string]interface{}{
			"token":     t.symbol,
			"holder":    holder.Hex(),
			"spender":   spender.Hex(),
			"allowance": allowed.String(),
			"amount":    amount.String(),
		})
	}
	t.allowances.Set(f, allowanceKey{holder, spender}, new(big.Int).Sub(allowed, amount))
	return nil
}
