package tokens

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// Ray is the fixed-point unit of rates and the share price.
var Ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// DefaultSavingsRate is the per-second savings rate in ray, roughly 2% a year.
var DefaultSavingsRate, _ = new(big.Int).SetString("1000000000627937192491029810", 10)

// PermitVersion is the EIP-712 domain version of wrapper permits.
const PermitVersion = "1"

// YieldWrapper wraps a base asset into shares. The base value of one share,
// chi, grows every second by the savings rate. Yield that exceeds the base
// held by the wrapper is minted from the base asset, so the wrapper must be a
// minter of it.
type YieldWrapper struct {
	*Token

	base  common.Address
	clock ledger.Clock

	rate    *ledger.Value[*big.Int]
	chi     *ledger.Value[*big.Int]
	rho     *ledger.Value[time.Time]
	nonces  *ledger.Map[common.Address, *big.Int]
	revoked *ledger.Map[allowanceKey, bool]
}

var _ external.YieldWrapper = (*YieldWrapper)(nil)

// NewYieldWrapper creates a wrapper over base deployed at addr. issuer may
// change the savings rate.
func NewYieldWrapper(addr common.Address, name, symbol string, base common.Address, clock ledger.Clock, issuer common.Address) *YieldWrapper {
	return &YieldWrapper{
		Token:   NewToken(addr, name, symbol, 18, issuer),
		base:    base,
		clock:   clock,
		rate:    ledger.NewValue(new(big.Int).Set(DefaultSavingsRate)),
		chi:     ledger.NewValue(new(big.Int).Set(Ray)),
		rho:     ledger.NewValue(clock.Now()),
		nonces:  ledger.NewMap[common.Address, *big.Int](),
		revoked: ledger.NewMap[allowanceKey, bool](),
	}
}

// BaseAsset returns the wrapped token.
func (w *YieldWrapper) BaseAsset() common.Address { return w.base }

// SavingsRate returns the per-second rate in ray.
func (w *YieldWrapper) SavingsRate() *big.Int { return new(big.Int).Set(w.rate.Get()) }

// Chi returns the share price at the current clock reading.
func (w *YieldWrapper) Chi() *big.Int {
	return w.chiAt(w.clock.Now())
}

// BaseValueOf returns what holder's shares redeem for now.
func (w *YieldWrapper) BaseValueOf(holder common.Address) *big.Int {
	return rmul(w.Chi(), w.balanceOf(holder))
}

// Nonces returns holder's next permit nonce.
func (w *YieldWrapper) Nonces(holder common.Address) *big.Int {
	if n, ok := w.nonces.Get(holder); ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// Domain returns the EIP-712 domain permits are signed under.
func (w *YieldWrapper) Domain(chainID *big.Int) eip712.TypedDataDomain {
	return eip712.TypedDataDomain{
		Name:              w.name,
		Version:           PermitVersion,
		ChainID:           chainID,
		VerifyingContract: w.addr.Hex(),
	}
}

// SetSavingsRate accrues up to now and then switches to rate. Only the
// issuer may call it, and the rate may not fall below one.
func (w *YieldWrapper) SetSavingsRate(f *ledger.Frame, rate *big.Int) error {
	if f.Sender() != w.issuer {
		return ErrNotMinter.WithDetails(map[string]interface{}{"caller": f.Sender().Hex()})
	}
	if rate == nil || rate.Cmp(Ray) < 0 {
		return ErrRateTooLow
	}
	w.Drip(f)
	w.rate.Set(f, new(big.Int).Set(rate))
	return nil
}

// Drip stores the share price accrued up to the block timestamp and returns it.
func (w *YieldWrapper) Drip(f *ledger.Frame) *big.Int {
	now := f.Now()
	chi := w.chiAt(now)
	if now.After(w.rho.Get()) {
		w.chi.Set(f, chi)
		w.rho.Set(f, now)
	}
	return chi
}

// Join pulls amount of base from the caller and credits dst with
// amount/chi shares.
func (w *YieldWrapper) Join(f *ledger.Frame, dst common.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	chi := w.Drip(f)
	base, bf, err := ledger.Bind[external.AssetLedger](f, w.base)
	if err != nil {
		return err
	}
	if err := base.TransferFrom(bf, f.Sender(), w.addr, amount); err != nil {
		return err
	}
	return w.mint(f, dst, rdiv(amount, chi))
}

// Exit burns shares of src and pays their base value to the caller.
func (w *YieldWrapper) Exit(f *ledger.Frame, src common.Address, shares *big.Int) (*big.Int, error) {
	if err := ledger.CheckAmount(shares); err != nil {
		return nil, err
	}
	chi := w.Drip(f)
	if err := w.spend(f, src, f.Sender(), shares); err != nil {
		return nil, err
	}
	if err := w.burn(f, src, shares); err != nil {
		return nil, err
	}
	amount := rmul(chi, shares)
	if err := w.payBase(f, f.Sender(), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// Draw burns the shares of src needed to pay amount of base, rounding the
// share count up, and pays the caller.
func (w *YieldWrapper) Draw(f *ledger.Frame, src common.Address, amount *big.Int) (*big.Int, error) {
	if err := ledger.CheckAmount(amount); err != nil {
		return nil, err
	}
	shares := rdivup(amount, w.Drip(f))
	if _, err := w.Exit(f, src, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Move transfers shares worth amount of base from src to dst.
func (w *YieldWrapper) Move(f *ledger.Frame, src, dst common.Address, amount *big.Int) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	return w.TransferFrom(f, src, dst, rdivup(amount, w.Drip(f)))
}

// TransferFrom moves shares, reporting a revoked permit as stale.
func (w *YieldWrapper) TransferFrom(f *ledger.Frame, from, to common.Address, shares *big.Int) error {
	if err := w.spend(f, from, f.Sender(), shares); err != nil {
		return err
	}
	return w.move(f, from, to, shares)
}

// Approve sets the caller's share allowance for spender.
func (w *YieldWrapper) Approve(f *ledger.Frame, spender common.Address, shares *big.Int) error {
	if err := w.Token.Approve(f, spender, shares); err != nil {
		return err
	}
	w.revoked.Delete(f, allowanceKey{f.Sender(), spender})
	return nil
}

// Permit applies a holder-signed approval. The checks run in order: non-zero
// holder, signature, expiry (zero never expires), nonce. allowed grants an
// unlimited allowance; !allowed revokes to zero.
func (w *YieldWrapper) Permit(f *ledger.Frame, holder, spender common.Address, nonce, expiry *big.Int, allowed bool, v uint8, r, s [32]byte) error {
	if holder == (common.Address{}) {
		return ErrPermitZeroHolder
	}
	if nonce == nil || expiry == nil {
		return floatify.ErrInvalidAmount
	}

	digest, err := eip712.HashPermit(w.Domain(f.ChainID()), eip712.Permit{
		Holder:  holder,
		Spender: spender,
		Nonce:   nonce,
		Expiry:  expiry,
		Allowed: allowed,
	})
	if err != nil {
		return ErrInvalidPermit.Withf("%v", err)
	}
	signer, err := eip712.RecoverSigner(digest, v, r, s)
	if err != nil || signer != holder {
		return ErrInvalidPermit.WithDetails(map[string]interface{}{"holder": holder.Hex()})
	}

	if expiry.Sign() != 0 && big.NewInt(f.Now().Unix()).Cmp(expiry) > 0 {
		return ErrPermitExpired.WithDetails(map[string]interface{}{"expiry": expiry.String()})
	}
	current := w.Nonces(holder)
	if nonce.Cmp(current) != 0 {
		return ErrInvalidNonce.WithDetails(map[string]interface{}{
			"expected": current.String(),
			"got":      nonce.String(),
		})
	}
	w.nonces.Set(f, holder, new(big.Int).Add(current, big.NewInt(1)))

	key := allowanceKey{holder, spender}
	if allowed {
		w.setAllowance(f, holder, spender, floatify.MaxUint256())
		w.revoked.Delete(f, key)
	} else {
		w.setAllowance(f, holder, spender, new(big.Int))
		w.revoked.Set(f, key, true)
	}
	return nil
}

func (w *YieldWrapper) spend(f *ledger.Frame, holder, spender common.Address, shares *big.Int) error {
	err := w.spendAllowance(f, holder, spender, shares)
	if err == nil {
		return nil
	}
	if revoked, _ := w.revoked.Get(allowanceKey{holder, spender}); revoked {
		return ErrPermitRevoked.WithDetails(map[string]interface{}{
			"holder":  holder.Hex(),
			"spender": spender.Hex(),
		})
	}
	return err
}

// payBase pays amount of base to to, minting the accrued part the wrapper
// does not hold.
func (w *YieldWrapper) payBase(f *ledger.Frame, to common.Address, amount *big.Int) error {
	base, bf, err := ledger.Bind[external.AssetLedger](f, w.base)
	if err != nil {
		return err
	}
	if held := base.BalanceOf(w.addr); held.Cmp(amount) < 0 {
		minter, mf, err := ledger.Bind[Mintable](f, w.base)
		if err != nil {
			return err
		}
		if err := minter.Mint(mf, w.addr, new(big.Int).Sub(amount, held)); err != nil {
			return err
		}
	}
	return base.Transfer(bf, to, amount)
}

func (w *YieldWrapper) chiAt(now time.Time) *big.Int {
	chi := w.chi.Get()
	rho := w.rho.Get()
	if !now.After(rho) {
		return new(big.Int).Set(chi)
	}
	elapsed := uint64(now.Sub(rho) / time.Second)
	return rmul(rpow(w.rate.Get(), elapsed), chi)
}

// rpow raises the ray x to the n-th power by squaring, rounding each step
// half up.
func rpow(x *big.Int, n uint64) *big.Int {
	z := new(big.Int).Set(Ray)
	base := new(big.Int).Set(x)
	for n > 0 {
		if n&1 == 1 {
			z = rmulRound(z, base)
		}
		n >>= 1
		if n > 0 {
			base = rmulRound(base, base)
		}
	}
	return z
}

func rmulRound(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, y)
	out.Add(out, new(big.Int).Rsh(Ray, 1))
	return out.Quo(out, Ray)
}

func rmul(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, y)
	return out.Quo(out, Ray)
}

func rdiv(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, Ray)
	return out.Quo(out, y)
}

func rdivup(x, y *big.Int) *big.Int {
	out := new(big.Int).Mul(x, Ray)
	out.Add(out, new(big.Int).Sub(y, big.NewInt(1)))
	return out.Quo(out, y)
}
