// Package relay is the reference relay hub. Recipient contracts prepay
// operating funds into the hub; relayers submit calls signed by users, the hub
// verifies the signature and the user's relay nonce, lets the recipient accept
// or reject the call, runs it with the user as relayed sender and pays the
// relayer out of the recipient's deposit. The charge stands even when the
// relayed call itself reverts.
package relay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/ledger"
)

// Hub events
const (
	EventDeposited          = "Deposited"
	EventWithdrawn          = "Withdrawn"
	EventTransactionRelayed = "TransactionRelayed"
)

// DomainName is the EIP-712 domain name relay requests are signed under.
const DomainName = "RelayHub"

// Recipient is implemented by contracts that accept relayed calls.
type Recipient interface {
	// AcceptRelayedCall runs before any state change or charge. A non-nil
	// error rejects the call and the relayer is not paid.
	AcceptRelayedCall(relayer, from common.Address, data []byte, maxCharge *big.Int) error
	// HandleRelayedCall executes data. f carries from as relayed sender.
	HandleRelayedCall(f *ledger.Frame, data []byte) error
}

// Config sets the relay price.
type Config struct {
	BaseGas    uint64
	PerByteGas uint64
	GasPrice   *big.Int
	FeePercent uint64
}

// DefaultConfig returns the price used by local deployments.
func DefaultConfig() Config {
	return Config{
		BaseGas:    100000,
		PerByteGas: 68,
		GasPrice:   big.NewInt(1e9),
		FeePercent: 10,
	}
}

// Charge returns gasPrice * (baseGas + perByteGas*dataLen) * (100+fee) / 100.
func (c Config) Charge(dataLen int) *big.Int {
	gas := new(big.Int).SetUint64(c.BaseGas + c.PerByteGas*uint64(dataLen))
	out := new(big.Int).Mul(gas, c.GasPrice)
	out.Mul(out, new(big.Int).SetUint64(100+c.FeePercent))
	return out.Quo(out, big.NewInt(100))
}

// Result is the outcome of a relayed call that the hub charged for.
type Result struct {
	Success bool
	Charge  *big.Int
	Err     error
}

// Hub tracks deposits and relay nonces.
type Hub struct {
	addr     common.Address
	cfg      Config
	deposits *ledger.Map[common.Address, *big.Int]
	nonces   *ledger.Map[common.Address, *big.Int]
}

var _ external.RelayGateway = (*Hub)(nil)

// New creates a hub deployed at addr.
func New(addr common.Address, cfg Config) *Hub {
	if cfg.GasPrice == nil {
		cfg.GasPrice = new(big.Int)
	}
	return &Hub{
		addr:     addr,
		cfg:      cfg,
		deposits: ledger.NewMap[common.Address, *big.Int](),
		nonces:   ledger.NewMap[common.Address, *big.Int](),
	}
}

// Address returns the hub's ledger address.
func (h *Hub) Address() common.Address { return h.addr }

// Config returns the relay price configuration.
func (h *Hub) Config() Config { return h.cfg }

// Domain returns the EIP-712 domain of relay requests.
func (h *Hub) Domain(chainID *big.Int) eip712.TypedDataDomain {
	return eip712.TypedDataDomain{
		Name:              DomainName,
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: h.addr.Hex(),
	}
}

// BalanceOf returns the prepaid balance of recipient.
func (h *Hub) BalanceOf(recipient common.Address) *big.Int {
	if d, ok := h.deposits.Get(recipient); ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

// Nonce returns the next relay nonce of from.
func (h *Hub) Nonce(from common.Address) *big.Int {
	if n, ok := h.nonces.Get(from); ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// DepositFor credits the call value to recipient.
func (h *Hub) DepositFor(f *ledger.Frame, recipient common.Address) error {
	amount := f.Value()
	if amount.Sign() == 0 {
		return ErrZeroDeposit
	}
	next, err := ledger.Add(h.BalanceOf(recipient), amount)
	if err != nil {
		return err
	}
	h.deposits.Set(f, recipient, next)
	f.Emit(EventDeposited, map[string]interface{}{
		"recipient": recipient,
		"from":      f.Sender(),
		"amount":    amount,
	})
	return nil
}

// Withdraw pays amount of the caller's deposit to dest.
func (h *Hub) Withdraw(f *ledger.Frame, amount *big.Int, dest common.Address) error {
	account := f.Sender()
	next, err := ledger.Sub(h.BalanceOf(account), amount)
	if err != nil {
		return ErrInsufficientDeposit.WithDetails(map[string]interface{}{
			"account": account.Hex(),
			"balance": h.BalanceOf(account).String(),
			"amount":  amount.String(),
		})
	}
	h.deposits.Set(f, account, next)
	if err := f.TransferNative(dest, amount); err != nil {
		return err
	}
	f.Emit(EventWithdrawn, map[string]interface{}{
		"account": account,
		"dest":    dest,
		"amount":  new(big.Int).Set(amount),
	})
	return nil
}

// Submit relays req on behalf of req.From. The caller is the relayer.
//
// Signature, nonce, deposit and recipient acceptance are checked first; any
// failure there is returned as an error and nothing is charged. Once accepted
// the nonce is consumed and the relayer is paid even if the relayed call
// fails, in which case the Result carries its error and its writes are
// rolled back.
func (h *Hub) Submit(f *ledger.Frame, req eip712.RelayRequest, signature []byte) (*Result, error) {
	relayer := f.Sender()

	v, r, s, err := eip712.SplitSignature(signature)
	if err != nil {
		return nil, ErrInvalidSignature.Withf("%v", err)
	}
	digest, err := eip712.HashRelayRequest(h.Domain(f.ChainID()), req)
	if err != nil {
		return nil, ErrInvalidSignature.Withf("%v", err)
	}
	signer, err := eip712.RecoverSigner(digest, v, r, s)
	if err != nil || signer != req.From {
		return nil, ErrInvalidSignature.WithDetails(map[string]interface{}{"from": req.From.Hex()})
	}

	nonce := h.Nonce(req.From)
	if req.Nonce == nil || req.Nonce.Cmp(nonce) != 0 {
		return nil, ErrBadNonce.WithDetails(map[string]interface{}{
			"expected": nonce.String(),
			"got":      req.Nonce.String(),
		})
	}

	recipient, err := ledger.At[Recipient](f.Ledger(), req.To)
	if err != nil {
		return nil, ErrNotRecipient.Withf("%s", req.To.Hex())
	}

	charge := h.cfg.Charge(len(req.Data))
	deposit := h.BalanceOf(req.To)
	if deposit.Cmp(charge) < 0 {
		return nil, ErrInsufficientDeposit.WithDetails(map[string]interface{}{
			"account": req.To.Hex(),
			"balance": deposit.String(),
			"amount":  charge.String(),
		})
	}

	if err := recipient.AcceptRelayedCall(relayer, req.From, req.Data, charge); err != nil {
		return nil, err
	}

	h.nonces.Set(f, req.From, new(big.Int).Add(nonce, big.NewInt(1)))

	snap := f.Snapshot()
	callErr := recipient.HandleRelayedCall(f.CallRelayed(req.To, req.From), req.Data)
	if callErr != nil {
		f.RevertTo(snap)
	}

	remaining, err := ledger.Sub(h.BalanceOf(req.To), charge)
	if err != nil {
		return nil, ErrInsufficientDeposit.Withf("%s", req.To.Hex())
	}
	h.deposits.Set(f, req.To, remaining)
	if err := f.TransferNative(relayer, charge); err != nil {
		return nil, err
	}

	f.Emit(EventTransactionRelayed, map[string]interface{}{
		"relayer":  relayer,
		"from":     req.From,
		"to":       req.To,
		"selector": Selector(req.Data),
		"success":  callErr == nil,
		"charge":   new(big.Int).Set(charge),
	})
	return &Result{Success: callErr == nil, Charge: charge, Err: callErr}, nil
}

// MsgSender returns the effective caller of f: the relayed sender when the
// transport sender is the trusted hub, the transport sender otherwise.
func MsgSender(f *ledger.Frame, hub common.Address) common.Address {
	if hub != (common.Address{}) && f.Sender() == hub && f.RelayedSender() != (common.Address{}) {
		return f.RelayedSender()
	}
	return f.Sender()
}

// Selector returns the first four bytes of calldata as a hex string.
func Selector(data []byte) string {
	if len(data) < 4 {
		return "0x"
	}
	return "0x" + common.Bytes2Hex(data[:4])
}
