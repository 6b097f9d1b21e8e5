// Package operator runs the keeper that forwards yield held by every
// registered forwarder on behalf of the floatify admin.
package operator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/external"
	"github.com/floatify/floatify/go/forwarder"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/units"
)

// DefaultInterval is the keeper period.
const DefaultInterval = time.Minute

// Keeper periodically converts and forwards what each forwarder holds.
type Keeper struct {
	d        *deploy.Deployment
	operator common.Address
	tokens   []common.Address
	interval time.Duration
	logger   *zap.Logger
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// WithInterval sets the period between ticks.
func WithInterval(interval time.Duration) Option {
	return func(k *Keeper) { k.interval = interval }
}

// WithTokens replaces the non-base tokens the keeper converts.
func WithTokens(tokens ...common.Address) Option {
	return func(k *Keeper) { k.tokens = tokens }
}

// New creates a keeper sending transactions from operator, which must be the
// forwarders' floatify address. It converts SAI, MKR and BAT by default.
func New(d *deploy.Deployment, operator common.Address, opts ...Option) *Keeper {
	k := &Keeper{
		d:        d,
		operator: operator,
		tokens:   []common.Address{d.SAI.Address(), d.MKR.Address(), d.BAT.Address()},
		interval: DefaultInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Report summarises one tick.
type Report struct {
	Users     int
	Forwarded *big.Int
	Actions   int
	Failures  int
}

// holdings is what a forwarder held when the tick inspected it.
type holdings struct {
	forwarder *forwarder.Forwarder
	native    *big.Int
	tokens    []common.Address
	base      *big.Int
}

// Run ticks until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	k.logger.Info("keeper started", zap.Duration("interval", k.interval))
	for {
		select {
		case <-ticker.C:
			report, err := k.Tick(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				k.logger.Error("keeper tick", zap.Error(err))
				continue
			}
			k.logger.Info("keeper tick",
				zap.Int("users", report.Users),
				zap.Int("actions", report.Actions),
				zap.Int("failures", report.Failures),
				zap.String("forwarded", units.Format(report.Forwarded, 18)))
		case <-ctx.Done():
			k.logger.Info("keeper stopped")
			return nil
		}
	}
}

// Tick converts native and token holdings of every forwarder into base and
// forwards all base as yield shares to the forwarder owner. One forwarder's
// failure is logged and does not stop the others.
func (k *Keeper) Tick(ctx context.Context) (Report, error) {
	report := Report{Forwarded: new(big.Int)}
	var users []common.Address
	_ = k.d.Ledger.View(func() error {
		users = k.d.Factory.GetUsers()
		return nil
	})
	report.Users = len(users)

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		h, err := k.inspect(user)
		if err != nil {
			report.Failures++
			k.logger.Warn("inspect forwarder", zap.String("user", user.Hex()), zap.Error(err))
			continue
		}

		// Every successful conversion also forwards the base already held.
		fw := h.forwarder
		forwarded := false
		if h.native.Sign() > 0 {
			forwarded = k.act(ctx, &report, user, "convert native", fw.Address(), fw.ConvertAndForwardNative) || forwarded
		}
		for _, token := range h.tokens {
			token := token
			forwarded = k.act(ctx, &report, user, "convert token", fw.Address(), func(f *ledger.Frame) (*big.Int, error) {
				return fw.ConvertAndForwardToken(f, token)
			}) || forwarded
		}
		if h.base.Sign() > 0 && !forwarded {
			k.act(ctx, &report, user, "forward yield", fw.Address(), fw.MintAndForwardYield)
		}
	}
	return report, nil
}

func (k *Keeper) inspect(user common.Address) (*holdings, error) {
	h := &holdings{}
	err := k.d.Ledger.View(func() error {
		addr := k.d.Factory.GetForwarder(user)
		fw, err := ledger.At[*forwarder.Forwarder](k.d.Ledger, addr)
		if err != nil {
			return err
		}
		h.forwarder = fw
		h.native = k.d.Ledger.NativeBalance(addr)
		for _, token := range k.tokens {
			tok, err := ledger.At[external.AssetLedger](k.d.Ledger, token)
			if err != nil {
				return err
			}
			if tok.BalanceOf(addr).Sign() > 0 {
				h.tokens = append(h.tokens, token)
			}
		}
		base, err := ledger.At[external.AssetLedger](k.d.Ledger, fw.Addresses().Base)
		if err != nil {
			return err
		}
		h.base = base.BalanceOf(addr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// act runs one forwarder operation, adding what it forwarded to report.
func (k *Keeper) act(ctx context.Context, report *Report, user common.Address, action string, to common.Address, op func(f *ledger.Frame) (*big.Int, error)) bool {
	var forwarded *big.Int
	receipt, err := k.d.Ledger.Execute(ctx, ledger.Message{From: k.operator, To: to}, func(f *ledger.Frame) error {
		var err error
		forwarded, err = op(f)
		return err
	})
	report.Actions++
	if err != nil {
		report.Failures++
		k.logger.Warn(action+" failed",
			zap.String("user", user.Hex()),
			zap.String("forwarder", to.Hex()),
			zap.Error(err))
		return false
	}
	report.Forwarded.Add(report.Forwarded, forwarded)
	k.logger.Info(action,
		zap.String("user", user.Hex()),
		zap.String("forwarder", to.Hex()),
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.String("forwarded", units.Format(forwarded, 18)))
	return true
}
