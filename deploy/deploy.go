// Package deploy bootstraps a complete local deployment on a ledger: the
// reference tokens, the yield wrapper, a funded router, the relay hub, the
// forwarder template, factory, swapper and settlement utility.
package deploy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/factory"
	"github.com/floatify/floatify/go/forwarder"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/redemption"
	"github.com/floatify/floatify/go/relay"
	"github.com/floatify/floatify/go/router"
	"github.com/floatify/floatify/go/swapper"
	"github.com/floatify/floatify/go/tokens"
)

// Options configures Bootstrap.
type Options struct {
	// Admin deploys and owns every contract and operates the router.
	Admin common.Address

	// Genesis is credited to Admin before deploying. Zero skips the credit.
	Genesis *big.Int

	// HubDeposit funds the Swapper's relay deposit.
	HubDeposit *big.Int

	// NativeReserves is sent to the router so it can pay out native.
	NativeReserves *big.Int

	// Relayers are trusted by the Swapper to submit relayed calls.
	Relayers []common.Address

	Relay          relay.Config
	MaxSlippageBps uint64
	Logger         *zap.Logger
}

// DefaultOptions returns options for a local deployment administered by admin.
func DefaultOptions(admin common.Address) Options {
	return Options{
		Admin:          admin,
		Genesis:        Ether(10000),
		HubDeposit:     Ether(1),
		NativeReserves: Ether(100),
		Relay:          relay.DefaultConfig(),
		MaxSlippageBps: floatify.DefaultMaxSlippageBps,
	}
}

// Deployment holds every contract of a bootstrapped deployment.
type Deployment struct {
	Ledger *ledger.Ledger
	Admin  common.Address

	DAI  *tokens.Token
	SAI  *tokens.Token
	USDC *tokens.Token
	MKR  *tokens.Token
	BAT  *tokens.Token
	Chai *tokens.YieldWrapper

	Router     *router.Router
	Hub        *relay.Hub
	Template   *forwarder.Forwarder
	Factory    *factory.Factory
	Swapper    *swapper.Swapper
	Settlement *redemption.Settlement
}

// Router rates, scaled by router.RateUnit into the destination's decimals.
var (
	RateNativeDAI  = Ether(200)
	RateMKRDAI     = Ether(500)
	RateBATDAI     = new(big.Int).Div(Ether(1), big.NewInt(5))
	RateSAIDAI     = Ether(1)
	RateNativeUSDC = big.NewInt(200e6)
	RateDAIUSDC    = big.NewInt(1e6)
	RateMKRUSDC    = big.NewInt(500e6)
	RateBATUSDC    = big.NewInt(2e5)
)

// Bootstrap deploys and wires a deployment on l.
func Bootstrap(ctx context.Context, l *ledger.Ledger, opts Options) (*Deployment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	admin := opts.Admin
	if admin == (common.Address{}) {
		return nil, floatify.ErrZeroAddress.Withf("admin")
	}
	if opts.Genesis != nil && opts.Genesis.Sign() > 0 {
		if err := l.Credit(admin, opts.Genesis); err != nil {
			return nil, fmt.Errorf("credit admin: %w", err)
		}
	}

	d := &Deployment{Ledger: l, Admin: admin}
	var err error
	token := func(name, symbol string, decimals uint8) *tokens.Token {
		if err != nil {
			return nil
		}
		var tok *tokens.Token
		tok, err = deployContract[*tokens.Token](ctx, l, admin, symbol, func(addr common.Address) ledger.Contract {
			return tokens.NewToken(addr, name, symbol, decimals, admin)
		})
		return tok
	}
	d.DAI = token("Dai Stablecoin", "DAI", 18)
	d.SAI = token("Sai Stablecoin", "SAI", 18)
	d.USDC = token("USD Coin", "USDC", 6)
	d.MKR = token("Maker", "MKR", 18)
	d.BAT = token("Basic Attention Token", "BAT", 18)
	if err != nil {
		return nil, err
	}

	d.Chai, err = deployContract[*tokens.YieldWrapper](ctx, l, admin, "CHAI", func(addr common.Address) ledger.Contract {
		return tokens.NewYieldWrapper(addr, "Chai", "CHAI", d.DAI.Address(), l.Clock(), admin)
	})
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, d.DAI.Address(), func(f *ledger.Frame) error {
		return d.DAI.AddMinter(f, d.Chai.Address())
	}); err != nil {
		return nil, fmt.Errorf("add wrapper as minter: %w", err)
	}

	if err := d.deployRouter(ctx, opts); err != nil {
		return nil, err
	}

	d.Hub, err = deployContract[*relay.Hub](ctx, l, admin, "relay hub", func(addr common.Address) ledger.Contract {
		return relay.New(addr, opts.Relay)
	})
	if err != nil {
		return nil, err
	}

	fwDefaults := forwarder.Defaults{
		Addresses: forwarder.Addresses{
			Base:         d.DAI.Address(),
			YieldWrapper: d.Chai.Address(),
			Router:       d.Router.Address(),
		},
		MaxSlippageBps: opts.MaxSlippageBps,
	}
	d.Template, err = deployContract[*forwarder.Forwarder](ctx, l, admin, "forwarder template", func(addr common.Address) ledger.Contract {
		return forwarder.New(addr, fwDefaults)
	})
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, d.Template.Address(), func(f *ledger.Frame) error {
		return d.Template.Initialize(f, admin, admin)
	}); err != nil {
		return nil, fmt.Errorf("initialize template: %w", err)
	}

	d.Factory, err = deployContract[*factory.Factory](ctx, l, admin, "factory", func(addr common.Address) ledger.Contract {
		return factory.New(addr, l)
	})
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, d.Factory.Address(), d.Factory.Initialize); err != nil {
		return nil, fmt.Errorf("initialize factory: %w", err)
	}

	d.Swapper, err = deployContract[*swapper.Swapper](ctx, l, admin, "swapper", func(addr common.Address) ledger.Contract {
		return swapper.New(addr, l, swapper.Addresses{
			Base:         d.DAI.Address(),
			YieldWrapper: d.Chai.Address(),
			Router:       d.Router.Address(),
			RelayHub:     d.Hub.Address(),
		})
	})
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, d.Swapper.Address(), func(f *ledger.Frame) error {
		return d.Swapper.InitializeSwapper(f, d.Factory.Address())
	}); err != nil {
		return nil, fmt.Errorf("initialize swapper: %w", err)
	}
	for _, relayer := range opts.Relayers {
		if err := d.AddRelayer(ctx, relayer); err != nil {
			return nil, fmt.Errorf("trust relayer %s: %w", relayer.Hex(), err)
		}
	}
	if opts.HubDeposit != nil && opts.HubDeposit.Sign() > 0 {
		if _, err := l.Execute(ctx, ledger.Message{From: admin, To: d.Hub.Address(), Value: opts.HubDeposit}, func(f *ledger.Frame) error {
			return d.Hub.DepositFor(f, d.Swapper.Address())
		}); err != nil {
			return nil, fmt.Errorf("fund swapper relay deposit: %w", err)
		}
	}

	d.Settlement, err = deployContract[*redemption.Settlement](ctx, l, admin, "settlement", func(addr common.Address) ledger.Contract {
		return redemption.New(addr, redemption.Defaults{
			Addresses: redemption.Addresses{
				Base:         d.DAI.Address(),
				YieldWrapper: d.Chai.Address(),
				Router:       d.Router.Address(),
				Settlement:   d.USDC.Address(),
			},
			MaxSlippageBps: opts.MaxSlippageBps,
		})
	})
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, d.Settlement.Address(), d.Settlement.Initialize); err != nil {
		return nil, fmt.Errorf("initialize settlement: %w", err)
	}

	logger.Info("deployment ready",
		zap.String("admin", admin.Hex()),
		zap.String("dai", d.DAI.Address().Hex()),
		zap.String("chai", d.Chai.Address().Hex()),
		zap.String("usdc", d.USDC.Address().Hex()),
		zap.String("router", d.Router.Address().Hex()),
		zap.String("hub", d.Hub.Address().Hex()),
		zap.String("template", d.Template.Address().Hex()),
		zap.String("factory", d.Factory.Address().Hex()),
		zap.String("swapper", d.Swapper.Address().Hex()),
		zap.String("settlement", d.Settlement.Address().Hex()))
	return d, nil
}

func (d *Deployment) deployRouter(ctx context.Context, opts Options) error {
	var err error
	d.Router, err = deployContract[*router.Router](ctx, d.Ledger, d.Admin, "router", func(addr common.Address) ledger.Contract {
		return router.New(addr, d.Admin)
	})
	if err != nil {
		return err
	}

	rates := []struct {
		src, dst common.Address
		rate     *big.Int
	}{
		{floatify.NativeAsset, d.DAI.Address(), RateNativeDAI},
		{d.MKR.Address(), d.DAI.Address(), RateMKRDAI},
		{d.BAT.Address(), d.DAI.Address(), RateBATDAI},
		{d.SAI.Address(), d.DAI.Address(), RateSAIDAI},
		{floatify.NativeAsset, d.USDC.Address(), RateNativeUSDC},
		{d.DAI.Address(), d.USDC.Address(), RateDAIUSDC},
		{d.MKR.Address(), d.USDC.Address(), RateMKRUSDC},
		{d.BAT.Address(), d.USDC.Address(), RateBATUSDC},
	}
	if err := d.exec(ctx, d.Router.Address(), func(f *ledger.Frame) error {
		for _, r := range rates {
			if err := d.Router.SetRate(f, r.src, r.dst, r.rate); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("set router rates: %w", err)
	}

	if err := d.Mint(ctx, d.DAI, d.Router.Address(), Ether(1000000)); err != nil {
		return fmt.Errorf("fund router: %w", err)
	}
	if err := d.Mint(ctx, d.USDC, d.Router.Address(), big.NewInt(1e12)); err != nil {
		return fmt.Errorf("fund router: %w", err)
	}
	if opts.NativeReserves != nil && opts.NativeReserves.Sign() > 0 {
		if _, err := d.Ledger.Send(ctx, d.Admin, d.Router.Address(), opts.NativeReserves); err != nil {
			return fmt.Errorf("fund router native reserves: %w", err)
		}
	}
	return nil
}

// Mint issues amount of tok to to. Admin is the issuer of every reference
// token.
func (d *Deployment) Mint(ctx context.Context, tok *tokens.Token, to common.Address, amount *big.Int) error {
	return d.exec(ctx, tok.Address(), func(f *ledger.Frame) error {
		return tok.Mint(f, to, amount)
	})
}

// AddRelayer makes the Swapper trust relayer.
func (d *Deployment) AddRelayer(ctx context.Context, relayer common.Address) error {
	return d.exec(ctx, d.Swapper.Address(), func(f *ledger.Frame) error {
		return d.Swapper.AddRelayer(f, relayer)
	})
}

// CreateForwarder deploys the forwarder of user through the factory.
func (d *Deployment) CreateForwarder(ctx context.Context, user common.Address) (*forwarder.Forwarder, error) {
	var fw *forwarder.Forwarder
	if err := d.exec(ctx, d.Factory.Address(), func(f *ledger.Frame) error {
		addr, err := d.Factory.CreateForwarder(f, d.Template.Address(), user, d.Swapper.Address())
		if err != nil {
			return err
		}
		fw, err = ledger.At[*forwarder.Forwarder](f.Ledger(), addr)
		return err
	}); err != nil {
		return nil, err
	}
	return fw, nil
}

func (d *Deployment) exec(ctx context.Context, to common.Address, fn func(f *ledger.Frame) error) error {
	_, err := d.Ledger.Execute(ctx, ledger.Message{From: d.Admin, To: to}, fn)
	return err
}

func deployContract[T any](ctx context.Context, l *ledger.Ledger, from common.Address, name string, build func(addr common.Address) ledger.Contract) (T, error) {
	var zero T
	addr, _, err := l.Deploy(ctx, from, build)
	if err != nil {
		return zero, fmt.Errorf("deploy %s: %w", name, err)
	}
	c, err := ledger.At[T](l, addr)
	if err != nil {
		return zero, fmt.Errorf("deploy %s: %w", name, err)
	}
	return c, nil
}

// Ether returns n * 10^18.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}
