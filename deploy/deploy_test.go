package deploy_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/relay"
	evmsigner "github.com/floatify/floatify/go/signers/evm"
	"github.com/floatify/floatify/go/swapper"
)

const aliceKey = "0x6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"

var (
	admin       = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	relayer     = common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	liquidation = common.HexToAddress("0xE11BA2b4D45Eaed5996Cd0823791E0C93114882d")
)

func TestBootstrap(t *testing.T) {
	l := ledger.New()
	opts := deploy.DefaultOptions(admin)
	opts.Logger = zap.NewNop()
	d, err := deploy.Bootstrap(context.Background(), l, opts)
	require.NoError(t, err)

	assert.Equal(t, uint8(6), d.USDC.Decimals())
	assert.True(t, d.DAI.IsMinter(d.Chai.Address()))
	assert.Equal(t, d.DAI.Address(), d.Chai.BaseAsset())
	assert.Equal(t, "1000000000000000000000000", d.DAI.BalanceOf(d.Router.Address()).String())
	assert.Equal(t, deploy.Ether(100).String(), l.NativeBalance(d.Router.Address()).String())
	assert.Equal(t, deploy.Ether(1).String(), d.Hub.BalanceOf(d.Swapper.Address()).String())

	assert.Equal(t, admin, d.Template.Owner())
	assert.Equal(t, admin, d.Factory.Owner())
	assert.Equal(t, admin, d.Swapper.Owner())
	assert.Equal(t, admin, d.Settlement.Destination())
	assert.Equal(t, d.Factory.Address(), d.Swapper.ForwarderFactory())
	assert.False(t, d.Swapper.IsTrustedRelayer(relayer))

	quote, err := d.Router.Quote(floatify.NativeAsset, d.DAI.Address(), deploy.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, deploy.RateNativeDAI.String(), quote.String())
}

func TestBootstrapRejectsZeroAdmin(t *testing.T) {
	_, err := deploy.Bootstrap(context.Background(), ledger.New(), deploy.DefaultOptions(common.Address{}))
	require.ErrorIs(t, err, floatify.ErrZeroAddress)
}

// TestYieldLifecycle walks a user from forwarder creation to a gasless
// withdrawal: yield arrives at the forwarder, the operator forwards it into
// shares, the user permits the Swapper and a relayer submits the withdrawal.
func TestYieldLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := ledger.NewManualClock(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))
	l := ledger.New(ledger.WithClock(clock))
	opts := deploy.DefaultOptions(admin)
	opts.Relayers = []common.Address{relayer}
	d, err := deploy.Bootstrap(ctx, l, opts)
	require.NoError(t, err)

	alice, err := evmsigner.NewSignerFromPrivateKey(aliceKey)
	require.NoError(t, err)
	user := alice.Address()

	fw, err := d.CreateForwarder(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, fw.Owner())
	assert.True(t, d.Swapper.IsValidUser(user))

	// Yield in base and native arrives at the forwarder.
	require.NoError(t, d.Mint(ctx, d.DAI, fw.Address(), deploy.Ether(50)))
	_, err = l.Send(ctx, admin, fw.Address(), deploy.Ether(1))
	require.NoError(t, err)

	_, err = l.Execute(ctx, ledger.Message{From: admin, To: fw.Address()}, func(f *ledger.Frame) error {
		_, err := fw.MintAndForwardYield(f)
		return err
	})
	require.NoError(t, err)
	_, err = l.Execute(ctx, ledger.Message{From: admin, To: fw.Address()}, func(f *ledger.Frame) error {
		_, err := fw.ConvertAndForwardNative(f)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.Ether(250).String(), d.Chai.BaseValueOf(user).String())

	// The user signs a permit for the Swapper; the relayer submits it.
	p := eip712.Permit{
		Holder:  user,
		Spender: d.Swapper.Address(),
		Nonce:   d.Chai.Nonces(user),
		Expiry:  new(big.Int),
		Allowed: true,
	}
	sig, err := alice.SignPermit(ctx, d.Chai.Domain(l.ChainID()), p)
	require.NoError(t, err)
	v, r, s, err := eip712.SplitSignature(sig)
	require.NoError(t, err)
	_, err = l.Execute(ctx, ledger.Message{From: relayer, To: d.Chai.Address()}, func(f *ledger.Frame) error {
		return d.Chai.Permit(f, p.Holder, p.Spender, p.Nonce, p.Expiry, p.Allowed, v, r, s)
	})
	require.NoError(t, err)

	clock.Advance(30 * 24 * time.Hour)

	data, err := swapper.PackWithdrawChaiAsDai(liquidation, floatify.MaxUint256())
	require.NoError(t, err)
	req := eip712.RelayRequest{From: user, To: d.Swapper.Address(), Data: data, Nonce: d.Hub.Nonce(user)}
	reqSig, err := alice.SignRelayRequest(ctx, d.Hub.Domain(l.ChainID()), req)
	require.NoError(t, err)

	deposit := d.Hub.BalanceOf(d.Swapper.Address())
	relayerBefore := l.NativeBalance(relayer)
	var res *relay.Result
	receipt, err := l.Execute(ctx, ledger.Message{From: relayer, To: d.Hub.Address()}, func(f *ledger.Frame) error {
		var err error
		res, err = d.Hub.Submit(f, req, reqSig)
		return err
	})
	require.NoError(t, err)
	require.True(t, res.Success, "relayed withdrawal failed: %v", res.Err)

	assert.Zero(t, d.Chai.BalanceOf(user).Sign())
	assert.Equal(t, 1, d.DAI.BalanceOf(liquidation).Cmp(deploy.Ether(250)), "a month of accrual is paid out")
	assert.Equal(t, new(big.Int).Sub(deposit, res.Charge).String(), d.Hub.BalanceOf(d.Swapper.Address()).String())
	assert.Equal(t, new(big.Int).Add(relayerBefore, res.Charge).String(), l.NativeBalance(relayer).String())
	assert.Equal(t, big.NewInt(1).String(), d.Hub.Nonce(user).String())

	ev, ok := receipt.Event(relay.EventTransactionRelayed)
	require.True(t, ok)
	assert.Equal(t, true, ev.Args["success"])
	assert.Equal(t, relay.Selector(data), ev.Args["selector"])

	// The destination hands its DAI to the settlement utility, which
	// liquidates it into USDC.
	paid := d.DAI.BalanceOf(liquidation)
	_, err = l.Execute(ctx, ledger.Message{From: liquidation, To: d.DAI.Address()}, func(f *ledger.Frame) error {
		return d.DAI.Transfer(f, d.Settlement.Address(), paid)
	})
	require.NoError(t, err)
	var swept *big.Int
	_, err = l.Execute(ctx, ledger.Message{From: relayer, To: d.Settlement.Address()}, func(f *ledger.Frame) error {
		var err error
		swept, err = d.Settlement.Liquidate(f)
		return err
	})
	require.NoError(t, err)
	want := new(big.Int).Div(new(big.Int).Mul(paid, deploy.RateDAIUSDC), deploy.Ether(1))
	assert.Equal(t, want.String(), swept.String())
	assert.Equal(t, want.String(), d.USDC.BalanceOf(admin).String())
}
