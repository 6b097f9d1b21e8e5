package operator_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/operator"
)

var (
	admin   = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	alice   = common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0")
	bob     = common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	charlie = common.HexToAddress("0xE11BA2b4D45Eaed5996Cd0823791E0C93114882d")
)

func bootstrap(t *testing.T) *deploy.Deployment {
	t.Helper()
	clock := ledger.NewManualClock(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC))
	d, err := deploy.Bootstrap(context.Background(), ledger.New(ledger.WithClock(clock)), deploy.DefaultOptions(admin))
	require.NoError(t, err)
	return d
}

// fund gives alice base and native, bob MKR and charlie only base.
func fund(t *testing.T, d *deploy.Deployment) {
	t.Helper()
	ctx := context.Background()
	fwAlice, err := d.CreateForwarder(ctx, alice)
	require.NoError(t, err)
	fwBob, err := d.CreateForwarder(ctx, bob)
	require.NoError(t, err)
	fwCharlie, err := d.CreateForwarder(ctx, charlie)
	require.NoError(t, err)

	require.NoError(t, d.Mint(ctx, d.DAI, fwAlice.Address(), deploy.Ether(10)))
	_, err = d.Ledger.Send(ctx, admin, fwAlice.Address(), deploy.Ether(1))
	require.NoError(t, err)
	require.NoError(t, d.Mint(ctx, d.MKR, fwBob.Address(), deploy.Ether(2)))
	require.NoError(t, d.Mint(ctx, d.DAI, fwCharlie.Address(), deploy.Ether(5)))
}

func TestTick(t *testing.T) {
	d := bootstrap(t)
	fund(t, d)
	k := operator.New(d, admin)

	report, err := k.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 3, report.Actions)
	assert.Equal(t, 0, report.Failures)
	assert.Equal(t, deploy.Ether(1215).String(), report.Forwarded.String())

	assert.Equal(t, deploy.Ether(210).String(), d.Chai.BaseValueOf(alice).String())
	assert.Equal(t, deploy.Ether(1000).String(), d.Chai.BaseValueOf(bob).String())
	assert.Equal(t, deploy.Ether(5).String(), d.Chai.BaseValueOf(charlie).String())

	fw := d.Factory.GetForwarder(alice)
	assert.Zero(t, d.DAI.BalanceOf(fw).Sign())
	assert.Zero(t, d.Ledger.NativeBalance(fw).Sign())

	// Nothing is left to forward.
	report, err = k.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 0, report.Actions)
	assert.Zero(t, report.Forwarded.Sign())
}

func TestTickCountsFailures(t *testing.T) {
	d := bootstrap(t)
	fund(t, d)
	stranger := common.HexToAddress("0xd03ea8624C8C5987235048901fB614fDcA89b117")

	report, err := operator.New(d, stranger).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Actions)
	assert.Equal(t, 3, report.Failures)
	assert.Zero(t, report.Forwarded.Sign())
	assert.Zero(t, d.Chai.BalanceOf(alice).Sign())
}

func TestTickHonorsTokenList(t *testing.T) {
	d := bootstrap(t)
	fund(t, d)

	report, err := operator.New(d, admin, operator.WithTokens(d.BAT.Address())).Tick(context.Background())
	require.NoError(t, err)
	// Bob's MKR is not on the list and stays with the forwarder.
	assert.Equal(t, 2, report.Actions)
	assert.Zero(t, d.Chai.BalanceOf(bob).Sign())
	assert.Equal(t, deploy.Ether(2).String(), d.MKR.BalanceOf(d.Factory.GetForwarder(bob)).String())
}

func TestTickStopsOnCanceledContext(t *testing.T) {
	d := bootstrap(t)
	fund(t, d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := operator.New(d, admin).Tick(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun(t *testing.T) {
	d := bootstrap(t)
	fund(t, d)
	k := operator.New(d, admin, operator.WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		var forwarded bool
		_ = d.Ledger.View(func() error {
			forwarded = d.Chai.BalanceOf(charlie).Sign() > 0
			return nil
		})
		return forwarded
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
}
