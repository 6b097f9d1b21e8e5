package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	floatify "github.com/floatify/floatify/go"
)

var (
	alice = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	bob   = common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0")
)

var errBoom = errors.New("boom")

type counter struct {
	addr  common.Address
	n     *Value[int]
	calls *List[common.Address]
	seen  *Map[common.Address, int]
}

func newCounter(addr common.Address) Contract {
	return &counter{addr: addr, n: NewValue(0), calls: NewList[common.Address](), seen: NewMap[common.Address, int]()}
}

func (c *counter) NewClone(addr common.Address) Contract { return newCounter(addr) }

func (c *counter) Inc(f *Frame, fail bool) error {
	c.n.Set(f, c.n.Get()+1)
	c.calls.Append(f, f.Sender())
	prev, _ := c.seen.Get(f.Sender())
	c.seen.Set(f, f.Sender(), prev+1)
	f.Emit("Incremented", map[string]interface{}{"by": f.Sender()})
	if fail {
		return errBoom
	}
	return nil
}

type vault struct{}

func (vault) Receive(f *Frame) error {
	f.Emit("Received", map[string]interface{}{"amount": f.Value()})
	return nil
}

func deployCounter(t *testing.T, l *Ledger) (common.Address, *counter) {
	t.Helper()
	addr, receipt, err := l.Deploy(context.Background(), alice, newCounter)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	c, err := At[*counter](l, addr)
	require.NoError(t, err)
	return addr, c
}

func TestExecuteCommitsEvents(t *testing.T) {
	l := New()
	addr, c := deployCounter(t, l)

	receipt, err := l.Execute(context.Background(), Message{From: bob, To: addr}, func(f *Frame) error {
		return c.Inc(f, false)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(TxStatusSuccess), receipt.Status)
	assert.Equal(t, 1, c.n.Get())

	ev, ok := receipt.Event("Incremented")
	require.True(t, ok)
	assert.Equal(t, addr, ev.Address)
	assert.Equal(t, bob, ev.Args["by"])
	assert.Equal(t, receipt.Block, ev.Block)
	assert.Len(t, l.Events(addr, "Incremented"), 1)
}

func TestExecuteRevertsOnError(t *testing.T) {
	l := New()
	addr, c := deployCounter(t, l)

	receipt, err := l.Execute(context.Background(), Message{From: bob, To: addr}, func(f *Frame) error {
		return c.Inc(f, true)
	})
	require.ErrorIs(t, err, errBoom)
	require.NotNil(t, receipt)
	assert.False(t, receipt.Succeeded())
	assert.Empty(t, receipt.Events)
	assert.Equal(t, 0, c.n.Get())
	assert.Equal(t, 0, c.calls.Len())
	assert.Equal(t, 0, c.seen.Len())
	assert.Empty(t, l.Events(addr, ""))
}

func TestExecuteRecoversPanics(t *testing.T) {
	l := New()
	addr, c := deployCounter(t, l)

	_, err := l.Execute(context.Background(), Message{From: bob, To: addr}, func(f *Frame) error {
		_ = c.Inc(f, false)
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.n.Get())
}

func TestExecuteHonoursContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	receipt, err := l.Execute(ctx, Message{From: alice}, func(*Frame) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, receipt)
}

func TestSnapshotRevertKeepsEarlierWrites(t *testing.T) {
	l := New()
	addr, c := deployCounter(t, l)

	_, err := l.Execute(context.Background(), Message{From: bob, To: addr}, func(f *Frame) error {
		require.NoError(t, c.Inc(f, false))
		id := f.Snapshot()
		require.NoError(t, c.Inc(f, false))
		f.RevertTo(id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.n.Get())
	assert.Len(t, l.Events(addr, "Incremented"), 1)
}

func TestNativeTransfers(t *testing.T) {
	l := New()
	require.NoError(t, l.Credit(alice, big.NewInt(1000)))

	_, err := l.Send(context.Background(), alice, bob, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, "600", l.NativeBalance(alice).String())
	assert.Equal(t, "400", l.NativeBalance(bob).String())

	_, err = l.Send(context.Background(), bob, alice, big.NewInt(401))
	assert.True(t, floatify.IsKind(err, floatify.KindInsufficientBalance))
	assert.Equal(t, "400", l.NativeBalance(bob).String())
}

func TestNativeTransferToContracts(t *testing.T) {
	l := New()
	require.NoError(t, l.Credit(alice, big.NewInt(1000)))
	counterAddr, _ := deployCounter(t, l)
	vaultAddr, _, err := l.Deploy(context.Background(), alice, func(common.Address) Contract { return vault{} })
	require.NoError(t, err)

	receipt, err := l.Send(context.Background(), alice, vaultAddr, big.NewInt(10))
	require.NoError(t, err)
	_, ok := receipt.Event("Received")
	assert.True(t, ok)

	_, err = l.Send(context.Background(), alice, counterAddr, big.NewInt(10))
	require.ErrorIs(t, err, ErrNotPayable)
	assert.Equal(t, "990", l.NativeBalance(alice).String())
}

func TestDeployClone(t *testing.T) {
	l := New()
	template, _ := deployCounter(t, l)
	factory, _ := deployCounter(t, l)
	require.NotEqual(t, template, factory)

	var clone common.Address
	_, err := l.Execute(context.Background(), Message{From: alice, To: factory}, func(f *Frame) error {
		var err error
		clone, err = f.DeployClone(template)
		return err
	})
	require.NoError(t, err)

	assert.True(t, l.IsClone(template, clone))
	assert.False(t, l.IsClone(factory, clone))
	assert.False(t, l.IsClone(template, template))
	assert.Equal(t, CloneCode(template), l.Code(clone))

	c, err := At[*counter](l, clone)
	require.NoError(t, err)
	tmpl, err := At[*counter](l, template)
	require.NoError(t, err)
	assert.NotSame(t, tmpl, c)
	assert.Equal(t, clone, c.addr)
}

func TestDeployCloneRevertedWithTransaction(t *testing.T) {
	l := New()
	template, _ := deployCounter(t, l)

	var clone common.Address
	_, err := l.Execute(context.Background(), Message{From: alice, To: template}, func(f *Frame) error {
		var err error
		clone, err = f.DeployClone(template)
		require.NoError(t, err)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.False(t, l.IsContract(clone))
	assert.Nil(t, l.Code(clone))
}

func TestAtTypeMismatch(t *testing.T) {
	l := New()
	addr, _ := deployCounter(t, l)

	_, err := At[Payable](l, addr)
	require.ErrorIs(t, err, ErrContractType)
	_, err = At[*counter](l, bob)
	require.ErrorIs(t, err, ErrNoContract)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	l := New(WithClock(clock))
	clock.Advance(time.Hour)

	receipt, err := l.Execute(context.Background(), Message{From: alice}, func(f *Frame) error {
		assert.Equal(t, start.Add(time.Hour), f.Now())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), receipt.Timestamp)
}

func TestCheckedMath(t *testing.T) {
	max := floatify.MaxUint256()

	_, err := Add(max, big.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Sub(big.NewInt(1), big.NewInt(2))
	require.ErrorIs(t, err, ErrUnderflow)
	_, err = Add(big.NewInt(-1), big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountRange)

	got, err := MulDiv(big.NewInt(10), big.NewInt(3), big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, "7", got.String())
	_, err = MulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrAmountRange)
}
