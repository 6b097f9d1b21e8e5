package ledger

import (
	"math/big"

	"github.com/holiman/uint256"
)

// CheckAmount verifies that x is a valid uint256 amount.
func CheckAmount(x *big.Int) error {
	if x == nil || x.Sign() < 0 {
		return ErrAmountRange.Withf("%v", x)
	}
	if _, overflow := uint256.FromBig(x); overflow {
		return ErrAmountRange.Withf("%s", x)
	}
	return nil
}

// Add returns a+b, failing if the result does not fit in 256 bits.
func Add(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow.Withf("%s + %s", a, b)
	}
	return sum.ToBig(), nil
}

// Sub returns a-b, failing if b > a.
func Sub(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow.Withf("%s - %s", a, b)
	}
	return diff.ToBig(), nil
}

// MulDiv returns a*b/d rounded down, failing if the result overflows or d is
// zero.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	z, overflow := uint256.FromBig(d)
	if overflow || z.IsZero() {
		return nil, ErrAmountRange.Withf("divisor %v", d)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, ErrOverflow.Withf("%s * %s / %s", a, b, d)
	}
	return out.ToBig(), nil
}

func operands(a, b *big.Int) (*uint256.Int, *uint256.Int, error) {
	if err := CheckAmount(a); err != nil {
		return nil, nil, err
	}
	if err := CheckAmount(b); err != nil {
		return nil, nil, err
	}
	x, _ := uint256.FromBig(a)
	y, _ := uint256.FromBig(b)
	return x, y, nil
}
