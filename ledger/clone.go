package ledger

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP-1167 minimal proxy runtime code around the 20 byte template address.
var (
	clonePrefix = hexutil.MustDecode("0x363d3d373d3d3d363d73")
	cloneSuffix = hexutil.MustDecode("0x5af43d82803e903d91602b57fd5bf3")
)

// Cloneable is implemented by template contracts. NewClone returns a fresh
// instance with its own storage for a clone deployed at addr.
type Cloneable interface {
	NewClone(addr common.Address) Contract
}

// CloneCode returns the minimal proxy runtime code delegating to template.
func CloneCode(template common.Address) []byte {
	code := make([]byte, 0, len(clonePrefix)+common.AddressLength+len(cloneSuffix))
	code = append(code, clonePrefix...)
	code = append(code, template.Bytes()...)
	return append(code, cloneSuffix...)
}

// IsCloneCode reports whether code is the minimal proxy pointing at template.
func IsCloneCode(code []byte, template common.Address) bool {
	return bytes.Equal(code, CloneCode(template))
}

// IsClone reports whether the code at candidate is a minimal proxy of template.
func (l *Ledger) IsClone(template, candidate common.Address) bool {
	code, ok := l.code.Get(candidate)
	return ok && IsCloneCode(code, template)
}

// DeployClone deploys a minimal proxy of the template contract at the next
// CREATE address of the executing contract.
func (f *Frame) DeployClone(template common.Address) (common.Address, error) {
	tmpl, err := At[Cloneable](f.l, template)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress(f.self, f.l.nonceOf(f.self))
	return f.l.deploy(f, f.self, tmpl.NewClone(addr), CloneCode(template))
}
