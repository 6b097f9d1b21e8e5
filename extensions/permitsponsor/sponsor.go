package permitsponsor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/ledger"
)

// ExtractPermitSponsoringInfo extracts the permit info from a request's
// extensions.
//
// Returns the info if the extension is present and every holder-populated
// field is set, or nil if not present.
func ExtractPermitSponsoringInfo(extensions map[string]interface{}) (*Info, error) {
	if extensions == nil {
		return nil, nil
	}
	extRaw, ok := extensions[PermitSponsoring]
	if !ok {
		return nil, nil
	}

	extJSON, err := json.Marshal(extRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permitSponsoring extension: %w", err)
	}
	var ext Extension
	if err := json.Unmarshal(extJSON, &ext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permitSponsoring extension: %w", err)
	}
	infoJSON, err := json.Marshal(ext.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permitSponsoring info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(infoJSON, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permitSponsoring info: %w", err)
	}

	if info.Holder == "" || info.Wrapper == "" || info.Spender == "" ||
		info.Nonce == "" || info.Expiry == "" || info.Signature == "" || info.Version == "" {
		return nil, nil
	}
	return &info, nil
}

var (
	addressPattern   = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	numericPattern   = regexp.MustCompile(`^[0-9]+$`)
	signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)
	versionPattern   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// ValidatePermitSponsoringInfo reports whether info is well formed.
func ValidatePermitSponsoringInfo(info *Info) bool {
	return addressPattern.MatchString(info.Holder) &&
		addressPattern.MatchString(info.Wrapper) &&
		addressPattern.MatchString(info.Spender) &&
		numericPattern.MatchString(info.Nonce) &&
		numericPattern.MatchString(info.Expiry) &&
		signaturePattern.MatchString(info.Signature) &&
		versionPattern.MatchString(info.Version)
}

// Permit is a parsed Info.
type Permit struct {
	Wrapper   common.Address
	Permit    eip712.Permit
	Signature []byte
}

// ParseInfo validates info and converts it to a Permit.
func ParseInfo(info *Info) (*Permit, error) {
	if info == nil || !ValidatePermitSponsoringInfo(info) {
		return nil, fmt.Errorf("invalid permitSponsoring info")
	}
	nonce, ok := new(big.Int).SetString(info.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid nonce %q", info.Nonce)
	}
	expiry, ok := new(big.Int).SetString(info.Expiry, 10)
	if !ok {
		return nil, fmt.Errorf("invalid expiry %q", info.Expiry)
	}
	sig, err := hexutil.Decode(info.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	return &Permit{
		Wrapper: common.HexToAddress(info.Wrapper),
		Permit: eip712.Permit{
			Holder:  common.HexToAddress(info.Holder),
			Spender: common.HexToAddress(info.Spender),
			Nonce:   nonce,
			Expiry:  expiry,
			Allowed: info.Allowed,
		},
		Signature: sig,
	}, nil
}

// NewInfo renders a signed permit as Info.
func NewInfo(wrapper common.Address, p eip712.Permit, signature []byte) *Info {
	return &Info{
		Holder:    p.Holder.Hex(),
		Wrapper:   wrapper.Hex(),
		Spender:   p.Spender.Hex(),
		Nonce:     p.Nonce.String(),
		Expiry:    p.Expiry.String(),
		Allowed:   p.Allowed,
		Signature: hexutil.Encode(signature),
		Version:   "1",
	}
}

// Permitter is a wrapper accepting signed permits.
type Permitter interface {
	Permit(f *ledger.Frame, holder, spender common.Address, nonce, expiry *big.Int, allowed bool, v uint8, r, s [32]byte) error
}

// Submit sends p to its wrapper from relayer.
func Submit(ctx context.Context, l *ledger.Ledger, relayer common.Address, p *Permit) (*ledger.Receipt, error) {
	v, r, s, err := eip712.SplitSignature(p.Signature)
	if err != nil {
		return nil, err
	}
	return l.Execute(ctx, ledger.Message{From: relayer, To: p.Wrapper}, func(f *ledger.Frame) error {
		wrapper, err := ledger.At[Permitter](f.Ledger(), p.Wrapper)
		if err != nil {
			return err
		}
		return wrapper.Permit(f, p.Permit.Holder, p.Permit.Spender, p.Permit.Nonce, p.Permit.Expiry, p.Permit.Allowed, v, r, s)
	})
}
