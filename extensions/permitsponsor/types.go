// Package permitsponsor provides types and helpers for sponsored permit
// submission.
//
// A holder signs an off-chain wrapper permit granting the Swapper an
// allowance, and the relayer submits it on-chain so the holder never pays
// for the approval.
package permitsponsor

// PermitSponsoring is the extension identifier.
const PermitSponsoring = "permitSponsoring"

// Info contains the permit populated by the holder.
type Info struct {
	// Holder is the address granting the allowance.
	Holder string `json:"holder"`
	// Wrapper is the address of the yield wrapper the permit is for.
	Wrapper string `json:"wrapper"`
	// Spender is the address receiving the allowance, usually the Swapper.
	Spender string `json:"spender"`
	// Nonce is the holder's current wrapper nonce (decimal string).
	Nonce string `json:"nonce"`
	// Expiry is the unix time after which the permit is void; "0" never
	// expires (decimal string).
	Expiry string `json:"expiry"`
	// Allowed grants an unlimited allowance when true and revokes when false.
	Allowed bool `json:"allowed"`
	// Signature is the 65-byte concatenated permit signature (r, s, v) as hex.
	Signature string `json:"signature"`
	// Version is the schema version identifier.
	Version string `json:"version"`
}

// ServerInfo is the server-side info advertised to clients.
type ServerInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Extension is the extension object as it appears in a request or an
// advertisement.
type Extension struct {
	Info   interface{}            `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}
