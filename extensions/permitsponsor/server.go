package permitsponsor

// DeclarePermitSponsoringExtension creates the extension advertisement keyed
// by the extension identifier. Clients populate the info with their signed
// permit.
func DeclarePermitSponsoringExtension() map[string]interface{} {
	return map[string]interface{}{
		PermitSponsoring: Extension{
			Info: ServerInfo{
				Description: "The relayer submits signed yield wrapper permits on behalf of the holder.",
				Version:     "1",
			},
			Schema: Schema(),
		},
	}
}

// Schema returns the JSON Schema of Info.
func Schema() map[string]interface{} {
	address := func(description string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "string",
			"pattern":     "^0x[a-fA-F0-9]{40}$",
			"description": description,
		}
	}
	numeric := func(description string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "string",
			"pattern":     "^[0-9]+$",
			"description": description,
		}
	}
	return map[string]interface{}{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]interface{}{
			"holder":  address("The address granting the allowance."),
			"wrapper": address("The address of the yield wrapper."),
			"spender": address("The address receiving the allowance."),
			"nonce":   numeric("The current wrapper nonce of the holder."),
			"expiry":  numeric("The timestamp after which the permit is void, 0 for never."),
			"allowed": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the permit grants or revokes the allowance.",
			},
			"signature": map[string]interface{}{
				"type":        "string",
				"pattern":     "^0x[a-fA-F0-9]{130}$",
				"description": "The 65-byte concatenated signature (r, s, v) as a hex string.",
			},
			"version": map[string]interface{}{
				"type":        "string",
				"pattern":     `^[0-9]+(\.[0-9]+)*$`,
				"description": "Schema version identifier.",
			},
		},
		"required": []string{
			"holder", "wrapper", "spender", "nonce", "expiry", "allowed", "signature", "version",
		},
	}
}
