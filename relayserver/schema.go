package relayserver

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/floatify/floatify/go/extensions/permitsponsor"
)

const relayBodySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "request": {
      "type": "object",
      "properties": {
        "from":  {"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"},
        "to":    {"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"},
        "data":  {"type": "string", "pattern": "^0x([a-fA-F0-9]{2})*$"},
        "nonce": {"type": "string", "pattern": "^[0-9]+$"}
      },
      "required": ["from", "to", "data", "nonce"]
    },
    "signature": {"type": "string", "pattern": "^0x[a-fA-F0-9]{130}$"}
  },
  "required": ["request", "signature"]
}`

const forwarderBodySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "user": {"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"}
  },
  "required": ["user"]
}`

type schemas struct {
	relay     *gojsonschema.Schema
	permit    *gojsonschema.Schema
	forwarder *gojsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	relay, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(relayBodySchema))
	if err != nil {
		return nil, fmt.Errorf("compile relay schema: %w", err)
	}
	permit, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(permitsponsor.Schema()))
	if err != nil {
		return nil, fmt.Errorf("compile permit schema: %w", err)
	}
	forwarder, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(forwarderBodySchema))
	if err != nil {
		return nil, fmt.Errorf("compile forwarder schema: %w", err)
	}
	return &schemas{relay: relay, permit: permit, forwarder: forwarder}, nil
}

// validate returns the schema violations of body, or nil when it conforms.
func validate(schema *gojsonschema.Schema, body []byte) ([]string, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return violations, nil
}
