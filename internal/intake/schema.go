package intake

import "github.com/santhosh-tekuri/jsonschema/v5"

// Raw signal payloads are validated against this schema before anything
// else looks at them. Provider feeds are untrusted input.
const signalSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["provider_id", "symbol", "side", "entry"],
  "properties": {
    "provider_id": {"type": "integer", "minimum": 1},
    "symbol": {"type": "string", "minLength": 1, "maxLength": 32},
    "side": {"type": "string", "enum": ["long", "short", "buy", "sell"]},
    "leverage": {"type": "integer", "minimum": 1, "maximum": 125},
    "entry": {"type": "number", "exclusiveMinimum": 0},
    "stoploss": {"type": "number", "minimum": 0},
    "targets": {
      "type": "array",
      "items": {"type": "number", "exclusiveMinimum": 0},
      "maxItems": 10
    }
  },
  "additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("signal.schema.json", signalSchema)
