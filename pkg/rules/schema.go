package rules

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema is the JSON Schema for rule documents. It pins the
// top-level shape; operator-specific value shapes are checked
// programmatically against each operator's declared schema.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "ruleset", "rules"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "ruleset": {"type": "string", "minLength": 1},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "if", "then"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "if": {"$ref": "#/$defs/condition"},
          "then": {
            "type": "object",
            "required": ["decision", "weight", "reason"],
            "additionalProperties": false,
            "properties": {
              "decision": {"type": "string", "minLength": 1},
              "weight": {"type": "number", "minimum": 0, "maximum": 1},
              "reason": {"type": "string"},
              "metadata": {"type": "object"}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "condition": {
      "type": "object",
      "oneOf": [
        {
          "required": ["field", "op"],
          "properties": {
            "field": {"type": "string", "minLength": 1},
            "op": {"type": "string", "minLength": 1},
            "value": {}
          },
          "additionalProperties": false
        },
        {
          "required": ["all"],
          "properties": {"all": {"type": "array", "items": {"$ref": "#/$defs/condition"}}},
          "additionalProperties": false
        },
        {
          "required": ["any"],
          "properties": {"any": {"type": "array", "items": {"$ref": "#/$defs/condition"}}},
          "additionalProperties": false
        }
      ]
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://arbiter.schemas.local/ruleset.schema.json"
	if err := c.AddResource(url, strings.NewReader(documentSchema)); err != nil {
		panic(fmt.Sprintf("rules: schema resource load failed: %v", err))
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("rules: schema compile failed: %v", err))
	}
	return schema
}
