package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wireSchema constrains the JSON wire shape of an event. It is applied at
// trust boundaries (import, sync receive) before unmarshaling; internal
// code paths rely on Validate instead.
const wireSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "epistemicType", "category", "timestamp", "actor"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "epistemicType": {"enum": ["given", "meant", "derived_value"]},
    "category": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string"},
    "actor": {"type": "string", "minLength": 1},
    "grounding": {
      "type": "object",
      "required": ["references"],
      "properties": {
        "references": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["eventId", "kind"],
            "properties": {
              "eventId": {"type": "string", "minLength": 1},
              "kind": {"enum": ["external", "structural", "semantic", "computational", "epistemic"]}
            }
          }
        },
        "derivation": {
          "type": "object",
          "required": ["operator"],
          "properties": {
            "operator": {"type": "string", "minLength": 1},
            "inputs": {"type": "array", "items": {"type": "string"}},
            "params": {"type": "object"}
          }
        }
      }
    },
    "frame": {
      "type": "object",
      "required": ["claim"],
      "properties": {
        "claim": {"type": "string", "minLength": 1},
        "epistemicStatus": {"type": "string"},
        "caveats": {"type": "array", "items": {"type": "string"}},
        "purpose": {"type": "string"}
      }
    },
    "supersession": {
      "type": "object",
      "required": ["supersedes", "type"],
      "properties": {
        "supersedes": {"type": "string", "minLength": 1},
        "type": {"enum": ["correction", "refinement", "retraction", "tombstone"]},
        "reason": {"type": "string"}
      }
    },
    "parents": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "context": {
      "type": "object",
      "properties": {"workspace": {"type": "string"}}
    },
    "logicalClock": {"type": "integer", "minimum": 0}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("event.schema.json", bytes.NewReader([]byte(wireSchema))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("event.schema.json")
	})
	return schema, schemaErr
}

// ValidateWire checks raw JSON against the event wire schema.
func ValidateWire(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("event: compile wire schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("event: wire payload is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("event: wire shape invalid: %w", err)
	}
	return nil
}
