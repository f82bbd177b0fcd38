package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// planSchema gates plan payloads submitted over the API before they
// reach the typed decoder. Structural checks only; the plan's own
// Validate covers the semantic rules.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["target"],
  "properties": {
    "target": {"$ref": "#/definitions/target"},
    "health": {"$ref": "#/definitions/target"},
    "healthCheckSeconds": {"type": "integer", "minimum": 0},
    "escalation": {
      "type": "object",
      "properties": {
        "levels": {
          "type": "array",
          "items": {"type": "integer", "minimum": 1}
        },
        "stepSeconds": {"type": "integer", "minimum": 1},
        "settleSeconds": {"type": "integer", "minimum": 0}
      }
    },
    "endurance": {
      "type": "object",
      "properties": {
        "durationSeconds": {"type": "integer", "minimum": 1},
        "capacityFraction": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "spike": {
      "type": "object",
      "properties": {
        "phaseSeconds": {"type": "integer", "minimum": 1},
        "pauseSeconds": {"type": "integer", "minimum": 0},
        "normalFraction": {"type": "number", "exclusiveMinimum": 0},
        "spikeFraction": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "resourceDefaults": {
      "type": "object",
      "properties": {
        "memoryLeak": {"type": "boolean"},
        "memoryGrowthPct": {"type": "number"},
        "memoryPerUserMB": {"type": "number", "minimum": 0},
        "cpuPerUserPct": {"type": "number", "minimum": 0}
      }
    }
  },
  "definitions": {
    "target": {
      "type": "object",
      "required": ["url"],
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "method": {"type": "string"},
        "headers": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        },
        "body": {"type": "string"}
      }
    }
  }
}`

// ValidatePlanJSON checks a raw plan payload against the schema.
func ValidatePlanJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(planSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, err := range result.Errors() {
			errs = append(errs, err.String())
		}
		return fmt.Errorf("invalid plan: %s", strings.Join(errs, "; "))
	}
	return nil
}
