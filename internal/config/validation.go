package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema is the JSON Schema a loaded Config must satisfy, on top
// of the structural checks Config.Validate already does in Go. It
// catches malformed operator-supplied TOML (wrong types, out-of-range
// values) before the manager ever sees it.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "sources", "policy"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "sources": {
      "type": "object",
      "properties": {
        "jitter": {"type": "boolean"},
        "interrupt": {"type": "boolean"},
        "scheduler": {"type": "boolean"},
        "kernel": {"type": "boolean"},
        "tpm": {"type": "boolean"},
        "tpm_device": {"type": "string"},
        "aux": {"type": "boolean"}
      }
    },
    "policy": {
      "type": "object",
      "required": ["min_seed_entropy_bits", "full_seed_entropy_bits"],
      "properties": {
        "security_strength_bits": {"type": "integer", "minimum": 1},
        "sp800_90c_compliant": {"type": "boolean"},
        "seed_buffer_init_add_bits": {"type": "integer", "minimum": 0},
        "oversampling_ratio_num": {"type": "integer", "minimum": 1},
        "oversampling_ratio_den": {"type": "integer", "minimum": 1},
        "min_seed_entropy_bits": {"type": "integer", "minimum": 1},
        "init_entropy_bits": {"type": "integer", "minimum": 0},
        "full_seed_entropy_bits": {"type": "integer", "minimum": 1},
        "digest_size_bits": {"type": "integer", "minimum": 8}
      }
    },
    "monitor": {
      "type": "object",
      "properties": {
        "duration_sec": {"type": "integer", "minimum": 1},
        "quantum_ms": {"type": "integer", "minimum": 1}
      }
    },
    "status": {
      "type": "object",
      "properties": {
        "metrics_addr": {"type": "string"},
        "health_addr": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["json", "text"]},
        "output": {"type": "string"},
        "file_path": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.json", bytes.NewReader([]byte(configSchema))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("config.json")
	})
	return schema, schemaErr
}

// ValidateSchema round-trips c through encoding/json and checks it
// against configSchema, catching structural mistakes Config.Validate's
// hand-written checks don't cover.
func ValidateSchema(c *Config) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal for validation: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: unmarshal for validation: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
