package codec

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SupportedVersions is the constraint a document version must satisfy.
const SupportedVersions = "^1"

const schemaURL = "tape.schema.json"

const tapeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "interactions"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "interactions": {
      "type": ["array", "null"],
      "items": {"$ref": "#/$defs/interaction"}
    }
  },
  "$defs": {
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "encoding": {"enum": ["utf8", "base64"]},
    "interaction": {
      "type": "object",
      "required": ["id", "recorded", "request", "response"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "recorded": {"type": "string", "minLength": 1},
        "duration": {"type": "string"},
        "request": {"$ref": "#/$defs/request"},
        "response": {"$ref": "#/$defs/response"}
      }
    },
    "request": {
      "type": "object",
      "required": ["method", "url"],
      "properties": {
        "method": {"type": "string", "minLength": 1},
        "url": {"type": "string", "minLength": 1},
        "headers": {"$ref": "#/$defs/headers"},
        "body": {"type": "string"},
        "bodyEncoding": {"$ref": "#/$defs/encoding"}
      }
    },
    "response": {
      "type": "object",
      "required": ["status"],
      "properties": {
        "status": {"type": "integer", "minimum": 100, "maximum": 999},
        "statusText": {"type": "string"},
        "headers": {"$ref": "#/$defs/headers"},
        "body": {"type": "string"},
        "bodyEncoding": {"$ref": "#/$defs/encoding"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, strings.NewReader(tapeSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validate checks a generic JSON value against the tape schema.
func validate(v interface{}) error {
	schema, err := documentSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid tape document: %w", err)
	}
	return nil
}

// checkVersion rejects documents from an unsupported major format version.
func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid format version %q: %w", version, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported format version %s (want %s)", v, SupportedVersions)
	}
	return nil
}
