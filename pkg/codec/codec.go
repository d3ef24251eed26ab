package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Format names.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var (
	// YAML is the default tape codec.
	YAML tape.Codec = yamlCodec{}
	// JSON stores tapes as indented JSON.
	JSON tape.Codec = jsonCodec{}
)

// ForFormat returns the codec for a format name.
func ForFormat(name string) (tape.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FormatYAML, "yml":
		return YAML, nil
	case FormatJSON:
		return JSON, nil
	default:
		return nil, fmt.Errorf("unknown tape format %q", name)
	}
}

// ForExtension returns the codec for a file extension such as ".json".
func ForExtension(ext string) (tape.Codec, error) {
	return ForFormat(strings.TrimPrefix(ext, "."))
}

type yamlCodec struct{}

func (yamlCodec) Name() string      { return FormatYAML }
func (yamlCodec) Extension() string { return ".yaml" }

func (yamlCodec) Encode(w io.Writer, doc *tape.Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toWire(doc)); err != nil {
		return fmt.Errorf("failed to encode tape: %w", err)
	}
	return enc.Close()
}

func (yamlCodec) Decode(r io.Reader) (*tape.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tape: %w", err)
	}

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse tape: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tape: %w", err)
	}
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse tape: %w", err)
	}

	return decode(generic, func(w *wireDocument) error {
		return yaml.Unmarshal(data, w)
	})
}

type jsonCodec struct{}

func (jsonCodec) Name() string      { return FormatJSON }
func (jsonCodec) Extension() string { return ".json" }

func (jsonCodec) Encode(w io.Writer, doc *tape.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toWire(doc)); err != nil {
		return fmt.Errorf("failed to encode tape: %w", err)
	}
	return nil
}

func (jsonCodec) Decode(r io.Reader) (*tape.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tape: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse tape: %w", err)
	}

	return decode(generic, func(w *wireDocument) error {
		return json.Unmarshal(data, w)
	})
}

// decode validates the generic form, then decodes the typed wire form.
func decode(generic interface{}, unmarshal func(*wireDocument) error) (*tape.Document, error) {
	if err := validate(generic); err != nil {
		return nil, err
	}

	var w wireDocument
	if err := unmarshal(&w); err != nil {
		return nil, fmt.Errorf("failed to parse tape: %w", err)
	}
	if err := checkVersion(w.Version); err != nil {
		return nil, err
	}
	return fromWire(&w)
}
