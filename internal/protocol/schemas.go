package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// CompileSchemas parses the embedded wire schemas, keyed by message type.
func CompileSchemas() (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, len(knownTypes))
	for name := range knownTypes {
		fname := "schemas/" + name + ".schema.json"
		b, err := schemaFS.ReadFile(fname)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(fname, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(fname)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// Validator checks raw frames against the wire schemas. Used by the
// transport when strict inbound validation is enabled.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	s, err := CompileSchemas()
	if err != nil {
		return nil, err
	}
	return &Validator{schemas: s}, nil
}

func (v *Validator) Validate(msgType string, raw []byte) error {
	s, ok := v.schemas[msgType]
	if !ok {
		return ErrUnknownType
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
