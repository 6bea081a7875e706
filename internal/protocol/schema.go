package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaBase matches the $id of the embedded schemas.
const schemaBase = "https://flowsculpt.ai/schemas/"

var (
	schemasOnce sync.Once
	schemasErr  error
	inputSchema *jsonschema.Schema
	subSchema   *jsonschema.Schema
)

func compileSchemas() {
	compile := func(name string) *jsonschema.Schema {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return nil
		}
		s, err := jsonschema.CompileString(schemaBase+name, string(b))
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", name, err)
			return nil
		}
		return s
	}
	inputSchema = compile("input.schema.json")
	subSchema = compile("subscribe.schema.json")
}

// ValidateInput checks a raw INPUT message against its embedded schema.
func ValidateInput(raw []byte) error { return validate(raw, func() *jsonschema.Schema { return inputSchema }) }

// ValidateSubscribe checks a raw SUBSCRIBE message against its embedded schema.
func ValidateSubscribe(raw []byte) error { return validate(raw, func() *jsonschema.Schema { return subSchema }) }

func validate(raw []byte, pick func() *jsonschema.Schema) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return pick().Validate(v)
}
