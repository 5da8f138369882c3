package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sophialabs/expectmock/internal/domain/match"
)

// compileSchema compiles a JSON Schema document. Schemas without $schema are
// read as draft 2020-12.
func compileSchema(doc []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("schema.json", bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	return sch, nil
}

// schemaBodyPredicate validates a JSON body. Bodies that are not JSON do not match.
func schemaBodyPredicate(sch *jsonschema.Schema) func([]byte) bool {
	return func(body []byte) bool {
		v, err := decodeJSONValue(body)
		if err != nil {
			return false
		}
		return sch.Validate(v) == nil
	}
}

// scalarSchemaPredicate validates a header, cookie or parameter value. The value
// is read as a JSON number or boolean when it parses as one and as a string otherwise.
func scalarSchemaPredicate(sch *jsonschema.Schema) match.Predicate {
	return func(s string) bool {
		return sch.Validate(scalarValue(s)) == nil
	}
}

func scalarValue(s string) any {
	v, err := decodeJSONValue([]byte(s))
	if err != nil {
		return s
	}
	switch v.(type) {
	case json.Number, bool, nil:
		return v
	}
	return s
}
