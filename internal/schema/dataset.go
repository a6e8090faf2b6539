// Package schema validates uploaded dataset payloads against a JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxDatasetRecords caps the number of records one dataset may hold.
const MaxDatasetRecords = 10000

// ErrInvalidDataset wraps every dataset validation failure.
var ErrInvalidDataset = errors.New("invalid dataset")

const datasetSchemaID = "inmemory://dataset"

var datasetSchema = fmt.Sprintf(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"minItems": 1,
	"maxItems": %d,
	"items": {
		"type": "object",
		"minProperties": 1
	}
}`, MaxDatasetRecords)

// DatasetValidator checks that a payload is a non-empty array of objects.
type DatasetValidator struct {
	compiled *jsonschema.Schema
}

// NewDatasetValidator compiles the dataset schema.
func NewDatasetValidator() (*DatasetValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(datasetSchemaID, strings.NewReader(datasetSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(datasetSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &DatasetValidator{compiled: compiled}, nil
}

// Validate decodes raw and checks it against the schema. On success it
// returns the records in the shape the repository stores.
func (v *DatasetValidator) Validate(raw json.RawMessage) ([]map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: dataset is required", ErrInvalidDataset)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidDataset, err)
	}

	if err := v.compiled.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataset, describe(err))
	}

	items := payload.([]any)
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		records = append(records, item.(map[string]any))
	}
	return records, nil
}

// describe flattens a validation error into its leaf messages.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
