package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func newValidator(t *testing.T) *DatasetValidator {
	t.Helper()
	v, err := NewDatasetValidator()
	if err != nil {
		t.Fatalf("NewDatasetValidator: %v", err)
	}
	return v
}

func TestDatasetValidator_Accepts(t *testing.T) {
	t.Parallel()
	v := newValidator(t)

	records, err := v.Validate(json.RawMessage(`[{"city":"Lisbon","visits":12},{"city":"Porto","visits":3}]`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["city"] != "Lisbon" {
		t.Errorf("first record = %v", records[0])
	}
	if n, ok := records[0]["visits"].(json.Number); !ok || n.String() != "12" {
		t.Errorf("numbers must keep their literal form, got %#v", records[0]["visits"])
	}
}

func TestDatasetValidator_Rejects(t *testing.T) {
	t.Parallel()
	v := newValidator(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"empty body", ``},
		{"object instead of array", `{"city":"Lisbon"}`},
		{"string", `"rows"`},
		{"empty array", `[]`},
		{"array of scalars", `[1,2,3]`},
		{"array with empty object", `[{}]`},
		{"mixed items", `[{"a":1},"b"]`},
		{"malformed json", `[{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(json.RawMessage(tt.raw))
			if !errors.Is(err, ErrInvalidDataset) {
				t.Errorf("Validate(%s) error = %v, want ErrInvalidDataset", tt.raw, err)
			}
		})
	}
}

func TestDatasetValidator_MaxRecords(t *testing.T) {
	t.Parallel()
	v := newValidator(t)

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i <= MaxDatasetRecords; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"i":%d}`, i)
	}
	sb.WriteString("]")

	if _, err := v.Validate(json.RawMessage(sb.String())); !errors.Is(err, ErrInvalidDataset) {
		t.Errorf("oversized dataset error = %v, want ErrInvalidDataset", err)
	}
}

func TestDatasetValidator_ErrorNamesLocation(t *testing.T) {
	t.Parallel()
	v := newValidator(t)

	_, err := v.Validate(json.RawMessage(`[{"a":1},"b"]`))
	if err == nil || !strings.Contains(err.Error(), "/1") {
		t.Errorf("error = %v, want location of the offending item", err)
	}
}
