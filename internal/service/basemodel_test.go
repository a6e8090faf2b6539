package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const catalogYAML = `
baseModels:
  - id: gemini-flash
    displayName: Gemini Flash
    genericName: gemini-1.5-flash
    description: fast
    isPro: false
    defaultTemperature: 0.7
    defaultTopP: 0.95
  - id: gpt-4o
    genericName: gpt-4o
    isPro: true
    defaultTemperature: 1
    defaultTopP: 1
`

func TestBaseModelService_Seed(t *testing.T) {
	store := newMemStore()
	svc := NewBaseModelService(store, discardLogger())
	ctx := context.Background()

	n, err := svc.Seed(ctx, strings.NewReader(catalogYAML))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	bm, err := svc.Get(ctx, "gpt-4o")
	require.NoError(t, err)
	require.True(t, bm.IsPro)
	require.Equal(t, "gpt-4o", bm.DisplayName)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrBaseModelNotFound)
}

func TestParseBaseModelCatalog_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "baseModels:\n  - genericName: x\n"},
		{"missing generic name", "baseModels:\n  - id: a\n"},
		{"duplicate id", "baseModels:\n  - id: a\n    genericName: x\n  - id: a\n    genericName: y\n"},
		{"temperature out of range", "baseModels:\n  - id: a\n    genericName: x\n    defaultTemperature: 3\n"},
		{"top p out of range", "baseModels:\n  - id: a\n    genericName: x\n    defaultTopP: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBaseModelCatalog(strings.NewReader(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := ParseBaseModelCatalog(strings.NewReader("baseModels:\n  - id: a\n    provider: openai\n"))
	require.Error(t, err, "unknown fields are rejected")
}
