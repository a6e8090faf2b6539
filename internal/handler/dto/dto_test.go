package dto

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(&VerifyOTPRequest{Email: "not-an-email", OTP: "12ab"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	for _, field := range []string{"email", "otp", "hash"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected failure for %q, got %v", field, verr.Fields)
		}
	}
	if verr.Fields["hash"] != "is required" {
		t.Errorf("unexpected hash message: %q", verr.Fields["hash"])
	}
	if !strings.HasPrefix(verr.Error(), "validation failed: email ") {
		t.Errorf("unexpected message: %s", verr.Error())
	}
}

func TestValidate_SamplingBounds(t *testing.T) {
	high := 2.5
	err := Validate(&GenerateRequest{Prompt: "hi", ModelID: "m", Temperature: &high})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Fields["temperature"] != "must be <= 2" {
		t.Errorf("unexpected message: %q", verr.Fields["temperature"])
	}

	zero := 0.0
	if err := Validate(&GenerateRequest{Prompt: "hi", ModelID: "m", Temperature: &zero, TopP: &zero}); err != nil {
		t.Errorf("zero sampling values should be valid: %v", err)
	}
}

func TestValidate_DerivedModelRequiresVisibility(t *testing.T) {
	req := &CreateDerivedModelRequest{
		DisplayName: "Bot",
		Description: "d",
		Category:    "General",
		BaseModel:   "bm",
		Dataset:     []byte(`[{"a":1}]`),
	}

	var verr *ValidationError
	if err := Validate(req); !errors.As(err, &verr) || verr.Fields["isPublic"] == "" {
		t.Fatalf("expected isPublic failure, got %v", err)
	}

	public := false
	req.IsPublic = &public
	if err := Validate(req); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}
