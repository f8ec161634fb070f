package note

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := Payload{
		Type:          TypeAssetCreate,
		Reference:     "pack-123",
		Edition:       3,
		TotalEditions: 10,
		Standards:     []string{"arc2", "arc3"},
	}

	raw, err := Encode("AlgoMart", payload)
	if err != nil {
		t.Fatalf("Encode failed: %s", err)
	}

	if !strings.HasPrefix(string(raw), "AlgoMart:j{") {
		t.Errorf("Unexpected note prefix: %s", raw)
	}

	appID, decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %s", err)
	}
	if appID != "AlgoMart" {
		t.Errorf("Expected app id AlgoMart, got %s", appID)
	}
	if decoded.Type != payload.Type ||
		decoded.Reference != payload.Reference ||
		decoded.Edition != payload.Edition ||
		decoded.TotalEditions != payload.TotalEditions {
		t.Errorf("Decoded payload mismatch: %+v", decoded)
	}
}

func TestEncodeRejectsInvalidAppID(t *testing.T) {
	invalid := []string{
		"",
		"abc",                // too short
		"-leadingdash",       // must start alphanumeric
		"has space inside",   // whitespace not allowed
		"way_too_long_name_that_exceeds_the_thirty_two_character_limit",
	}

	for _, appID := range invalid {
		if _, err := Encode(appID, Payload{Type: TypeAssetCreate}); err == nil {
			t.Errorf("Expected error for app id %q", appID)
		}
	}
}

func TestDecodeRejectsNonJSONFormat(t *testing.T) {
	if _, _, err := Decode([]byte("AlgoMart:uplain text")); err == nil {
		t.Error("Expected error for non-JSON format marker")
	}
	if _, _, err := Decode([]byte("no separator here")); err == nil {
		t.Error("Expected error for missing separator")
	}
}
