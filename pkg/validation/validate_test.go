package validation

import (
	"strings"
	"testing"
)

func TestValidateSendDefaults(t *testing.T) {
	SetRules(DefaultRules())

	if err := ValidateSend("text", "hello"); err != nil {
		t.Fatalf("plain text rejected: %v", err)
	}
	// empty type means text
	if err := ValidateSend("", "hello"); err != nil {
		t.Fatalf("empty type rejected: %v", err)
	}
	if err := ValidateSend("image", "https://cdn.example.com/x.png"); err != nil {
		t.Fatalf("image rejected: %v", err)
	}
}

func TestValidateSendRejects(t *testing.T) {
	SetRules(DefaultRules())

	if err := ValidateSend("text", ""); err == nil {
		t.Fatalf("empty content accepted")
	}
	if err := ValidateSend("text", "   "); err == nil {
		t.Fatalf("whitespace content accepted")
	}
	if err := ValidateSend("carrier-pigeon", "hello"); err == nil {
		t.Fatalf("unknown type accepted")
	}
	if err := ValidateSend("text", strings.Repeat("a", 9000)); err == nil {
		t.Fatalf("oversized content accepted")
	}
}

func TestSetRulesCustom(t *testing.T) {
	SetRules(Rules{MaxContentLen: 5, AllowedTypes: []string{"text"}})
	defer SetRules(DefaultRules())

	if err := ValidateSend("text", "12345"); err != nil {
		t.Fatalf("content at limit rejected: %v", err)
	}
	if err := ValidateSend("text", "123456"); err == nil {
		t.Fatalf("content over limit accepted")
	}
	if err := ValidateSend("image", "x"); err == nil {
		t.Fatalf("type outside custom list accepted")
	}
}

func TestSetRulesZeroValuesFallBack(t *testing.T) {
	SetRules(Rules{})
	defer SetRules(DefaultRules())

	if err := ValidateSend("text", "hello"); err != nil {
		t.Fatalf("defaults not applied: %v", err)
	}
}
