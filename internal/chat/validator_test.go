package chat

import (
	"strings"
	"testing"

	apperrors "github.com/ventline/vent-app/pkg/errors"
)

func TestValidateContent_Valid(t *testing.T) {
	cases := []string{
		"hello",
		"I just need to get this off my chest",
		"émotions, 日本語, emoji 😞",
		strings.Repeat("a", 2000),
	}
	for _, text := range cases {
		if err := ValidateContent(text); err != nil {
			t.Errorf("ValidateContent(%.20q...) unexpected error: %v", text, err)
		}
	}
}

func TestValidateContent_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		err := ValidateContent(text)
		if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
			t.Errorf("ValidateContent(%q): expected invalid-argument, got %v", text, err)
		}
	}
}

func TestValidateContent_TooManyChars(t *testing.T) {
	// 2001 single-byte runes: over the char limit, under the byte limit.
	text := strings.Repeat("a", MaxTextChars+1)
	if err := ValidateContent(text); err == nil {
		t.Error("expected error for content over the character limit")
	}
}

func TestValidateContent_TooManyBytes(t *testing.T) {
	// Multi-byte runes: under the char limit, over the byte limit.
	text := strings.Repeat("日", 1500) // 4500 bytes, 1500 chars
	if err := ValidateContent(text); err == nil {
		t.Error("expected error for content over the byte limit")
	}
}

func TestValidateContent_InvalidUTF8(t *testing.T) {
	text := "hello \xff\xfe world"
	if err := ValidateContent(text); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateContent_ExactLimits(t *testing.T) {
	if err := ValidateContent(strings.Repeat("a", MaxTextChars)); err != nil {
		t.Errorf("content at exactly the char limit should pass: %v", err)
	}
	// 1024 four-byte runes hit the byte limit exactly but only 1024 chars.
	if err := ValidateContent(strings.Repeat("🙂", MaxMessageBytes/4)); err != nil {
		t.Errorf("content at exactly the byte limit should pass: %v", err)
	}
}
