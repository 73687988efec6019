package chat

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/ventline/vent-app/pkg/errors"
)

const (
	MaxMessageBytes = 4096 // 4KB max payload size
	MaxTextChars    = 2000 // max character count
)

// ValidateContent checks that message content meets content requirements.
// Whitespace-only content counts as empty.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.ErrEmptyContent
	}
	if len(text) > MaxMessageBytes {
		return apperrors.InvalidArg("message exceeds 4096 byte limit")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return apperrors.InvalidArg("message exceeds 2000 character limit")
	}
	if !utf8.ValidString(text) {
		return apperrors.InvalidArg("message contains invalid UTF-8")
	}
	return nil
}
