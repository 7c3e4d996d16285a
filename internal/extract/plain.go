package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/finbot/finbot/internal/models"
)

// extractPlain returns the whole file as one record, validating it is valid
// UTF-8. Invalid sequences are replaced with the replacement character.
func extractPlain(content []byte, source string) ([]models.Record, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}
	return []models.Record{{Content: text, Source: source}}, nil
}
