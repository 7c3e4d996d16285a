package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/finbot/finbot/internal/models"
)

// extractCSV reads a headered CSV. If a "text" column exists, each row
// yields a record from that column alone; otherwise rows are rendered as
// "column: value" lines like generic Excel sheets.
func extractCSV(content []byte, source string) ([]models.Record, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	textCol := -1
	for i, col := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(col), "text") {
			textCol = i
			break
		}
	}

	var records []models.Record
	for _, row := range rows[1:] {
		if textCol >= 0 {
			if textCol >= len(row) {
				continue
			}
			text := strings.TrimSpace(row[textCol])
			if text == "" {
				continue
			}
			records = append(records, models.Record{Content: text, Source: source})
			continue
		}
		var lines []string
		for i, col := range rows[0] {
			if i >= len(row) {
				break
			}
			val := strings.TrimSpace(row[i])
			if val == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(col), val))
		}
		if len(lines) > 0 {
			records = append(records, models.Record{Content: strings.Join(lines, "\n"), Source: source})
		}
	}
	return records, nil
}
