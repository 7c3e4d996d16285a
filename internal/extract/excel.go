package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/finbot/finbot/internal/models"
)

// extractExcel processes every sheet in the workbook. Sheets with question
// and answer columns yield QA records; sheets with product and description
// columns yield product records; anything else falls back to one record per
// row with "column: value" lines.
func extractExcel(content []byte, source string) ([]models.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var records []models.Record
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		header := make(map[string]int, len(rows[0]))
		for i, col := range rows[0] {
			header[strings.ToLower(strings.TrimSpace(col))] = i
		}

		switch {
		case hasColumns(header, "question", "answer"):
			records = append(records, qaRows(rows[1:], header, sheet, source)...)
		case hasColumns(header, "product", "description"):
			records = append(records, productRows(rows[1:], header, sheet, source)...)
		default:
			records = append(records, genericRows(rows[1:], rows[0], sheet, source)...)
		}
	}
	return records, nil
}

func hasColumns(header map[string]int, names ...string) bool {
	for _, name := range names {
		if _, ok := header[name]; !ok {
			return false
		}
	}
	return true
}

func cell(row []string, header map[string]int, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func qaRows(rows [][]string, header map[string]int, sheet, source string) []models.Record {
	var records []models.Record
	for _, row := range rows {
		question := cell(row, header, "question")
		answer := cell(row, header, "answer")
		if question == "" || answer == "" {
			continue
		}
		category := cell(row, header, "category")
		if category == "" {
			category = sheet
		}
		records = append(records, models.Record{
			Content:   fmt.Sprintf("Question: %s\nAnswer: %s", question, answer),
			Category:  category,
			Question:  question,
			Answer:    answer,
			Source:    source,
			SheetName: sheet,
		})
	}
	return records
}

func productRows(rows [][]string, header map[string]int, sheet, source string) []models.Record {
	var records []models.Record
	for _, row := range rows {
		product := cell(row, header, "product")
		description := cell(row, header, "description")
		features := cell(row, header, "features")
		if product == "" || (description == "" && features == "") {
			continue
		}
		var buf strings.Builder
		fmt.Fprintf(&buf, "Product: %s\n", product)
		if description != "" {
			fmt.Fprintf(&buf, "Description: %s\n", description)
		}
		if features != "" {
			fmt.Fprintf(&buf, "Features: %s", features)
		}
		records = append(records, models.Record{
			Content:   strings.TrimSpace(buf.String()),
			Category:  sheet,
			Source:    source,
			SheetName: sheet,
		})
	}
	return records
}

func genericRows(rows [][]string, headerRow []string, sheet, source string) []models.Record {
	var records []models.Record
	for _, row := range rows {
		var lines []string
		for i, col := range headerRow {
			if i >= len(row) {
				break
			}
			val := strings.TrimSpace(row[i])
			if val == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(col), val))
		}
		if len(lines) == 0 {
			continue
		}
		records = append(records, models.Record{
			Content:   strings.Join(lines, "\n"),
			Category:  sheet,
			Source:    source,
			SheetName: sheet,
		})
	}
	return records
}
