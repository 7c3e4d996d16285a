package extract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/finbot/finbot/internal/models"
)

// qaDocument is the curated FAQ format: categories, each holding QA pairs.
type qaDocument struct {
	Categories []struct {
		Category  string `json:"category"`
		Questions []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"questions"`
	} `json:"categories"`
}

// extractJSON handles two shapes. The curated FAQ format (a top-level
// "categories" array) yields one record per QA pair with the pair kept as
// metadata. Anything else is flattened into "key: value" leaf records.
func extractJSON(content []byte, source string) ([]models.Record, error) {
	var doc qaDocument
	if err := json.Unmarshal(content, &doc); err == nil && len(doc.Categories) > 0 {
		var records []models.Record
		for _, cat := range doc.Categories {
			category := cat.Category
			if category == "" {
				category = "Uncategorized"
			}
			for _, qa := range cat.Questions {
				if qa.Question == "" || qa.Answer == "" {
					continue
				}
				records = append(records, models.Record{
					Content:  fmt.Sprintf("Question: %s\nAnswer: %s", qa.Question, qa.Answer),
					Category: category,
					Question: qa.Question,
					Answer:   qa.Answer,
					Source:   source,
				})
			}
		}
		return records, nil
	}

	var generic any
	if err := json.Unmarshal(content, &generic); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	var records []models.Record
	flattenJSON(generic, "", func(line string) {
		records = append(records, models.Record{Content: line, Source: source})
	})
	return records, nil
}

// flattenJSON walks the value depth-first and emits one "key.path: value"
// line per leaf. Map keys are visited in sorted order so output is stable.
func flattenJSON(v any, parentKey string, emit func(string)) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if parentKey != "" {
				key = parentKey + "." + k
			}
			flattenJSON(val[k], key, emit)
		}
	case []any:
		for _, item := range val {
			flattenJSON(item, parentKey, emit)
		}
	default:
		emit(fmt.Sprintf("%s: %v", parentKey, val))
	}
}
