package audit

import (
	"fmt"
	"sort"

	"github.com/iudanet/finkeeper/internal/models"
)

// ChangedFields сравнивает содержательные поля двух версий записи
// и возвращает список изменений в стабильном (отсортированном) порядке.
// Nil-сторона трактуется как отсутствие значения: у create все поля
// "новые", у delete — "старые".
func ChangedFields(before, after *models.Record) []models.FieldChange {
	var beforeFields, afterFields map[string]any
	if before != nil {
		beforeFields = before.ContentFields()
	}
	if after != nil {
		afterFields = after.ContentFields()
	}

	names := make(map[string]struct{})
	for field := range beforeFields {
		names[field] = struct{}{}
	}
	for field := range afterFields {
		names[field] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for field := range names {
		sorted = append(sorted, field)
	}
	sort.Strings(sorted)

	var changes []models.FieldChange
	for _, field := range sorted {
		old := fieldString(beforeFields, field)
		val := fieldString(afterFields, field)
		if old == val {
			continue
		}
		changes = append(changes, models.FieldChange{Field: field, Old: old, New: val})
	}
	return changes
}

func fieldString(fields map[string]any, name string) string {
	if fields == nil {
		return ""
	}
	value, ok := fields[name]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
