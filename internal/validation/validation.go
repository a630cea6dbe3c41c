// Package validation checks candidate field values against a declared schema.
package validation

import (
	"strings"

	"github.com/deskflow/orchestrator/internal/domain"
)

// FindMissingRequired returns the required fields of the schema whose value
// is absent, or empty/whitespace-only after string coercion. Deterministic:
// results follow schema field order. Type-specific validation (numeric
// ranges etc.) is not performed here.
func FindMissingRequired(schema *domain.OfferingSchema, values domain.FieldValues) []domain.FieldSpec {
	var missing []domain.FieldSpec
	if schema == nil {
		return missing
	}
	for _, field := range schema.Fields {
		if !field.Required {
			continue
		}
		val, ok := values[field.Name]
		if !ok || strings.TrimSpace(val) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// FieldNames returns the names of the given fields, preserving order.
func FieldNames(fields []domain.FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

// Labels returns the user-facing labels of the given fields, falling back
// to the field name when no label is declared.
func Labels(fields []domain.FieldSpec) []string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Label != "" {
			labels = append(labels, f.Label)
		} else {
			labels = append(labels, f.Name)
		}
	}
	return labels
}
