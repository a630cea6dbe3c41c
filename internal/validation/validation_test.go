package validation

import (
	"testing"

	"github.com/deskflow/orchestrator/internal/domain"
)

func schema(fields ...domain.FieldSpec) *domain.OfferingSchema {
	return &domain.OfferingSchema{OfferingID: "off_1", Fields: fields}
}

func TestFindMissingRequired(t *testing.T) {
	s := schema(
		domain.FieldSpec{Name: "subject", Label: "Subject", Required: true},
		domain.FieldSpec{Name: "category", Label: "Category", Required: true},
		domain.FieldSpec{Name: "notes", Label: "Notes", Required: false},
	)

	cases := []struct {
		name    string
		values  domain.FieldValues
		missing []string
	}{
		{"all absent", domain.FieldValues{}, []string{"subject", "category"}},
		{"one filled", domain.FieldValues{"subject": "laptop"}, []string{"category"}},
		{"whitespace is missing", domain.FieldValues{"subject": "   ", "category": "hw"}, []string{"subject"}},
		{"optional ignored", domain.FieldValues{"subject": "a", "category": "b"}, nil},
		{"extra values ignored", domain.FieldValues{"subject": "a", "category": "b", "bogus": "x"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindMissingRequired(s, tc.values)
			names := FieldNames(got)
			if len(names) != len(tc.missing) {
				t.Fatalf("expected missing %v, got %v", tc.missing, names)
			}
			for i := range names {
				if names[i] != tc.missing[i] {
					t.Fatalf("expected missing %v, got %v", tc.missing, names)
				}
			}
		})
	}
}

func TestFindMissingRequiredDeterministic(t *testing.T) {
	s := schema(
		domain.FieldSpec{Name: "a", Required: true},
		domain.FieldSpec{Name: "b", Required: true},
		domain.FieldSpec{Name: "c", Required: true},
	)
	values := domain.FieldValues{"b": "x"}

	first := FieldNames(FindMissingRequired(s, values))
	for i := 0; i < 10; i++ {
		again := FieldNames(FindMissingRequired(s, values))
		if len(again) != 2 || again[0] != first[0] || again[1] != first[1] {
			t.Fatalf("non-deterministic result: %v vs %v", first, again)
		}
	}
	// Schema order, not map order.
	if first[0] != "a" || first[1] != "c" {
		t.Fatalf("expected [a c], got %v", first)
	}
}

func TestFindMissingRequiredNilSchema(t *testing.T) {
	if got := FindMissingRequired(nil, domain.FieldValues{"x": "y"}); len(got) != 0 {
		t.Fatalf("expected no missing fields for nil schema, got %v", got)
	}
}

func TestLabelsFallBackToName(t *testing.T) {
	fields := []domain.FieldSpec{
		{Name: "subject", Label: "Subject"},
		{Name: "raw_name"},
	}
	labels := Labels(fields)
	if labels[0] != "Subject" || labels[1] != "raw_name" {
		t.Fatalf("unexpected labels: %v", labels)
	}
}
