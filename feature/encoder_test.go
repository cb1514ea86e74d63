package feature

import (
	"testing"

	"github.com/rushteam/imputekit/core"
)

var testCategories = [][]string{
	{"primary_aluminium", "secondary_aluminium"},
	{"recycling", "smelting"},
	{"production", "refining"},
	{"asia", "europe"},
}

func newTestOneHot(t *testing.T, policy UnknownPolicy) *OneHotEncoder {
	t.Helper()
	enc, err := NewOneHotEncoder(core.DescriptorFields(), testCategories, nil, policy)
	if err != nil {
		t.Fatalf("NewOneHotEncoder: %v", err)
	}
	return enc
}

func TestOneHotEncoder_Encode(t *testing.T) {
	enc := newTestOneHot(t, UnknownError)
	desc := core.ProcessDescriptor{Metal: "primary_aluminium", Route: "smelting", Stage: "production", Region: "asia"}

	got, err := enc.Encode(desc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := map[string]float64{
		"metal_primary_aluminium":   1,
		"metal_secondary_aluminium": 0,
		"route_recycling":           0,
		"route_smelting":            1,
		"stage_production":          1,
		"stage_refining":            0,
		"region_asia":               1,
		"region_europe":             0,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d features, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestOneHotEncoder_UnknownCategory(t *testing.T) {
	desc := core.ProcessDescriptor{Metal: "primary_aluminium", Route: "smelting", Stage: "production", Region: "atlantis"}

	tests := []struct {
		name   string
		policy UnknownPolicy
	}{
		{name: "error policy", policy: UnknownError},
		{name: "ignore policy", policy: UnknownIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := newTestOneHot(t, tt.policy)
			got, err := enc.Encode(desc)
			if tt.policy == UnknownError {
				if !core.IsEncodingError(err) {
					t.Fatalf("expected EncodingError, got %v", err)
				}
				de := core.AsDomainError(err)
				if de.Field != "region" || de.Value != "atlantis" {
					t.Errorf("error should name region/atlantis, got %s/%s", de.Field, de.Value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got["region_asia"] != 0 || got["region_europe"] != 0 {
				t.Errorf("unknown region must give an all-zero block, got %v", got)
			}
			if got["metal_primary_aluminium"] != 1 {
				t.Errorf("other fields must still be encoded, got %v", got)
			}
		})
	}
}

func TestOneHotEncoder_Deterministic(t *testing.T) {
	enc := newTestOneHot(t, UnknownIgnore)
	desc := core.ProcessDescriptor{Metal: "secondary_aluminium", Route: "recycling", Stage: "refining", Region: "europe"}
	first, _ := enc.Encode(desc)
	for i := 0; i < 10; i++ {
		again, _ := enc.Encode(desc)
		for k, v := range first {
			if again[k] != v {
				t.Fatalf("encoding changed on call %d: %s %v != %v", i, k, again[k], v)
			}
		}
	}
}

func TestNewOneHotEncoder_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		fields     []string
		categories [][]string
		namesOut   []string
		policy     UnknownPolicy
	}{
		{name: "no fields"},
		{name: "length mismatch", fields: []string{"metal"}, categories: testCategories},
		{name: "unknown field", fields: []string{"alloy"}, categories: [][]string{{"x"}}},
		{name: "empty categories", fields: []string{"metal"}, categories: [][]string{{}}},
		{name: "duplicate category", fields: []string{"metal"}, categories: [][]string{{"x", "x"}}},
		{name: "names count", fields: []string{"metal"}, categories: [][]string{{"x", "y"}}, namesOut: []string{"a"}},
		{name: "ordinal policy", fields: []string{"metal"}, categories: [][]string{{"x"}}, policy: UnknownUseEncodedValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOneHotEncoder(tt.fields, tt.categories, tt.namesOut, tt.policy); !core.IsSchemaError(err) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestOrdinalEncoder(t *testing.T) {
	enc, err := NewOrdinalEncoder(core.DescriptorFields(), testCategories, nil, UnknownUseEncodedValue, -1)
	if err != nil {
		t.Fatalf("NewOrdinalEncoder: %v", err)
	}
	got, err := enc.Encode(core.ProcessDescriptor{Metal: "secondary_aluminium", Route: "smelting", Stage: "production", Region: "atlantis"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := map[string]float64{"metal": 1, "route": 1, "stage": 0, "region": -1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	strict, err := NewOrdinalEncoder(core.DescriptorFields(), testCategories, nil, UnknownError, 0)
	if err != nil {
		t.Fatalf("NewOrdinalEncoder: %v", err)
	}
	if _, err := strict.Encode(core.ProcessDescriptor{Metal: "lead", Route: "smelting", Stage: "production", Region: "asia"}); !core.IsEncodingError(err) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}
