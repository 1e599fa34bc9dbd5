package tool

import "testing"

func TestValidateArgs(t *testing.T) {
	t.Parallel()

	schema := Schema{
		"query":       {Type: TypeString, Required: true},
		"max_results": {Type: TypeNumber},
		"exact":       {Type: TypeBool},
	}

	cases := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"all valid", map[string]any{"query": "precedent", "max_results": float64(3), "exact": true}, false},
		{"required only", map[string]any{"query": "precedent"}, false},
		{"missing required", map[string]any{"max_results": float64(3)}, true},
		{"undeclared param", map[string]any{"query": "x", "limit": float64(1)}, true},
		{"wrong string type", map[string]any{"query": 7}, true},
		{"wrong number type", map[string]any{"query": "x", "max_results": "three"}, true},
		{"wrong bool type", map[string]any{"query": "x", "exact": "yes"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArgs(schema, tc.args)
			if tc.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateArgsEmptySchemaAcceptsAnything(t *testing.T) {
	t.Parallel()

	if err := ValidateArgs(nil, map[string]any{"whatever": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
