package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairaflow/connect/internal/core"
)

func TestFieldMappingWithTransformsAndDefaults(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "invoice_map",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "customer.name", TargetField: "client", Transform: "titlecase", Required: true},
			{SourceField: "customer.phone", TargetField: "contact.phone", Transform: "normalize_phone"},
			{SourceField: "total", TargetField: "amount_kobo", Transform: "naira_to_kobo"},
			{SourceField: "currency", TargetField: "currency", Default: "NGN"},
		},
		Rules:           []Rule{{Type: FieldMappingRule}},
		ValidationLevel: ValidationLenient,
	}))

	out := tr.Transform(map[string]any{
		"customer": map[string]any{"name": "adaeze OKAFOR", "phone": "08031234567"},
		"total":    1500.50,
	}, "invoice_map")

	require.True(t, out.Success, "errors: %v", out.Errors)
	data := out.Data.(map[string]any)
	assert.Equal(t, "Adaeze Okafor", data["client"])
	assert.Equal(t, "+2348031234567", getPath(data, "contact.phone"))
	assert.Equal(t, int64(150050), data["amount_kobo"])
	assert.Equal(t, "NGN", data["currency"], "default applied for absent source")
}

func TestRequiredFieldMissingFailsHard(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "strict_map",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "tin", TargetField: "tax_id", Required: true},
		},
		Rules:           []Rule{{Type: FieldMappingRule}},
		ValidationLevel: ValidationModerate,
	}))

	out := tr.Transform(map[string]any{"name": "x"}, "strict_map")
	assert.False(t, out.Success)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "tax_id")
}

func TestValidationLevels(t *testing.T) {
	mapping := FieldMapping{
		SourceField: "email",
		TargetField: "email",
		Validations: []string{"email"},
	}
	input := map[string]any{"email": "not-an-email"}

	for _, tc := range []struct {
		level      ValidationLevel
		success    bool
		hasErrors  bool
		hasWarning bool
	}{
		{ValidationStrict, false, true, false},
		{ValidationModerate, true, true, false},
		{ValidationLenient, true, false, true},
		{ValidationNone, true, false, false},
	} {
		tr := NewTransformer()
		require.NoError(t, tr.RegisterProfile(&Profile{
			ID:              "v",
			SourceFormat:    core.FormatJSON,
			TargetFormat:    core.FormatJSON,
			Mappings:        []FieldMapping{mapping},
			Rules:           []Rule{{Type: FieldMappingRule}},
			ValidationLevel: tc.level,
		}))
		out := tr.Transform(input, "v")
		assert.Equal(t, tc.success, out.Success, "level %d", tc.level)
		assert.Equal(t, tc.hasErrors, len(out.Errors) > 0, "level %d errors", tc.level)
		assert.Equal(t, tc.hasWarning, len(out.Warnings) > 0, "level %d warnings", tc.level)
	}
}

func TestRulePriorityOrdering(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "ordered",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "name", TargetField: "name"},
		},
		Rules: []Rule{
			{Type: ValueTransformation, Priority: 20, Params: map[string]any{"function": "uppercase", "field": "name"}},
			{Type: FieldMappingRule, Priority: 10},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform(map[string]any{"name": "lagos"}, "ordered")
	require.True(t, out.Success)
	assert.Equal(t, []string{"field_mapping", "value_transformation"}, out.AppliedRules)
	assert.Equal(t, "LAGOS", out.Data.(map[string]any)["name"])
}

func TestConditionGatesRule(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "conditional",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Rules: []Rule{
			{Type: ValueTransformation, Condition: "vip", Params: map[string]any{"function": "uppercase", "field": "name"}},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform(map[string]any{"name": "ade", "vip": false}, "conditional")
	require.True(t, out.Success)
	assert.Equal(t, "ade", out.Data.(map[string]any)["name"])
	assert.Empty(t, out.AppliedRules)

	out = tr.Transform(map[string]any{"name": "ade", "vip": true}, "conditional")
	require.True(t, out.Success)
	assert.Equal(t, "ADE", out.Data.(map[string]any)["name"])
}

func TestJSONToXMLAndBack(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "to_xml",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatXML,
		Rules: []Rule{
			{Type: FormatConversion, Params: map[string]any{"target_format": "xml", "root_element": "invoice"}},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform(map[string]any{
		"number": "INV-001",
		"lines":  []any{map[string]any{"desc": "Consulting"}, map[string]any{"desc": "Hosting"}},
	}, "to_xml")
	require.True(t, out.Success, "errors: %v", out.Errors)
	xmlText := out.Data.(string)
	assert.True(t, strings.HasPrefix(xmlText, "<invoice>"))
	assert.Contains(t, xmlText, "<number>INV-001</number>")
	assert.Equal(t, 2, strings.Count(xmlText, "<item>"), "list members become item elements")

	// Round back through the XML decoder.
	decoded, err := xmlToMap([]byte(xmlText))
	require.NoError(t, err)
	assert.Equal(t, "INV-001", decoded["number"])
	lines := decoded["lines"].(map[string]any)["item"].([]any)
	assert.Len(t, lines, 2)
}

func TestJSONToCSVAndBack(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "to_csv",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatCSV,
		Rules: []Rule{
			{Type: FormatConversion, Params: map[string]any{"target_format": "csv", "headers": true}},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform([]any{
		map[string]any{"amount": 100, "name": "a"},
		map[string]any{"amount": 200, "name": "b"},
	}, "to_csv")
	require.True(t, out.Success, "errors: %v", out.Errors)
	csvText := out.Data.(string)
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "amount,name", lines[0], "columns sorted")
	assert.Equal(t, "100,a", lines[1])

	records, err := csvToRecords([]byte(csvText), ',')
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "200", records[1].(map[string]any)["amount"])
}

func TestEnrichment(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "enrich",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Rules: []Rule{
			{Type: DataEnrichment, Priority: 1, Params: map[string]any{"operation": "add_uuid", "target_field": "ref"}},
			{Type: DataEnrichment, Priority: 2, Params: map[string]any{"operation": "add_timestamp", "target_field": "created_at"}},
			{Type: DataEnrichment, Priority: 3, Params: map[string]any{
				"operation": "calculate_field", "target_field": "total",
				"formula": "sum", "fields": []any{"subtotal", "vat"},
			}},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform(map[string]any{"subtotal": 1000.0, "vat": 75.0}, "enrich")
	require.True(t, out.Success, "errors: %v", out.Errors)
	data := out.Data.(map[string]any)
	assert.Len(t, data["ref"], 36)
	assert.NotEmpty(t, data["created_at"])
	assert.Equal(t, 1075.0, data["total"])
}

func TestFilteringListAndFields(t *testing.T) {
	tr := NewTransformer()
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "filter_list",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Rules: []Rule{
			{Type: DataFiltering, Params: map[string]any{"field": "amount", "operator": "gt", "value": 100}},
		},
		ValidationLevel: ValidationNone,
	}))

	out := tr.Transform([]any{
		map[string]any{"amount": 50.0},
		map[string]any{"amount": 150.0},
		map[string]any{"amount": 300.0},
	}, "filter_list")
	require.True(t, out.Success)
	assert.Len(t, out.Data, 2)

	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "filter_fields",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Rules: []Rule{
			{Type: DataFiltering, Params: map[string]any{"remove_fields": []any{"secret", "auth.token"}}},
		},
		ValidationLevel: ValidationNone,
	}))

	out = tr.Transform(map[string]any{
		"name":   "ok",
		"secret": "x",
		"auth":   map[string]any{"token": "y", "scheme": "basic"},
	}, "filter_fields")
	require.True(t, out.Success)
	data := out.Data.(map[string]any)
	assert.NotContains(t, data, "secret")
	assert.NotContains(t, data["auth"].(map[string]any), "token")
	assert.Equal(t, "basic", getPath(data, "auth.scheme"))
}

func TestAggregation(t *testing.T) {
	tr := NewTransformer()
	list := []any{
		map[string]any{"amount": 100.0, "status": "paid"},
		map[string]any{"amount": 250.0, "status": "paid"},
		map[string]any{"amount": 40.0, "status": "pending"},
	}

	for _, tc := range []struct {
		op     string
		verify func(t *testing.T, data any)
	}{
		{"count", func(t *testing.T, data any) {
			assert.Equal(t, 3, data.(map[string]any)["count"])
		}},
		{"sum", func(t *testing.T, data any) {
			assert.Equal(t, 390.0, data.(map[string]any)["sum"])
		}},
		{"group_by", func(t *testing.T, data any) {
			groups := data.(map[string]any)
			assert.Len(t, groups["paid"], 2)
			assert.Len(t, groups["pending"], 1)
		}},
	} {
		field := "amount"
		if tc.op == "group_by" {
			field = "status"
		}
		require.NoError(t, tr.RegisterProfile(&Profile{
			ID:           "agg_" + tc.op,
			SourceFormat: core.FormatJSON,
			TargetFormat: core.FormatJSON,
			Rules: []Rule{
				{Type: DataAggregation, Params: map[string]any{"operation": tc.op, "field": field}},
			},
			ValidationLevel: ValidationNone,
		}))
		out := tr.Transform(list, "agg_"+tc.op)
		require.True(t, out.Success, "op %s: %v", tc.op, out.Errors)
		tc.verify(t, out.Data)
	}
}

func TestNormalizePhoneForms(t *testing.T) {
	for raw, want := range map[string]string{
		"08031234567":      "+2348031234567",
		"8031234567":       "+2348031234567",
		"+234 803 123 4567": "+2348031234567",
		"0803-123-4567":    "+2348031234567",
	} {
		got, err := normalizePhone(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := normalizePhone("12345")
	assert.Error(t, err)
}

func TestBuiltinValidations(t *testing.T) {
	v := builtinValidations()

	assert.NoError(t, v["email"]("ade@example.com", ""))
	assert.Error(t, v["email"]("nope", ""))
	assert.NoError(t, v["phone"]("+2348031234567", ""))
	assert.Error(t, v["phone"]("+15551234567", ""))
	assert.NoError(t, v["min_length"]("abcdef", "3"))
	assert.Error(t, v["min_length"]("ab", "3"))
	assert.NoError(t, v["in"]("NGN", "NGN|USD|GBP"))
	assert.Error(t, v["in"]("EUR", "NGN|USD|GBP"))
	assert.NoError(t, v["range"](7.5, "0..100"))
	assert.Error(t, v["range"](250, "0..100"))
	assert.NoError(t, v["date"]("2025-06-01", ""))
	assert.NoError(t, v["date"]("2025-06-01T10:00:00Z", ""))
	assert.Error(t, v["date"]("June first", ""))
	assert.NoError(t, v["url"]("https://api.paystack.co", ""))
	assert.Error(t, v["url"]("not a url", ""))
}

func TestUnknownProfileRejected(t *testing.T) {
	tr := NewTransformer()
	out := tr.Transform(map[string]any{}, "missing")
	assert.False(t, out.Success)
	assert.Contains(t, out.Errors[0], "missing")
}

func TestRegisterProfileClosedRecord(t *testing.T) {
	tr := NewTransformer()

	// Unregistered transform names are rejected at registration.
	err := tr.RegisterProfile(&Profile{
		ID:           "bad_fn",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "a", TargetField: "a", Transform: "no_such_fn"},
		},
		Rules: []Rule{{Type: FieldMappingRule}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_fn")
	assert.Equal(t, core.KindConfig, core.KindOf(err))

	// So are rule types outside the enumeration.
	err = tr.RegisterProfile(&Profile{
		ID:           "bad_rule",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Rules:        []Rule{{Type: RuleType(42)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule type")

	// And unknown validation names.
	err = tr.RegisterProfile(&Profile{
		ID:           "bad_validation",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "a", TargetField: "a", Validations: []string{"no_such_check:3"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_check")

	// Registering the transform first makes the same profile valid.
	tr.RegisterTransform("no_such_fn", func(v any, _ map[string]any) (any, error) { return v, nil })
	require.NoError(t, tr.RegisterProfile(&Profile{
		ID:           "good_fn",
		SourceFormat: core.FormatJSON,
		TargetFormat: core.FormatJSON,
		Mappings: []FieldMapping{
			{SourceField: "a", TargetField: "a", Transform: "no_such_fn"},
		},
		Rules: []Rule{{Type: FieldMappingRule}},
	}))
}
