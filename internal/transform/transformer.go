// Package transform converts payloads between formats and shapes under
// profile control: ordered field mappings plus ordered transformation rules
// covering conversion, mapping, validation, enrichment, filtering and
// aggregation.
package transform

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// RuleType enumerates the transformation rule kinds, applied in priority
// order.
type RuleType int

const (
	FormatConversion RuleType = iota
	FieldMappingRule
	ValueTransformation
	DataValidation
	DataEnrichment
	DataFiltering
	DataAggregation
)

func (r RuleType) String() string {
	switch r {
	case FormatConversion:
		return "format_conversion"
	case FieldMappingRule:
		return "field_mapping"
	case ValueTransformation:
		return "value_transformation"
	case DataValidation:
		return "data_validation"
	case DataEnrichment:
		return "data_enrichment"
	case DataFiltering:
		return "data_filtering"
	default:
		return "data_aggregation"
	}
}

// ValidationLevel governs how validation failures are treated.
type ValidationLevel int

const (
	ValidationStrict ValidationLevel = iota
	ValidationModerate
	ValidationLenient
	ValidationNone
)

// FieldMapping moves one field from source to target, optionally through a
// named transform, with a default and validation rules.
type FieldMapping struct {
	SourceField string         `json:"source_field"`
	TargetField string         `json:"target_field"`
	Transform   string         `json:"transform,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Default     any            `json:"default,omitempty"`
	Required    bool           `json:"required"`
	Validations []string       `json:"validations,omitempty"`
}

// Rule is one ordered transformation step.
type Rule struct {
	Type RuleType `json:"type"`
	// Condition is a dot path into the working record; the rule applies
	// only when the path resolves to a truthy value. Empty always applies.
	Condition string         `json:"condition,omitempty"`
	Priority  int            `json:"priority"`
	Params    map[string]any `json:"params,omitempty"`
}

// Profile is a closed transformation recipe.
type Profile struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	SourceFormat    core.DataFormat `json:"source_format"`
	TargetFormat    core.DataFormat `json:"target_format"`
	Mappings        []FieldMapping  `json:"mappings"`
	Rules           []Rule          `json:"rules"`
	ValidationLevel ValidationLevel `json:"validation_level"`
}

// Result reports one transformation run.
type Result struct {
	Success      bool     `json:"success"`
	Data         any      `json:"data"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	AppliedRules []string `json:"applied_rules,omitempty"`
	Ms           float64  `json:"ms"`
}

// TransformFunc mutates one value; params come from the mapping or rule.
type TransformFunc func(value any, params map[string]any) (any, error)

// ValidateFunc checks one value against a rule spec like "min_length:3".
type ValidateFunc func(value any, arg string) error

// Transformer owns profiles and the function registries.
type Transformer struct {
	mu          sync.RWMutex
	profiles    map[string]*Profile
	transforms  map[string]TransformFunc
	validations map[string]ValidateFunc
	logger      *log.Logger
	now         func() time.Time
}

// NewTransformer builds a transformer with the built-in function registries.
func NewTransformer() *Transformer {
	t := &Transformer{
		profiles:    make(map[string]*Profile),
		transforms:  builtinTransforms(),
		validations: builtinValidations(),
		logger:      log.New(log.Writer(), "[TRANSFORM] ", log.LstdFlags),
		now:         time.Now,
	}
	return t
}

// RegisterProfile adds or replaces a profile. Profiles are closed records:
// rule types outside the enumeration and references to unregistered
// transforms or validations are rejected here, not at transform time.
func (t *Transformer) RegisterProfile(p *Profile) error {
	if p.ID == "" {
		return core.NewError(core.KindConfig, "transform.profile", "profile id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, rule := range p.Rules {
		if rule.Type < FormatConversion || rule.Type > DataAggregation {
			return core.NewError(core.KindConfig, "transform.profile",
				fmt.Sprintf("profile %s rule %d: unknown rule type %d", p.ID, i, rule.Type))
		}
	}
	for _, m := range p.Mappings {
		if m.Transform != "" {
			if _, ok := t.transforms[m.Transform]; !ok {
				return core.NewError(core.KindConfig, "transform.profile",
					fmt.Sprintf("profile %s field %s: unknown transform %q", p.ID, m.SourceField, m.Transform))
			}
		}
		for _, v := range m.Validations {
			name, _ := splitValidation(v)
			if _, ok := t.validations[name]; !ok {
				return core.NewError(core.KindConfig, "transform.profile",
					fmt.Sprintf("profile %s field %s: unknown validation %q", p.ID, m.SourceField, name))
			}
		}
	}

	t.profiles[p.ID] = p
	return nil
}

// RegisterTransform adds a custom transform function.
func (t *Transformer) RegisterTransform(name string, f TransformFunc) {
	t.mu.Lock()
	t.transforms[name] = f
	t.mu.Unlock()
}

// Transform runs the profile against the data.
func (t *Transformer) Transform(data any, profileID string) *Result {
	start := t.now()
	out := &Result{Data: data}

	t.mu.RLock()
	p, ok := t.profiles[profileID]
	t.mu.RUnlock()
	if !ok {
		out.Errors = append(out.Errors, fmt.Sprintf("unknown profile %s", profileID))
		out.Ms = msSince(start, t.now)
		return out
	}

	// Incoming non-JSON payloads are decoded into generic values first.
	working, err := decodeFormat(data, p.SourceFormat)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
		out.Ms = msSince(start, t.now)
		return out
	}

	rules := make([]Rule, len(p.Rules))
	copy(rules, p.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	for _, rule := range rules {
		if !t.conditionHolds(rule.Condition, working) {
			continue
		}
		working, err = t.applyRule(rule, p, working, out)
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			out.Data = working
			out.Ms = msSince(start, t.now)
			return out
		}
		out.AppliedRules = append(out.AppliedRules, rule.Type.String())
	}

	// Implicit target encoding when the profile changes format and no
	// explicit conversion rule ran.
	if p.TargetFormat != p.SourceFormat && !contains(out.AppliedRules, FormatConversion.String()) {
		encoded, err := encodeFormat(working, p.TargetFormat, nil)
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			out.Ms = msSince(start, t.now)
			return out
		}
		working = encoded
	}

	out.Success = true
	out.Data = working
	out.Ms = msSince(start, t.now)
	return out
}

func (t *Transformer) applyRule(rule Rule, p *Profile, working any, out *Result) (any, error) {
	switch rule.Type {
	case FormatConversion:
		target := formatFromParam(rule.Params["target_format"], p.TargetFormat)
		return encodeFormat(working, target, rule.Params)
	case FieldMappingRule:
		return t.applyMappings(p, working, out)
	case ValueTransformation:
		return t.applyValueTransform(rule, working)
	case DataValidation:
		return working, t.applyValidation(p, working, out)
	case DataEnrichment:
		return t.applyEnrichment(rule, working)
	case DataFiltering:
		return applyFiltering(rule, working)
	case DataAggregation:
		return applyAggregation(rule, working)
	}
	return working, core.NewError(core.KindConfig, "transform.rule",
		fmt.Sprintf("unknown rule type %d", rule.Type))
}

// ============================================================================
// FIELD MAPPING
// ============================================================================

func (t *Transformer) applyMappings(p *Profile, working any, out *Result) (any, error) {
	record, ok := working.(map[string]any)
	if !ok {
		return working, core.NewError(core.KindValidation, "transform.mapping", "field mapping requires a map payload")
	}

	target := map[string]any{}
	for _, m := range p.Mappings {
		value := getPath(record, m.SourceField)

		if m.Transform != "" && value != nil {
			t.mu.RLock()
			f, ok := t.transforms[m.Transform]
			t.mu.RUnlock()
			if !ok {
				return working, core.NewError(core.KindConfig, "transform.mapping",
					fmt.Sprintf("unknown transform %q", m.Transform))
			}
			transformed, err := f(value, m.Params)
			if err != nil {
				if m.Required {
					return working, core.NewError(core.KindValidation, "transform.mapping",
						fmt.Sprintf("field %s: %v", m.SourceField, err))
				}
				out.Warnings = append(out.Warnings, fmt.Sprintf("field %s: %v", m.SourceField, err))
				transformed = nil
			}
			value = transformed
		}

		if value == nil && m.Default != nil {
			value = m.Default
		}

		if err := t.validateField(m, value, p.ValidationLevel, out); err != nil {
			return working, err
		}
		if value != nil {
			setPath(target, m.TargetField, value)
		}
	}
	return target, nil
}

func (t *Transformer) validateField(m FieldMapping, value any, level ValidationLevel, out *Result) error {
	if level == ValidationNone {
		return nil
	}
	var failures []string
	if m.Required && value == nil {
		failures = append(failures, fmt.Sprintf("field %s is required", m.TargetField))
	}
	if value != nil {
		for _, spec := range m.Validations {
			name, arg := splitValidation(spec)
			t.mu.RLock()
			v, ok := t.validations[name]
			t.mu.RUnlock()
			if !ok {
				failures = append(failures, fmt.Sprintf("unknown validation %q", name))
				continue
			}
			if err := v(value, arg); err != nil {
				failures = append(failures, fmt.Sprintf("field %s: %v", m.TargetField, err))
			}
		}
	}
	if len(failures) == 0 {
		return nil
	}

	hard := level == ValidationStrict || (m.Required && value == nil)
	if hard {
		return core.NewError(core.KindValidation, "transform.validate", strings.Join(failures, "; "))
	}
	if level == ValidationModerate {
		out.Errors = append(out.Errors, failures...)
	} else {
		out.Warnings = append(out.Warnings, failures...)
	}
	return nil
}

func (t *Transformer) applyValidation(p *Profile, working any, out *Result) error {
	record, ok := working.(map[string]any)
	if !ok {
		return nil
	}
	for _, m := range p.Mappings {
		value := getPath(record, m.TargetField)
		if value == nil {
			value = getPath(record, m.SourceField)
		}
		if err := t.validateField(m, value, p.ValidationLevel, out); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// VALUE TRANSFORMATION + ENRICHMENT
// ============================================================================

func (t *Transformer) applyValueTransform(rule Rule, working any) (any, error) {
	name, _ := rule.Params["function"].(string)
	t.mu.RLock()
	f, ok := t.transforms[name]
	t.mu.RUnlock()
	if !ok {
		return working, core.NewError(core.KindConfig, "transform.value",
			fmt.Sprintf("unknown transform %q", name))
	}

	field, _ := rule.Params["field"].(string)
	if field == "" {
		return f(working, rule.Params)
	}
	record, ok := working.(map[string]any)
	if !ok {
		return working, core.NewError(core.KindValidation, "transform.value", "field transform requires a map payload")
	}
	value := getPath(record, field)
	if value == nil {
		return working, nil
	}
	transformed, err := f(value, rule.Params)
	if err != nil {
		return working, err
	}
	setPath(record, field, transformed)
	return record, nil
}

func (t *Transformer) applyEnrichment(rule Rule, working any) (any, error) {
	record, ok := working.(map[string]any)
	if !ok {
		return working, core.NewError(core.KindValidation, "transform.enrich", "enrichment requires a map payload")
	}
	op, _ := rule.Params["operation"].(string)
	targetField, _ := rule.Params["target_field"].(string)

	switch op {
	case "add_timestamp":
		if targetField == "" {
			targetField = "timestamp"
		}
		setPath(record, targetField, t.now().UTC().Format(time.RFC3339))
	case "add_uuid":
		if targetField == "" {
			targetField = "id"
		}
		setPath(record, targetField, newUUID())
	case "calculate_field":
		if targetField == "" {
			return working, core.NewError(core.KindConfig, "transform.enrich", "calculate_field requires target_field")
		}
		value, err := evaluateFormula(rule.Params, record)
		if err != nil {
			return working, err
		}
		setPath(record, targetField, value)
	default:
		return working, core.NewError(core.KindConfig, "transform.enrich",
			fmt.Sprintf("unknown enrichment operation %q", op))
	}
	return record, nil
}

// evaluateFormula computes sum, multiply or concat over the named fields.
func evaluateFormula(params map[string]any, record map[string]any) (any, error) {
	formula, _ := params["formula"].(string)
	fields := stringSlice(params["fields"])
	switch formula {
	case "sum":
		total := 0.0
		for _, f := range fields {
			n, err := toFloat(getPath(record, f))
			if err != nil {
				return nil, core.NewError(core.KindValidation, "transform.enrich",
					fmt.Sprintf("field %s is not numeric", f))
			}
			total += n
		}
		return total, nil
	case "multiply":
		total := 1.0
		for _, f := range fields {
			n, err := toFloat(getPath(record, f))
			if err != nil {
				return nil, core.NewError(core.KindValidation, "transform.enrich",
					fmt.Sprintf("field %s is not numeric", f))
			}
			total *= n
		}
		return total, nil
	case "concat":
		sep, _ := params["separator"].(string)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%v", getPath(record, f)))
		}
		return strings.Join(parts, sep), nil
	}
	return nil, core.NewError(core.KindConfig, "transform.enrich",
		fmt.Sprintf("unknown formula %q", formula))
}

// ============================================================================
// FILTERING + AGGREGATION
// ============================================================================

func applyFiltering(rule Rule, working any) (any, error) {
	if remove := stringSlice(rule.Params["remove_fields"]); len(remove) > 0 {
		record, ok := working.(map[string]any)
		if !ok {
			return working, core.NewError(core.KindValidation, "transform.filter", "remove_fields requires a map payload")
		}
		for _, f := range remove {
			deletePath(record, f)
		}
		return record, nil
	}

	list, ok := working.([]any)
	if !ok {
		return working, core.NewError(core.KindValidation, "transform.filter", "list filtering requires a list payload")
	}
	field, _ := rule.Params["field"].(string)
	operator, _ := rule.Params["operator"].(string)
	want := rule.Params["value"]

	kept := make([]any, 0, len(list))
	for _, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if compareValues(getPath(record, field), operator, want) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func applyAggregation(rule Rule, working any) (any, error) {
	list, ok := working.([]any)
	if !ok {
		return working, core.NewError(core.KindValidation, "transform.aggregate", "aggregation requires a list payload")
	}
	op, _ := rule.Params["operation"].(string)
	field, _ := rule.Params["field"].(string)

	switch op {
	case "count":
		return map[string]any{"count": len(list)}, nil
	case "sum":
		total := 0.0
		for _, item := range list {
			if record, ok := item.(map[string]any); ok {
				if n, err := toFloat(getPath(record, field)); err == nil {
					total += n
				}
			}
		}
		return map[string]any{"sum": total, "field": field}, nil
	case "group_by":
		groups := map[string]any{}
		for _, item := range list {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key := fmt.Sprintf("%v", getPath(record, field))
			bucket, _ := groups[key].([]any)
			groups[key] = append(bucket, item)
		}
		return groups, nil
	}
	return working, core.NewError(core.KindConfig, "transform.aggregate",
		fmt.Sprintf("unknown aggregation %q", op))
}

func compareValues(got any, operator string, want any) bool {
	switch operator {
	case "", "eq":
		return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
	case "ne":
		return fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want)
	case "gt", "lt", "gte", "lte":
		g, err1 := toFloat(got)
		w, err2 := toFloat(want)
		if err1 != nil || err2 != nil {
			return false
		}
		switch operator {
		case "gt":
			return g > w
		case "lt":
			return g < w
		case "gte":
			return g >= w
		default:
			return g <= w
		}
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", got), fmt.Sprintf("%v", want))
	}
	return false
}

// ============================================================================
// FORMAT CONVERSION
// ============================================================================

// decodeFormat turns raw input into generic values. JSON payloads may arrive
// already decoded.
func decodeFormat(data any, format core.DataFormat) (any, error) {
	switch format {
	case core.FormatJSON:
		if raw, ok := rawInput(data); ok {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, core.WrapError(core.KindValidation, "transform.decode", "invalid json", err)
			}
			return v, nil
		}
		return data, nil
	case core.FormatXML:
		raw, ok := rawInput(data)
		if !ok {
			return data, nil
		}
		return xmlToMap(raw)
	case core.FormatCSV:
		raw, ok := rawInput(data)
		if !ok {
			return data, nil
		}
		return csvToRecords(raw, ',')
	default:
		return data, nil
	}
}

// encodeFormat renders generic values in the target format.
func encodeFormat(data any, format core.DataFormat, params map[string]any) (any, error) {
	switch format {
	case core.FormatJSON:
		buf, err := json.Marshal(data)
		if err != nil {
			return nil, core.WrapError(core.KindValidation, "transform.encode", "encoding json", err)
		}
		return string(buf), nil
	case core.FormatXML:
		root := "root"
		if params != nil {
			if r, ok := params["root_element"].(string); ok && r != "" {
				root = r
			}
		}
		return mapToXML(data, root), nil
	case core.FormatCSV:
		delim := ','
		headers := true
		if params != nil {
			if d, ok := params["delimiter"].(string); ok && d != "" {
				delim = rune(d[0])
			}
			if h, ok := params["headers"].(bool); ok {
				headers = h
			}
		}
		return recordsToCSV(data, delim, headers)
	default:
		return data, nil
	}
}

func formatFromParam(v any, fallback core.DataFormat) core.DataFormat {
	s, _ := v.(string)
	switch strings.ToLower(s) {
	case "json":
		return core.FormatJSON
	case "xml":
		return core.FormatXML
	case "csv":
		return core.FormatCSV
	}
	return fallback
}

// mapToXML renders nested maps as XML; list members become <item> elements.
func mapToXML(data any, root string) string {
	var buf bytes.Buffer
	buf.WriteString("<" + root + ">")
	writeXMLValue(&buf, data)
	buf.WriteString("</" + root + ">")
	return buf.String()
}

func writeXMLValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("<" + k + ">")
			writeXMLValue(buf, t[k])
			buf.WriteString("</" + k + ">")
		}
	case []any:
		for _, item := range t {
			buf.WriteString("<item>")
			writeXMLValue(buf, item)
			buf.WriteString("</item>")
		}
	case nil:
	default:
		xml.EscapeText(buf, []byte(fmt.Sprintf("%v", t)))
	}
}

// xmlToMap parses XML into nested maps keyed by local element names.
func xmlToMap(raw []byte) (map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, core.WrapError(core.KindValidation, "transform.decode", "invalid xml", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			value, err := readXMLElement(dec, start.Name)
			if err != nil {
				return nil, core.WrapError(core.KindValidation, "transform.decode", "invalid xml", err)
			}
			if m, ok := value.(map[string]any); ok {
				return m, nil
			}
			return map[string]any{start.Name.Local: value}, nil
		}
	}
}

func readXMLElement(dec *xml.Decoder, open xml.Name) (any, error) {
	children := map[string]any{}
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readXMLElement(dec, t.Name)
			if err != nil {
				return nil, err
			}
			if existing, ok := children[t.Name.Local]; ok {
				if list, ok := existing.([]any); ok {
					children[t.Name.Local] = append(list, child)
				} else {
					children[t.Name.Local] = []any{existing, child}
				}
			} else {
				children[t.Name.Local] = child
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name == open {
				if len(children) > 0 {
					return children, nil
				}
				return strings.TrimSpace(text.String()), nil
			}
		}
	}
}

// csvToRecords parses CSV with a header row into a list of records.
func csvToRecords(raw []byte, delim rune) ([]any, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = delim
	header, err := r.Read()
	if err != nil {
		return nil, core.WrapError(core.KindValidation, "transform.decode", "invalid csv", err)
	}
	var out []any
	for {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, core.WrapError(core.KindValidation, "transform.decode", "invalid csv", err)
		}
		record := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		out = append(out, record)
	}
}

// recordsToCSV renders a list of flat records as CSV. Columns are the union
// of keys, sorted, for reproducible output.
func recordsToCSV(data any, delim rune, headers bool) (string, error) {
	list, ok := data.([]any)
	if !ok {
		if record, ok := data.(map[string]any); ok {
			list = []any{record}
		} else {
			return "", core.NewError(core.KindValidation, "transform.encode", "csv encoding requires a list of records")
		}
	}

	columnSet := map[string]bool{}
	for _, item := range list {
		if record, ok := item.(map[string]any); ok {
			for k := range record {
				columnSet[k] = true
			}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for k := range columnSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	if headers {
		if err := w.Write(columns); err != nil {
			return "", err
		}
	}
	for _, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := record[c]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ============================================================================
// DOT-PATH HELPERS
// ============================================================================

func getPath(record map[string]any, path string) any {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	var current any = record
	for _, p := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[p]
		if !ok {
			return nil
		}
	}
	return current
}

func setPath(record map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := record
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[p] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func deletePath(record map[string]any, path string) {
	parts := strings.Split(path, ".")
	current := record
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

func (t *Transformer) conditionHolds(condition string, working any) bool {
	if condition == "" {
		return true
	}
	record, ok := working.(map[string]any)
	if !ok {
		return true
	}
	v := getPath(record, condition)
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	default:
		return true
	}
}

func rawInput(data any) ([]byte, bool) {
	switch v := data.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func msSince(start time.Time, now func() time.Time) float64 {
	return float64(now().Sub(start).Microseconds()) / 1000.0
}
