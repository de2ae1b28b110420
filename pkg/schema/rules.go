package schema

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aretw0/silt/pkg/core"
)

// validateField checks the coherence of a single field's declared
// options. Validation of documents against the field happens later,
// through the rules compiled by compileFieldRules.
func validateField(f *Field) error {
	o := f.Options

	if f.Name == "" {
		return fmt.Errorf("empty field name")
	}
	if o.Ref != "" && o.RefPath != "" {
		return fmt.Errorf("ref and refPath are mutually exclusive")
	}
	if f.Kind == KindRef && o.Ref == "" && o.RefPath == "" {
		return fmt.Errorf("ref fields need ref or refPath")
	}
	if (o.Ref != "" || o.RefPath != "") && f.Kind != KindRef {
		return fmt.Errorf("ref/refPath declared on non-ref kind %s", f.Kind)
	}
	if o.Min != nil && o.Max != nil && *o.Min > *o.Max {
		return fmt.Errorf("min %v exceeds max %v", *o.Min, *o.Max)
	}
	if o.MinLength != nil && *o.MinLength < 0 {
		return fmt.Errorf("negative minLength")
	}
	if o.MinLength != nil && o.MaxLength != nil && *o.MinLength > *o.MaxLength {
		return fmt.Errorf("minLength %d exceeds maxLength %d", *o.MinLength, *o.MaxLength)
	}
	if o.Lowercase && o.Uppercase {
		return fmt.Errorf("lowercase and uppercase are mutually exclusive")
	}
	if f.Array != nil && f.Array.Dim < 1 {
		return fmt.Errorf("array dim must be >= 1, got %d", f.Array.Dim)
	}
	return nil
}

func validateVirtual(name string, v VirtualOptions, s *Schema) error {
	if v.Ref == "" {
		return fmt.Errorf("virtual %q: ref is required", name)
	}
	if v.ForeignField == "" || v.LocalField == "" {
		return fmt.Errorf("virtual %q: localField and foreignField are required", name)
	}
	if v.Count && v.JustOne {
		return fmt.Errorf("virtual %q: count and justOne are mutually exclusive", name)
	}
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("virtual %q: shadows a stored field", name)
	}
	return nil
}

// compileFieldRules turns the declarative options into ozzo rules plus
// an optional compiled validate expression. Compilation happens once at
// Build; ValidateDocument only executes.
func compileFieldRules(f *Field) ([]validation.Rule, *vm.Program, error) {
	o := f.Options
	var rules []validation.Rule

	if o.Required {
		rules = append(rules, validation.Required)
	}
	if len(o.Enum) > 0 {
		rules = append(rules, validation.In(o.Enum...))
	}
	if o.Min != nil {
		rules = append(rules, validation.Min(*o.Min))
	}
	if o.Max != nil {
		rules = append(rules, validation.Max(*o.Max))
	}
	if o.MinLength != nil || o.MaxLength != nil {
		min, max := 0, 0
		if o.MinLength != nil {
			min = *o.MinLength
		}
		if o.MaxLength != nil {
			max = *o.MaxLength
		}
		rules = append(rules, validation.Length(min, max))
	}
	if o.Match != "" {
		re, err := regexp.Compile(o.Match)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid match pattern: %w", err)
		}
		rules = append(rules, validation.Match(re))
	}

	var program *vm.Program
	if o.Validate != "" {
		p, err := expr.Compile(o.Validate, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid validate expression: %w", err)
		}
		program = p
	}

	return rules, program, nil
}

func runValidateProgram(program *vm.Program, value any, fields core.Metadata) (bool, error) {
	out, err := expr.Run(program, map[string]any{
		"value": value,
		"doc":   map[string]any(fields),
	})
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expression did not yield a bool")
	}
	return ok, nil
}

// normalizeNumber maps the integer widths serializers produce onto
// float64 so threshold rules compare like with like.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return v
	default:
		return v
	}
}
