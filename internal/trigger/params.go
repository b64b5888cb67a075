package trigger

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UniqueParameterName is the reserved name of the synthetic parameter that
// keeps the build queue from coalescing otherwise identical triggers.
const UniqueParameterName = "gwt_unique_id"

// Kind identifies how an override string is coerced for a parameter.
type Kind int

const (
	KindString Kind = iota
	KindBoolean
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	default:
		return "other"
	}
}

// ParseKind maps a configured parameter type to a Kind. Unknown types are KindOther.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "text":
		return KindString
	case "bool", "boolean":
		return KindBoolean
	default:
		return KindOther
	}
}

// Value is the concrete value of a build parameter: StringValue, BoolValue or OpaqueValue.
type Value interface {
	Kind() Kind
	String() string
}

// StringValue is a free-text parameter value.
type StringValue string

func (StringValue) Kind() Kind       { return KindString }
func (v StringValue) String() string { return string(v) }

// BoolValue is the value of a boolean parameter.
type BoolValue bool

func (BoolValue) Kind() Kind       { return KindBoolean }
func (v BoolValue) String() string { return strconv.FormatBool(bool(v)) }

// OpaqueValue carries a value of a parameter type this package does not
// interpret. Type names the parameter type; Raw is passed along verbatim.
type OpaqueValue struct {
	Type string
	Raw  string
}

func (OpaqueValue) Kind() Kind       { return KindOther }
func (v OpaqueValue) String() string { return v.Raw }

// ParameterDefinition is a job's declared input.
type ParameterDefinition struct {
	Name    string
	Default Value
}

// Kind returns the kind of the definition's default value.
func (d ParameterDefinition) Kind() Kind {
	if d.Default == nil {
		return KindString
	}
	return d.Default.Kind()
}

// Coerce converts an override string to the definition's kind.
func (d ParameterDefinition) Coerce(raw string) Value {
	switch def := d.Default.(type) {
	case BoolValue:
		return BoolValue(strings.EqualFold(raw, "true"))
	case OpaqueValue:
		return OpaqueValue{Type: def.Type, Raw: raw}
	default:
		return StringValue(raw)
	}
}

// BuildParameter is a named concrete value attached to a triggered build.
type BuildParameter struct {
	Name  string
	Value Value
}

// BuildParameters resolves the parameters for one triggered build. Output
// order follows defs. If nothing results and allowSeveralTriggersPerBuild is
// false, a single UniqueParameterName parameter with a fresh UUID is returned.
func BuildParameters(defs []ParameterDefinition, resolved map[string]string, allowSeveralTriggersPerBuild bool) []BuildParameter {
	params := make([]BuildParameter, 0, len(defs)+1)
	for _, def := range defs {
		value := def.Default
		if raw, ok := resolved[def.Name]; ok {
			value = def.Coerce(raw)
		}
		if value == nil {
			value = StringValue("")
		}
		params = append(params, BuildParameter{Name: def.Name, Value: value})
	}

	if len(params) == 0 && !allowSeveralTriggersPerBuild {
		params = append(params, BuildParameter{
			Name:  UniqueParameterName,
			Value: StringValue(uuid.NewString()),
		})
	}
	return params
}
