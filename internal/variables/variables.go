// Package variables resolves the named variables a job contributes to its
// build from the webhook request: query/form parameters, headers and the body.
package variables

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattjoyce/gwtrigger/internal/config"
	"github.com/mattjoyce/gwtrigger/internal/trigger"
)

// Request is the part of an inbound webhook that variables are taken from.
type Request struct {
	Body    []byte
	Params  trigger.Params
	Headers trigger.Headers
}

// Sources lists the variables a job wants resolved.
type Sources struct {
	Variables        []config.VariableConfig
	RequestVariables []config.RequestVariableConfig
	HeaderVariables  []config.RequestVariableConfig
}

// Resolve evaluates src against req. Request parameters are applied first,
// then headers, then body variables, so later sources win on name clashes.
func Resolve(req Request, src Sources) map[string]string {
	out := make(map[string]string)

	for _, v := range src.RequestVariables {
		putAll(out, v.Key, req.Params[v.Key], v.RegexpFilter)
	}
	for _, v := range src.HeaderVariables {
		name := HeaderVariableName(v.Key)
		putAll(out, name, req.Headers[strings.ToLower(v.Key)], v.RegexpFilter)
	}

	var doc any
	parsed := false
	for _, v := range src.Variables {
		switch strings.ToLower(v.ExpressionType) {
		case "regexp":
			value := applyFilter(matchRegexp(req.Body, v.Expression), v.RegexpFilter)
			if value == "" {
				value = v.Default
			}
			out[v.Key] = value
		default:
			if !parsed {
				doc = decodeJSON(req.Body)
				parsed = true
			}
			resolveJSONPath(out, doc, v)
		}
	}
	return out
}

// HeaderVariableName is the variable name a header is exposed under:
// lower-cased with '-' replaced by '_'.
func HeaderVariableName(header string) string {
	return strings.ReplaceAll(strings.ToLower(header), "-", "_")
}

// putAll stores name = first value and name_<i> for every value when there is more than one.
func putAll(out map[string]string, name string, values []string, filter string) {
	if len(values) == 0 {
		out[name] = ""
		return
	}
	out[name] = applyFilter(values[0], filter)
	if len(values) > 1 {
		for i, v := range values {
			out[name+"_"+strconv.Itoa(i)] = applyFilter(v, filter)
		}
	}
}

// applyFilter removes every match of filter from value.
func applyFilter(value, filter string) string {
	if filter == "" || value == "" {
		return value
	}
	re, err := regexp.Compile(filter)
	if err != nil {
		return value
	}
	return re.ReplaceAllString(value, "")
}

func matchRegexp(body []byte, expr string) string {
	re, err := regexp.Compile(expr)
	if err != nil {
		return ""
	}
	m := re.FindSubmatch(body)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return string(m[1])
	default:
		return string(m[0])
	}
}

func decodeJSON(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	return doc
}

func resolveJSONPath(out map[string]string, doc any, v config.VariableConfig) {
	value, ok := lookup(doc, v.Expression)
	if !ok {
		out[v.Key] = v.Default
		return
	}

	switch value.(type) {
	case map[string]any, []any:
		flatten(out, v.Key, value, v.RegexpFilter)
	}
	s := applyFilter(render(value), v.RegexpFilter)
	if s == "" {
		s = v.Default
	}
	out[v.Key] = s
}

// flatten stores every leaf below value as prefix_<key>_<index>...
func flatten(out map[string]string, prefix string, value any, filter string) {
	switch t := value.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(out, prefix+"_"+k, child, filter)
		}
	case []any:
		for i, child := range t {
			flatten(out, prefix+"_"+strconv.Itoa(i), child, filter)
		}
	default:
		out[prefix] = applyFilter(render(value), filter)
	}
}

func render(value any) string {
	switch t := value.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
