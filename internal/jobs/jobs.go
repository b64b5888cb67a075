// Package jobs holds the configured jobs and matches them against the token
// supplied with a webhook request.
package jobs

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mattjoyce/gwtrigger/internal/config"
	"github.com/mattjoyce/gwtrigger/internal/trigger"
)

// Job is a compiled job configuration.
type Job struct {
	Name                         string
	Token                        string
	QuietPeriod                  int
	OverrideQuietPeriod          bool
	AllowSeveralTriggersPerBuild bool
	SilentResponse               bool
	PrintContributedVariables    bool
	Cause                        string
	Parameters                   []trigger.ParameterDefinition
	Variables                    []config.VariableConfig
	RequestVariables             []config.RequestVariableConfig
	HeaderVariables              []config.RequestVariableConfig

	filterText string
	filter     *regexp.Regexp
}

// Compile converts a job configuration into a Job.
func Compile(jc config.JobConfig) (*Job, error) {
	defs := make([]trigger.ParameterDefinition, 0, len(jc.Parameters))
	for _, p := range jc.Parameters {
		def, err := Definition(p)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", jc.Name, err)
		}
		defs = append(defs, def)
	}

	job := &Job{
		Name:                         jc.Name,
		Token:                        jc.Token,
		QuietPeriod:                  jc.QuietPeriod,
		OverrideQuietPeriod:          jc.OverrideQuietPeriod,
		AllowSeveralTriggersPerBuild: jc.AllowSeveralTriggersPerBuild,
		SilentResponse:               jc.SilentResponse,
		PrintContributedVariables:    jc.PrintContributedVariables,
		Cause:                        jc.Cause,
		Parameters:                   defs,
		Variables:                    jc.Variables,
		RequestVariables:             jc.RequestVariables,
		HeaderVariables:              jc.HeaderVariables,
		filterText:                   jc.RegexpFilterText,
	}
	if jc.RegexpFilterExpression != "" {
		re, err := regexp.Compile(jc.RegexpFilterExpression)
		if err != nil {
			return nil, fmt.Errorf("job %q: regexp_filter_expression: %w", jc.Name, err)
		}
		job.filter = re
	}
	return job, nil
}

// Definition converts a parameter configuration into a typed definition.
func Definition(p config.ParameterConfig) (trigger.ParameterDefinition, error) {
	def := trigger.ParameterDefinition{Name: p.Name}
	switch trigger.ParseKind(p.Type) {
	case trigger.KindBoolean:
		b := false
		if p.Default != "" {
			v, err := strconv.ParseBool(p.Default)
			if err != nil {
				return def, fmt.Errorf("parameter %q: boolean default %q: %w", p.Name, p.Default, err)
			}
			b = v
		}
		def.Default = trigger.BoolValue(b)
	case trigger.KindOther:
		def.Default = trigger.OpaqueValue{Type: strings.ToLower(p.Type), Raw: p.Default}
	default:
		def.Default = trigger.StringValue(p.Default)
	}
	return def, nil
}

// QuietPeriodFor picks the quiet period for a build. The request value is used
// only when the job allows overriding and the request carried one.
func (j *Job) QuietPeriodFor(requested int) int {
	if j.OverrideQuietPeriod && requested != trigger.NoQuietPeriod {
		return requested
	}
	return j.QuietPeriod
}

// Filter expands the job's regexp filter text with resolved variables and
// reports whether it matches the filter expression. Jobs without an
// expression always match.
func (j *Job) Filter(resolved map[string]string) (text string, expression string, ok bool) {
	if j.filter == nil {
		return "", "", true
	}
	text = Expand(j.filterText, resolved)
	return text, j.filter.String(), j.filter.MatchString(text)
}

// CauseFor renders the build cause with resolved variables.
func (j *Job) CauseFor(resolved map[string]string) string {
	if j.Cause == "" {
		return "Generic Cause"
	}
	return Expand(j.Cause, resolved)
}

// Expand replaces $name and ${name} with resolved values. Unknown names become empty.
func Expand(s string, resolved map[string]string) string {
	return expandPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.Trim(m[1:], "{}")
		return resolved[name]
	})
}

var expandPattern = regexp.MustCompile(`\$(\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*)`)

// Registry holds the current job set. It is safe for concurrent use and can be
// replaced wholesale on config reload.
type Registry struct {
	jobs atomic.Pointer[[]*Job]
}

// NewRegistry compiles the configured jobs.
func NewRegistry(cfgs []config.JobConfig) (*Registry, error) {
	r := &Registry{}
	if err := r.Load(cfgs); err != nil {
		return nil, err
	}
	return r, nil
}

// Load compiles cfgs and swaps them in. On error the current set is kept.
func (r *Registry) Load(cfgs []config.JobConfig) error {
	compiled := make([]*Job, 0, len(cfgs))
	for _, jc := range cfgs {
		if !jc.IsEnabled() {
			continue
		}
		job, err := Compile(jc)
		if err != nil {
			return err
		}
		compiled = append(compiled, job)
	}
	r.jobs.Store(&compiled)
	return nil
}

// All returns the enabled jobs.
func (r *Registry) All() []*Job {
	if p := r.jobs.Load(); p != nil {
		return *p
	}
	return nil
}

// Match returns the jobs selected by the request token. With a token, jobs
// whose token equals it match; without one, jobs that have no token match.
func (r *Registry) Match(token string, hasToken bool) []*Job {
	var matched []*Job
	for _, job := range r.All() {
		if tokenMatches(job.Token, token, hasToken) {
			matched = append(matched, job)
		}
	}
	return matched
}

func tokenMatches(configured, given string, hasToken bool) bool {
	if !hasToken || given == "" {
		return configured == ""
	}
	if configured == "" || len(configured) != len(given) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(given)) == 1
}
