// Package doctor reports problems in a loaded gwtrigger configuration that
// loading alone accepts.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/mattjoyce/gwtrigger/internal/config"
	"github.com/mattjoyce/gwtrigger/internal/jobs"
	"github.com/mattjoyce/gwtrigger/internal/variables"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.validateJobs(r)
	d.warnTokenlessJobs(r)
	d.warnUnresolvedParameters(r)
	d.warnFilterHalves(r)
	d.warnPublicListener(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateJobs compiles every job the way the server does.
func (d *Doctor) validateJobs(r *Result) {
	if len(d.cfg.Jobs) == 0 {
		d.addWarning(r, "jobs", "jobs", "no jobs configured; every request will get 404")
		return
	}
	enabled := 0
	for _, jc := range d.cfg.Jobs {
		if !jc.IsEnabled() {
			continue
		}
		enabled++
		if _, err := jobs.Compile(jc); err != nil {
			d.addError(r, "jobs", jobField(jc.Name, ""), err.Error())
		}
	}
	if enabled == 0 {
		d.addWarning(r, "jobs", "jobs", "all jobs are disabled")
	}
}

// warnTokenlessJobs flags jobs any unauthenticated caller can trigger.
func (d *Doctor) warnTokenlessJobs(r *Result) {
	for _, jc := range d.cfg.Jobs {
		if jc.IsEnabled() && jc.Token == "" {
			d.addWarning(r, "tokens", jobField(jc.Name, "token"),
				"job has no token and is triggered by every request without one")
		}
	}
}

// warnUnresolvedParameters flags parameters that no variable can override,
// so the default is always used.
func (d *Doctor) warnUnresolvedParameters(r *Result) {
	for _, jc := range d.cfg.Jobs {
		if !jc.IsEnabled() {
			continue
		}
		provided := providedVariables(jc)
		for _, p := range jc.Parameters {
			if !provided[p.Name] {
				d.addWarning(r, "parameters", jobField(jc.Name, "parameters."+p.Name),
					fmt.Sprintf("no variable named %q; the default %q is always used", p.Name, p.Default))
			}
		}
	}
}

// warnFilterHalves flags a filter text without expression and vice versa.
func (d *Doctor) warnFilterHalves(r *Result) {
	for _, jc := range d.cfg.Jobs {
		switch {
		case jc.RegexpFilterText != "" && jc.RegexpFilterExpression == "":
			d.addWarning(r, "filter", jobField(jc.Name, "regexp_filter_text"),
				"regexp_filter_text is ignored without regexp_filter_expression")
		case jc.RegexpFilterText == "" && jc.RegexpFilterExpression != "":
			d.addWarning(r, "filter", jobField(jc.Name, "regexp_filter_expression"),
				"regexp_filter_expression is matched against empty text")
		}
	}
}

// warnPublicListener flags a listener on all interfaces when a job has no token.
func (d *Doctor) warnPublicListener(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.Webhook.Listen)
	if err != nil {
		d.addError(r, "webhook", "webhook.listen", fmt.Sprintf("invalid listen address: %v", err))
		return
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		return
	}
	for _, jc := range d.cfg.Jobs {
		if jc.IsEnabled() && jc.Token == "" {
			d.addWarning(r, "webhook", "webhook.listen",
				"listening on all interfaces while tokenless jobs are enabled")
			return
		}
	}
}

func providedVariables(jc config.JobConfig) map[string]bool {
	out := make(map[string]bool)
	for _, v := range jc.Variables {
		out[v.Key] = true
	}
	for _, v := range jc.RequestVariables {
		out[v.Key] = true
	}
	for _, v := range jc.HeaderVariables {
		out[variables.HeaderVariableName(v.Key)] = true
	}
	return out
}

func jobField(name, field string) string {
	if field == "" {
		return "jobs." + name
	}
	return "jobs." + name + "." + field
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	sorted := append([]Issue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	for _, is := range sorted {
		if is.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, is.Category, is.Field, is.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, is.Category, is.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
