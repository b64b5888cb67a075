package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive (got %s)", cfg.Service.TickInterval)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Webhook.Listen == "" {
		return fmt.Errorf("webhook.listen is required")
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/' (got %q)", cfg.Webhook.Path)
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, job := range cfg.Jobs {
		if job.Name == "" {
			return fmt.Errorf("jobs[%d].name is required", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("jobs[%d]: duplicate job name %q", i, job.Name)
		}
		seen[job.Name] = true

		if err := validateJob(job); err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
	}
	return nil
}

func validateJob(job JobConfig) error {
	if envVarPattern.MatchString(job.Token) {
		matches := envVarPattern.FindStringSubmatch(job.Token)
		return fmt.Errorf("token: environment variable ${%s} is not set", matches[1])
	}
	if job.QuietPeriod < 0 {
		return fmt.Errorf("quiet_period must not be negative")
	}

	params := make(map[string]bool, len(job.Parameters))
	for i, p := range job.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameters[%d].name is required", i)
		}
		if params[p.Name] {
			return fmt.Errorf("parameters[%d]: duplicate parameter %q", i, p.Name)
		}
		params[p.Name] = true

		switch strings.ToLower(p.Type) {
		case "bool", "boolean":
			if p.Default != "" {
				if _, err := strconv.ParseBool(p.Default); err != nil {
					return fmt.Errorf("parameters[%d] (%s): boolean default %q", i, p.Name, p.Default)
				}
			}
		}
	}

	for i, v := range job.Variables {
		if v.Key == "" {
			return fmt.Errorf("variables[%d].key is required", i)
		}
		switch strings.ToLower(v.ExpressionType) {
		case "", "jsonpath":
			if v.Expression != "" && !strings.HasPrefix(v.Expression, "$") {
				return fmt.Errorf("variables[%d] (%s): jsonpath must start with '$'", i, v.Key)
			}
			if v.Expression != "" {
				if _, err := jsonpath.New(v.Expression); err != nil {
					return fmt.Errorf("variables[%d] (%s): invalid jsonpath: %w", i, v.Key, err)
				}
			}
		case "regexp":
			if _, err := regexp.Compile(v.Expression); err != nil {
				return fmt.Errorf("variables[%d] (%s): %w", i, v.Key, err)
			}
		default:
			return fmt.Errorf("variables[%d] (%s): expression_type must be jsonpath or regexp", i, v.Key)
		}
		if err := validateFilter(v.RegexpFilter); err != nil {
			return fmt.Errorf("variables[%d] (%s): %w", i, v.Key, err)
		}
	}
	for _, group := range [][]RequestVariableConfig{job.RequestVariables, job.HeaderVariables} {
		for i, v := range group {
			if v.Key == "" {
				return fmt.Errorf("request/header variable [%d]: key is required", i)
			}
			if err := validateFilter(v.RegexpFilter); err != nil {
				return fmt.Errorf("variable %s: %w", v.Key, err)
			}
		}
	}

	if job.RegexpFilterExpression != "" {
		if _, err := regexp.Compile(job.RegexpFilterExpression); err != nil {
			return fmt.Errorf("regexp_filter_expression: %w", err)
		}
	}
	return nil
}

func validateFilter(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := regexp.Compile(expr); err != nil {
		return fmt.Errorf("regexp_filter: %w", err)
	}
	return nil
}
