package config

import "time"

// Config represents the complete gwtrigger configuration.
type Config struct {
	Service ServiceConfig     `yaml:"service"`
	State   StateConfig       `yaml:"state"`
	Webhook WebhookConfig     `yaml:"webhook"`
	Tokens  map[string]string `yaml:"tokens,omitempty"`
	Jobs    []JobConfig       `yaml:"jobs"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// TickInterval is how often builds whose quiet period elapsed are released.
	TickInterval time.Duration `yaml:"tick_interval"`
	// EnvFile is loaded before ${VAR} interpolation of the rest of the file.
	EnvFile string `yaml:"env_file,omitempty"`
}

// StateConfig defines build queue storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig defines the webhook listener.
type WebhookConfig struct {
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	MaxBodySize string `yaml:"max_body_size,omitempty"`
	// CORSOrigins allows browsers on these origins to call the webhook routes.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// JobConfig defines a job that can be triggered through the webhook.
type JobConfig struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	// Token selects this job when supplied by the caller.
	Token string `yaml:"token,omitempty"`
	// TokenRef references an entry in tokens (preferred over Token).
	TokenRef string `yaml:"token_ref,omitempty"`

	// QuietPeriod is the job's own quiet period in seconds.
	QuietPeriod int `yaml:"quiet_period,omitempty"`
	// OverrideQuietPeriod lets callers replace QuietPeriod via jobQuietPeriod.
	OverrideQuietPeriod          bool `yaml:"override_quiet_period,omitempty"`
	AllowSeveralTriggersPerBuild bool `yaml:"allow_several_triggers_per_build,omitempty"`
	SilentResponse               bool `yaml:"silent_response,omitempty"`
	PrintContributedVariables    bool `yaml:"print_contributed_variables,omitempty"`

	// Cause is recorded with every build; $var references are expanded.
	Cause string `yaml:"cause,omitempty"`

	Parameters       []ParameterConfig       `yaml:"parameters,omitempty"`
	Variables        []VariableConfig        `yaml:"variables,omitempty"`
	RequestVariables []RequestVariableConfig `yaml:"request_variables,omitempty"`
	HeaderVariables  []RequestVariableConfig `yaml:"header_variables,omitempty"`

	RegexpFilterText       string `yaml:"regexp_filter_text,omitempty"`
	RegexpFilterExpression string `yaml:"regexp_filter_expression,omitempty"`
}

// IsEnabled reports whether the job takes part in matching. Jobs are enabled unless set otherwise.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// ParameterConfig declares a build parameter.
type ParameterConfig struct {
	Name string `yaml:"name"`
	// Type is "string" (default), "boolean", or any other name passed through opaquely.
	Type    string `yaml:"type,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// VariableConfig extracts a variable from the request body.
type VariableConfig struct {
	Key        string `yaml:"key"`
	Expression string `yaml:"expression"`
	// ExpressionType is "jsonpath" (default) or "regexp".
	ExpressionType string `yaml:"expression_type,omitempty"`
	RegexpFilter   string `yaml:"regexp_filter,omitempty"`
	Default        string `yaml:"default,omitempty"`
}

// RequestVariableConfig extracts a variable from a query parameter or header.
type RequestVariableConfig struct {
	Key          string `yaml:"key"`
	RegexpFilter string `yaml:"regexp_filter,omitempty"`
}

// Default values
const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultWebhookPath = "/generic-webhook-trigger"
	DefaultMaxBodySize = "1MB"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "gwtrigger",
			LogLevel:     "info",
			LogFormat:    "json",
			TickInterval: time.Second,
		},
		State: StateConfig{
			Path: "./data/queue.db",
		},
		Webhook: WebhookConfig{
			Listen:      DefaultListen,
			Path:        DefaultWebhookPath,
			MaxBodySize: DefaultMaxBodySize,
		},
	}
}
