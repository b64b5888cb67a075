package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// A directory is accepted if it contains config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// The env file has to be known before interpolation, so peek at it first.
	var peek struct {
		Service struct {
			EnvFile string `yaml:"env_file"`
		} `yaml:"service"`
	}
	if err := yaml.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if peek.Service.EnvFile != "" {
		if err := LoadEnvFile(resolveRelative(filepath.Dir(absPath), peek.Service.EnvFile)); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.State.Path != "" {
		cfg.State.Path = resolveRelative(filepath.Dir(absPath), cfg.State.Path)
	}

	if err := resolveTokenRefs(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns configPath into an absolute path to the config file.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment.
// Variables that are already set win over the file.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func resolveRelative(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// resolveTokenRefs replaces token_ref with the referenced token.
func resolveTokenRefs(cfg *Config) error {
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if job.TokenRef == "" {
			continue
		}
		token, ok := cfg.Tokens[job.TokenRef]
		if !ok {
			return fmt.Errorf("job %q: token_ref %q not found in tokens", job.Name, job.TokenRef)
		}
		job.Token = token
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}
