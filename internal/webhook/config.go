package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/gwtrigger/internal/config"
)

// FromGlobalConfig converts the loaded configuration into a webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	maxBodySize, err := parseMaxBodySize(cfg.Webhook.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}

	path := strings.TrimSuffix(cfg.Webhook.Path, "/")
	if path == "" {
		path = config.DefaultWebhookPath
	}

	return Config{
		Listen:      cfg.Webhook.Listen,
		Path:        path,
		MaxBodySize: maxBodySize,
		SubmittedBy: "webhook:" + cfg.Service.Name,
		CORSOrigins: cfg.Webhook.CORSOrigins,
	}, nil
}

// parseMaxBodySize parses size strings like "1MB", "512KB" or "2048576" to bytes.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		size = config.DefaultMaxBodySize
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"KB", 1 << 10},
		{"MB", 1 << 20},
		{"GB", 1 << 30},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if value > (1<<62)/multiplier {
		return 0, fmt.Errorf("size too large")
	}
	return value * multiplier, nil
}
