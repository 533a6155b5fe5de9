package resilience

import (
	"time"

	"github.com/sells-group/medrag-cli/internal/config"
)

// FromConfig converts the retry section of the app config to a RetryConfig.
// Zero or negative values fall back to DefaultRetryConfig.
func FromConfig(rc config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		cfg.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction >= 0 {
		cfg.JitterFraction = rc.JitterFraction
	}
	return cfg
}
