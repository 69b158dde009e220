package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

// Role assignment policies (who becomes host of a session).
const (
	RolePolicyExplicit        = "explicit"
	RolePolicyConnectionOrder = "connection_order"
)

// Join policies for explicit mode when the target session does not exist.
const (
	JoinPolicyStrict    = "strict"
	JoinPolicyDiscovery = "discovery"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// RolePolicy selects how connections are assigned the host role.
	// Exactly one policy is active per deployment; the wire vocabularies
	// of the two policies are incompatible and are never mixed.
	RolePolicy string `env:"ROLE_POLICY" envDefault:"explicit"`
	// JoinPolicy decides what join_session does when the session is
	// unknown: strict rejects, discovery queues the client and broadcasts
	// a session_creation_request so a prospective host can claim the code.
	JoinPolicy string `env:"JOIN_POLICY" envDefault:"strict"`

	// Sweep settings serve the registration product variant, where
	// sessions represent long-lived available hosts kept alive by
	// register_session heartbeats.
	SessionSweepEnabled bool `env:"SESSION_SWEEP_ENABLED" envDefault:"false"`
	SessionSweepSeconds int  `env:"SESSION_SWEEP_INTERVAL_SECONDS" envDefault:"10"`
	SessionTimeoutSecs  int  `env:"SESSION_TIMEOUT_SECONDS" envDefault:"30"`

	// SignalingMsgsPerSec caps inbound frames per connection.
	// Zero disables the cap; control traffic (mouse_move) is high
	// frequency, so any non-zero value should be generous.
	SignalingMsgsPerSec int `env:"SIGNALING_MESSAGES_PER_SECOND" envDefault:"0"`

	SessionCodeLength int `env:"SESSION_CODE_LENGTH" envDefault:"10"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecs) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	switch c.RolePolicy {
	case RolePolicyExplicit, RolePolicyConnectionOrder:
	default:
		return fmt.Errorf("ROLE_POLICY must be %q or %q, got %q",
			RolePolicyExplicit, RolePolicyConnectionOrder, c.RolePolicy)
	}

	switch c.JoinPolicy {
	case JoinPolicyStrict, JoinPolicyDiscovery:
	default:
		return fmt.Errorf("JOIN_POLICY must be %q or %q, got %q",
			JoinPolicyStrict, JoinPolicyDiscovery, c.JoinPolicy)
	}

	if c.SessionCodeLength < 1 {
		return fmt.Errorf("SESSION_CODE_LENGTH must be at least 1")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
