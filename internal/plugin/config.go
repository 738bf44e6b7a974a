package plugin

import (
	"fmt"
	"os"
	"strings"
)

// CollisionPolicy controls how the registry responds when two bundles from
// different locations derive the same namespace.
type CollisionPolicy string

const (
	// CollisionStrict rejects the second registration.
	CollisionStrict CollisionPolicy = "strict"
	// CollisionWarn logs a warning and registers anyway.
	CollisionWarn CollisionPolicy = "warn"
	// CollisionOff disables collision detection.
	CollisionOff CollisionPolicy = "off"
)

// ParseCollisionPolicy validates a policy name. The empty string selects the default.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch policy := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); policy {
	case CollisionStrict, CollisionWarn, CollisionOff:
		return policy, nil
	case "":
		return DefaultConfig().CollisionPolicy, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (expected strict, warn or off)", s)
	}
}

// RegistryConfig configures registry policies.
type RegistryConfig struct {
	CollisionPolicy CollisionPolicy
}

// DefaultConfig returns environment-aware defaults for the registry configuration.
func DefaultConfig() *RegistryConfig {
	if isCIEnvironment() {
		return &RegistryConfig{CollisionPolicy: CollisionStrict}
	}

	return &RegistryConfig{CollisionPolicy: CollisionWarn}
}

func isCIEnvironment() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_HOME",
	}

	for _, key := range ciEnvVars {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" && strings.ToLower(value) != "false" && value != "0" {
			return true
		}
	}

	return false
}
