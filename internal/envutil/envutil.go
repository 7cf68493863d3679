// Package envutil provides environment-slice helpers for launching confined
// processes.
package envutil

import (
	"strings"
)

// SetEnv sets or replaces an environment variable in an env slice.
// Returns the modified slice. If the key already exists, its value is updated
// in place. Otherwise, the new entry is appended.
func SetEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// GetEnv gets a value from an env slice.
// Returns the value and true if found, or empty string and false if not.
func GetEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return e[len(prefix):], true
		}
	}
	return "", false
}

// RemoveEnvPrefix removes all variables with a given key prefix from an env
// slice. Used to strip DYLD_* and LD_* variables, which can inject dynamic
// libraries into the confined process. The prefix is matched against the key
// portion (before '=').
func RemoveEnvPrefix(env []string, prefix string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		key := e
		if idx := strings.IndexByte(e, '='); idx >= 0 {
			key = e[:idx]
		}
		if !strings.HasPrefix(key, prefix) {
			result = append(result, e)
		}
	}
	return result
}

// Sanitize strips loader-injection variables (DYLD_* and LD_*) from env.
func Sanitize(env []string) []string {
	env = RemoveEnvPrefix(env, "DYLD_")
	env = RemoveEnvPrefix(env, "LD_")
	return env
}
