package config

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// ResolveValue handles indirections in credential values:
// - op://vault/item/field -> 1Password secret (via `op read`)
// - $(...) -> shell command output
// - ${VAR} or $VAR -> environment variable
// - literal string -> returned as-is
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	switch {
	case strings.HasPrefix(value, "op://"):
		return resolveOnePassword(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return resolveCommand(value[2 : len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

// expandEnv expands a value that is exactly ${VAR} or $VAR.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") && !strings.ContainsAny(s[1:], " /$") {
		return os.Getenv(s[1:])
	}
	return s
}

// resolveOnePassword handles op:// URLs via `op read`
// Format: op://vault/item/field or op://vault/item/field?account=account.1password.com
func resolveOnePassword(opURL string) (string, error) {
	u, err := url.Parse(opURL)
	if err != nil {
		return "", fmt.Errorf("1password: invalid URL %s: %w", opURL, err)
	}
	account := u.Query().Get("account")
	cleanURL := fmt.Sprintf("op://%s%s", u.Host, u.Path)

	args := []string{"read", cleanURL}
	if account != "" {
		args = append(args, "--account", account)
	}
	output, err := exec.Command("op", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("1password: failed to read %s: %s (is 'op' CLI installed and signed in?)", cleanURL, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("1password: failed to read %s: %w (is 'op' CLI installed and signed in?)", cleanURL, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// resolveCommand executes a shell command and returns its output
func resolveCommand(cmd string) (string, error) {
	output, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("command failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
