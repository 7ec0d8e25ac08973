package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateOrigin checks a configured browser origin: http or https, a host,
// and nothing after it.
func ValidateOrigin(raw string) error {
	if strings.ContainsAny(raw, " \t\r\n\"'<>`;|&$\\") {
		return fmt.Errorf("origin %q contains forbidden characters", raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme %q (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("origin %q has no host", raw)
	}
	if parsed.User != nil {
		return fmt.Errorf("origin %q must not carry credentials", raw)
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("origin %q must not have a path, query or fragment", raw)
	}
	return nil
}
