package policy

import (
	"regexp"
	"strings"
)

var (
	bearerPattern    = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)[^"'\s]+`)
	apiKeyPattern    = regexp.MustCompile(`(?i)(x-api-key:\s*)[^"'\s]+`)
	urlSecretPattern = regexp.MustCompile(`(?i)([?&](?:access_token|api_key|apikey|token)=)[^&"'\s]+`)
)

const redactedMarker = "[REDACTED]"

// RedactSecrets masks credentials in a command line or log text. Each value
// in secrets is replaced verbatim; header and query-string credentials are
// masked by pattern even when the value is not known.
func RedactSecrets(input string, secrets ...string) (redacted string, changed bool) {
	out := input

	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		next := strings.ReplaceAll(out, secret, redactedMarker)
		changed = changed || next != out
		out = next
	}

	for _, re := range []*regexp.Regexp{bearerPattern, apiKeyPattern, urlSecretPattern} {
		next := re.ReplaceAllString(out, "${1}"+redactedMarker)
		changed = changed || next != out
		out = next
	}

	return out, changed
}
