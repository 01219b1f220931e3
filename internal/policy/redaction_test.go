package policy

import (
	"strings"
	"testing"
)

func TestRedactSecretsKnownToken(t *testing.T) {
	input := `curl -H "Authorization: Bearer s3cr3t-token" https://api.example.com/items`
	out, changed := RedactSecrets(input, "s3cr3t-token")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "s3cr3t-token") {
		t.Fatalf("token still present: %q", out)
	}
	if !strings.Contains(out, "https://api.example.com/items") {
		t.Fatalf("url lost during redaction: %q", out)
	}
}

func TestRedactSecretsPatterns(t *testing.T) {
	cases := []struct {
		name, input, leaked string
	}{
		{"bearer", `curl -H 'authorization: bearer abc123' http://x`, "abc123"},
		{"api key", `curl -H "X-API-Key: k-999" http://x`, "k-999"},
		{"query", `curl "http://x/?a=1&access_token=qq77&b=2"`, "qq77"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, changed := RedactSecrets(tc.input)
			if !changed {
				t.Fatalf("changed = false, want true")
			}
			if strings.Contains(out, tc.leaked) {
				t.Fatalf("output still contains %q: %q", tc.leaked, out)
			}
			if !strings.Contains(out, "[REDACTED]") {
				t.Fatalf("output missing marker: %q", out)
			}
		})
	}
}

func TestRedactSecretsNoop(t *testing.T) {
	input := "curl https://api.example.com/health"
	out, changed := RedactSecrets(input, "", "   ")
	if changed || out != input {
		t.Fatalf("RedactSecrets() = %q, %v; want unchanged", out, changed)
	}
}
