package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antoniostano/backendmcp/internal/reliability"
)

const programName = "curl"

var ErrInvalidCommand = fmt.Errorf("%w: command must start with %s", reliability.ErrValidation, programName)

type Dialect string

const (
	DialectAuto       Dialect = "auto"
	DialectPOSIX      Dialect = "posix"
	DialectPowerShell Dialect = "powershell"
)

// ResolveDialect turns a configured dialect into a concrete one. "auto" and
// unknown values follow goos.
func ResolveDialect(raw, goos string) Dialect {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectPOSIX:
		return DialectPOSIX
	case DialectPowerShell:
		return DialectPowerShell
	}
	if goos == "windows" {
		return DialectPowerShell
	}
	return DialectPOSIX
}

var (
	headerPattern  = regexp.MustCompile(`-H\s+["']([^"']+)["']`)
	programPattern = regexp.MustCompile(`(?i)^curl\b`)
)

// Rewriter injects the configured bearer token and adapts a curl command line
// for the target shell. It is pure: the same input always yields the same
// output.
type Rewriter struct {
	token   string
	dialect Dialect
}

func NewRewriter(token string, dialect Dialect) *Rewriter {
	return &Rewriter{token: strings.TrimSpace(token), dialect: dialect}
}

func (r *Rewriter) Dialect() Dialect { return r.dialect }

func (r *Rewriter) HasToken() bool { return r.token != "" }

func (r *Rewriter) Token() string { return r.token }

func (r *Rewriter) Rewrite(cmd string) (string, error) {
	out := strings.TrimSpace(cmd)
	if err := Validate(out); err != nil {
		return "", err
	}
	if r.token != "" {
		out = InjectAuthHeader(out, r.token)
	}
	return AdaptDialect(out, r.dialect), nil
}

func Validate(cmd string) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cmd)), programName) {
		return ErrInvalidCommand
	}
	return nil
}

// InjectAuthHeader adds an Authorization header unless one is already
// present (any case). The header goes after the last existing -H fragment,
// or else right before the URL argument.
func InjectAuthHeader(cmd, token string) string {
	if strings.Contains(strings.ToLower(cmd), "authorization:") {
		return cmd
	}
	header := `-H "Authorization: Bearer ` + token + `"`

	if matches := headerPattern.FindAllStringIndex(cmd, -1); len(matches) > 0 {
		end := matches[len(matches)-1][1]
		return cmd[:end] + " " + header + cmd[end:]
	}

	toks := splitTokens(cmd)
	if len(toks) <= 1 {
		return strings.TrimRight(cmd, " \t") + " " + header
	}
	at := toks[len(toks)-1].Start
	for i := len(toks) - 1; i > 0; i-- {
		if !strings.HasPrefix(toks[i].Text, "-") {
			at = toks[i].Start
			break
		}
	}
	return cmd[:at] + header + " " + cmd[at:]
}

// AdaptDialect rewrites for PowerShell: the leading curl becomes curl.exe so
// the Invoke-WebRequest alias is bypassed, and every single quote becomes a
// double quote. The quote swap is lossy for single-quoted text that contains
// double quotes.
func AdaptDialect(cmd string, dialect Dialect) string {
	if dialect != DialectPowerShell {
		return cmd
	}
	if loc := programPattern.FindStringIndex(cmd); loc != nil {
		rest := cmd[loc[1]:]
		if !strings.HasPrefix(strings.ToLower(rest), ".exe") {
			cmd = "curl.exe" + rest
		}
	}
	return strings.ReplaceAll(cmd, "'", `"`)
}
