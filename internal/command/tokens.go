package command

// token is one shell word plus the byte range it occupies in the source line.
type token struct {
	Text  string
	Start int
	End   int
}

// splitTokens splits a command line on unquoted whitespace. Quotes are kept
// in Text so offsets map back onto the original bytes. An unterminated quote
// runs to the end of the line.
func splitTokens(line string) []token {
	var (
		out   []token
		start = -1
		quote byte
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' && i+1 < len(line) {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			if start < 0 {
				start = i
			}
			quote = c
		case c == '\\' && i+1 < len(line):
			if start < 0 {
				start = i
			}
			i++
		case isSpace(c):
			if start >= 0 {
				out = append(out, token{Text: line[start:i], Start: start, End: i})
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		out = append(out, token{Text: line[start:], Start: start, End: len(line)})
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
