package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolArgumentError reports tool-call arguments that remain unparseable
// after every repair step. The executor converts it into an is_error tool
// result; it never fails the loop.
type ToolArgumentError struct {
	AdapterError
	Raw string
}

// ParseToolInput parses a backend-emitted tool-call argument string. When
// direct parsing fails it applies a bounded, ordered sequence of textual
// repairs, re-attempting the parse after each: control-character escaping,
// quote balancing, trailing-comma removal, and single-to-double quote
// normalization (Python-style dict literals, including True/False/None).
// The repaired flag reports whether any repair step was needed.
func ParseToolInput(raw string) (input json.RawMessage, repaired bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), false, nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), false, nil
	}

	candidate := trimmed
	for _, repair := range []func(string) string{
		escapeControlChars,
		balanceQuotes,
		removeTrailingCommas,
		normalizePythonLiterals,
	} {
		candidate = repair(candidate)
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true, nil
		}
	}

	preview := trimmed
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return nil, false, &ToolArgumentError{
		AdapterError: AdapterError{
			Message: fmt.Sprintf("tool arguments are not valid JSON after repair: %s", preview),
		},
		Raw: raw,
	}
}

// escapeControlChars escapes raw control characters inside string literals
// and drops them between tokens, where they can only be stray bytes.
func escapeControlChars(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				sb.WriteByte(c)
				escaped = false
				continue
			}
			switch {
			case c == '\\':
				sb.WriteByte(c)
				escaped = true
			case c == '"':
				sb.WriteByte(c)
				inString = false
			case c == '\n':
				sb.WriteString(`\n`)
			case c == '\t':
				sb.WriteString(`\t`)
			case c == '\r':
				sb.WriteString(`\r`)
			case c < 0x20:
				// Unrepresentable control byte; drop it.
			default:
				sb.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"':
			sb.WriteByte(c)
			inString = true
		case c == '\n' || c == '\t' || c == '\r' || c >= 0x20:
			sb.WriteByte(c)
		default:
			// Control byte between tokens; drop it.
		}
	}
	return sb.String()
}

// balanceQuotes closes an unterminated string literal and any object or
// array containers still open behind it. Truncated argument text like
// `{"cmd": "ls` parses again; text that was invalid for other reasons stays
// invalid.
func balanceQuotes(s string) string {
	var open []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			open = append(open, c)
		case '}':
			if len(open) > 0 && open[len(open)-1] == '{' {
				open = open[:len(open)-1]
			}
		case ']':
			if len(open) > 0 && open[len(open)-1] == '[' {
				open = open[:len(open)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

// removeTrailingCommas drops commas that directly precede a closing brace
// or bracket, outside string literals.
func removeTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			sb.WriteByte(c)
			inString = true
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // skip the trailing comma
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// normalizePythonLiterals rewrites Python dict syntax to JSON: single-quoted
// strings become double-quoted (escaping embedded double quotes), and bare
// True/False/None become true/false/null.
func normalizePythonLiterals(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inDouble := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inDouble {
			sb.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inDouble = false
			}
			continue
		}

		switch c {
		case '"':
			sb.WriteByte(c)
			inDouble = true
		case '\'':
			// Convert the whole single-quoted string.
			sb.WriteByte('"')
			i++
			for i < len(s) {
				sc := s[i]
				if sc == '\\' && i+1 < len(s) {
					next := s[i+1]
					if next == '\'' {
						sb.WriteByte('\'')
					} else {
						sb.WriteByte('\\')
						sb.WriteByte(next)
					}
					i += 2
					continue
				}
				if sc == '\'' {
					break
				}
				if sc == '"' {
					sb.WriteString(`\"`)
				} else {
					sb.WriteByte(sc)
				}
				i++
			}
			sb.WriteByte('"')
		case 'T', 'F', 'N':
			word, length := peekWord(s, i)
			switch word {
			case "True":
				sb.WriteString("true")
				i += length - 1
			case "False":
				sb.WriteString("false")
				i += length - 1
			case "None":
				sb.WriteString("null")
				i += length - 1
			default:
				sb.WriteByte(c)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// peekWord reads the alphanumeric word starting at position i.
func peekWord(s string, i int) (string, int) {
	j := i
	for j < len(s) && (isWordByte(s[j])) {
		j++
	}
	return s[i:j], j - i
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
