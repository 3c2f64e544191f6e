package qsettings

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// escape renders UTF-16 code units as a QSettings INI value. Everything
// outside printable ASCII is written as an escape sequence.
func escape(units []uint16) string {
	var b strings.Builder
	needsQuotes := false
	escapeNextIfDigit := false

	for _, ch := range units {
		if ch == ';' || ch == ',' || ch == '=' {
			needsQuotes = true
		}

		// "\x4" followed by "1" would read back as "\x41"
		if escapeNextIfDigit && isHexDigit(rune(ch)) {
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatUint(uint64(ch), 16))
			continue
		}
		escapeNextIfDigit = false

		switch ch {
		case 0:
			b.WriteString(`\0`)
			escapeNextIfDigit = true
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\v':
			b.WriteString(`\v`)
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(byte(ch))
		default:
			// a raw backtick makes the ini writer wrap the value in """
			if ch <= 0x1f || ch >= 0x7f || ch == '`' {
				b.WriteString(`\x`)
				b.WriteString(strconv.FormatUint(uint64(ch), 16))
				escapeNextIfDigit = true
			} else {
				b.WriteByte(byte(ch))
			}
		}
	}

	out := b.String()
	if needsQuotes || strings.HasPrefix(out, " ") || strings.HasSuffix(out, " ") {
		out = `"` + out + `"`
	}
	return out
}

// EscapeString escapes s as a single INI value
func EscapeString(s string) string {
	return escape(utf16.Encode([]rune(s)))
}

// EscapeBackticks rewrites the raw backticks of an already escaped INI value
// as \x60 so the ini writer leaves the value unwrapped. The value reads back
// unchanged.
func EscapeBackticks(raw string) string {
	if !strings.Contains(raw, "`") {
		return raw
	}

	in := []rune(raw)
	var b strings.Builder
	escapeNextIfDigit := false

	for i := 0; i < len(in); i++ {
		ch := in[i]
		if escapeNextIfDigit && isHexDigit(ch) {
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatUint(uint64(ch), 16))
			continue
		}
		escapeNextIfDigit = false

		switch {
		case ch == '\\' && i+1 < len(in):
			i++
			if in[i] == '`' {
				// unknown escape, reads back as nothing but still ends a
				// preceding numeric escape
				escapeNextIfDigit = true
				continue
			}
			b.WriteRune(ch)
			b.WriteRune(in[i])
		case ch == '`':
			b.WriteString(`\x60`)
			escapeNextIfDigit = true
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

var escapeCodes = map[rune]uint16{
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
	'"':  '"',
	'?':  '?',
	'\'': '\'',
	'\\': '\\',
}

// unescape parses a raw INI value into UTF-16 strings. Unquoted commas
// separate list elements; isList reports whether any were found.
func unescape(raw string) (parts [][]uint16, isList bool) {
	in := []rune(raw)
	i := 0

	var (
		cur       []uint16
		chopLimit int
		inQuotes  bool
		curQuoted bool
		truncated bool
	)

	skipSpaces := func() {
		for i < len(in) && (in[i] == ' ' || in[i] == '\t') {
			i++
		}
		chopLimit = len(cur)
	}

	skipSpaces()

loop:
	for i < len(in) {
		ch := in[i]
		switch {
		case ch == '\\':
			i++
			if i >= len(in) {
				truncated = true
				break loop
			}
			ch = in[i]
			i++

			if code, ok := escapeCodes[ch]; ok {
				cur = append(cur, code)
				chopLimit = len(cur)
				continue
			}

			switch {
			case ch == 'x':
				if i >= len(in) {
					truncated = true
					break loop
				}
				if isHexDigit(in[i]) {
					val := 0
					for i < len(in) && isHexDigit(in[i]) {
						val = val<<4 + hexValue(in[i])
						i++
					}
					cur = append(cur, uint16(val))
					chopLimit = len(cur)
					continue
				}
			case ch >= '0' && ch <= '7':
				val := int(ch - '0')
				for i < len(in) && in[i] >= '0' && in[i] <= '7' {
					val = val<<3 + int(in[i]-'0')
					i++
				}
				cur = append(cur, uint16(val))
				chopLimit = len(cur)
				continue
			case ch == '\n' || ch == '\r':
				if i < len(in) && (in[i] == '\n' || in[i] == '\r') && in[i] != ch {
					i++
				}
			}
			// unknown escapes are dropped
			chopLimit = len(cur)

		case ch == '"':
			i++
			curQuoted = true
			inQuotes = !inQuotes
			if !inQuotes {
				skipSpaces()
			}

		case ch == ',' && !inQuotes:
			if !curQuoted {
				cur = chopTrailingSpaces(cur, chopLimit)
			}
			isList = true
			parts = append(parts, cur)
			cur = nil
			curQuoted = false
			i++
			skipSpaces()

		default:
			cur = append(cur, utf16.Encode([]rune{ch})...)
			i++
		}
	}

	if !truncated && !curQuoted {
		cur = chopTrailingSpaces(cur, chopLimit)
	}
	parts = append(parts, cur)
	return parts, isList
}

func chopTrailingSpaces(s []uint16, limit int) []uint16 {
	n := len(s)
	for n > limit && (s[n-1] == ' ' || s[n-1] == '\t') {
		n--
	}
	return s[:n]
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return int(r-'A') + 10
	}
}
