package qsettings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const invalidValue = "@Invalid()"

var ErrNotLatin1 = errors.New("variant text is not latin1")

// EncodeValue renders v as the raw INI value QSettings would write for it.
// Strings and numbers are written as text; lists are comma separated; maps
// and other structured values are streamed into an @Variant(...) value.
func EncodeValue(v any) (string, error) {
	switch x := v.(type) {
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return encodeList(items)
	case []any:
		// a single element list would read back as a scalar
		if len(x) == 1 {
			break
		}
		return encodeList(x)
	}

	s, err := variantToString(v)
	if err != nil {
		return "", err
	}
	return EscapeString(s), nil
}

func encodeList(items []any) (string, error) {
	if len(items) == 0 {
		return invalidValue, nil
	}

	parts := make([]string, len(items))
	for i, item := range items {
		s, err := variantToString(item)
		if err != nil {
			return "", err
		}
		parts[i] = EscapeString(s)
	}
	return strings.Join(parts, ", "), nil
}

// variantToString converts a single value to its unescaped text form
func variantToString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return invalidValue, nil
	case []byte:
		return "@ByteArray(" + bytesToLatin1(x) + ")", nil
	case string:
		if strings.ContainsRune(x, 0) {
			return "@String(" + x + ")", nil
		}
		if strings.HasPrefix(x, "@") {
			return "@" + x, nil
		}
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	default:
		data, err := MarshalVariant(v)
		if err != nil {
			return "", err
		}
		return "@Variant(" + bytesToLatin1(data) + ")", nil
	}
}

// DecodeValue parses a raw INI value. Plain text comes back as a string,
// comma separated text as []string (or []any when an element is not
// plain text), and @-prefixed values as the type they carry.
func DecodeValue(raw string) (any, error) {
	parts, isList := unescape(raw)

	if !isList {
		return stringToVariant(string(utf16.Decode(parts[0])))
	}

	items := make([]any, len(parts))
	allStrings := true
	for i, p := range parts {
		item, err := stringToVariant(string(utf16.Decode(p)))
		if err != nil {
			return nil, err
		}
		if _, ok := item.(string); !ok {
			allStrings = false
		}
		items[i] = item
	}

	if !allStrings {
		return items, nil
	}
	list := make([]string, len(items))
	for i, item := range items {
		list[i] = item.(string)
	}
	return list, nil
}

func stringToVariant(s string) (any, error) {
	if !strings.HasPrefix(s, "@") {
		return s, nil
	}

	switch {
	case strings.HasPrefix(s, "@@"):
		return s[1:], nil
	case s == invalidValue:
		return nil, nil
	case strings.HasPrefix(s, "@ByteArray(") && strings.HasSuffix(s, ")"):
		return latin1ToBytes(s[len("@ByteArray(") : len(s)-1])
	case strings.HasPrefix(s, "@String(") && strings.HasSuffix(s, ")"):
		return s[len("@String(") : len(s)-1], nil
	case strings.HasPrefix(s, "@Variant(") && strings.HasSuffix(s, ")"):
		data, err := latin1ToBytes(s[len("@Variant(") : len(s)-1])
		if err != nil {
			return nil, err
		}
		v, err := UnmarshalVariant(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode variant: %w", err)
		}
		return v, nil
	}

	// geometry types and unknown markers stay as text
	return s, nil
}

func bytesToLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func latin1ToBytes(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("%w: %U", ErrNotLatin1, r)
		}
		b = append(b, byte(r))
	}
	return b, nil
}
