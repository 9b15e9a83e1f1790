package domain

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Payload field coercion. Event payloads arrive as parsed JSON with no schema
// guarantees: numbers may be floats, strings, or byte arrays depending on the
// Move type. Missing or malformed fields coerce to zero values so a single bad
// event never stalls the poller.

// Int64Field returns the first present key coerced to int64.
func Int64Field(data map[string]any, keys ...string) int64 {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		return toInt64(v)
	}
	return 0
}

// StringField returns the first present key coerced to string.
func StringField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		return toString(v)
	}
	return ""
}

// BytesField decodes a vector<u8> payload field to UTF-8 text. Accepts JSON
// number arrays, hex strings (0x-prefixed) and base64 strings.
func BytesField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		return decodeBytes(v)
	}
	return ""
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := strconv.ParseInt(s[2:], 16, 64)
			if err != nil {
				return 0
			}
			return n
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case []any:
		// byte array holding decimal text
		s := decodeByteSlice(t)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		return decodeByteSlice(t)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func decodeBytes(v any) string {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "0x") {
			if b, err := hex.DecodeString(t[2:]); err == nil {
				return string(b)
			}
			return ""
		}
		if b, err := base64.StdEncoding.DecodeString(t); err == nil {
			return string(b)
		}
		return t
	case []any:
		return decodeByteSlice(t)
	default:
		return ""
	}
}

func decodeByteSlice(arr []any) string {
	b := make([]byte, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return ""
		}
		b = append(b, byte(int(f)))
	}
	return string(b)
}
