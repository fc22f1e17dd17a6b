// Package sanitization keeps credentials and log-forging characters out of structured logs.
package sanitization

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	Redacted    = "[REDACTED]"
	maskedEmpty = "(empty)"
	maskedAll   = "***masked***"
)

// rule rewrites the value of a sensitive field.
type rule func(value any) any

func redact(any) any { return Redacted }

// maskEnds keeps the first and last four characters of string values. Anything else is redacted.
func maskEnds(value any) any {
	s, ok := value.(string)
	if !ok {
		return Redacted
	}
	return MaskFirstLast4(s)
}

// fieldRules is keyed by lowercased field name.
var fieldRules = map[string]rule{
	"password":              redact,
	"secret":                redact,
	"aws_secret_access_key": redact,
	"aws_session_token":     redact,
	"authorization":         redact,
	"cookie":                redact,
	"set-cookie":            redact,

	"aws_access_key_id": maskEnds,
	"topic_arn":         maskEnds,
	"queue_url":         maskEnds,
}

// Keys containing any of these are redacted even when fieldRules has no entry.
var sensitiveFragments = []string{"secret", "token", "password", "private_key", "api_key", "authorization"}

// SanitizeLogString drops line breaks and other control characters. Tabs survive.
func SanitizeLogString(value string) string {
	return strings.Map(func(r rune) rune {
		if r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}

// SanitizeFieldValue cleans value for logging under key. Sensitive keys are redacted or masked;
// everything else has control characters stripped, recursing into maps and slices.
func SanitizeFieldValue(key string, value any) any {
	if apply := ruleFor(key); apply != nil {
		return apply(value)
	}
	return clean(value)
}

func ruleFor(key string) rule {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return nil
	}
	if r, ok := fieldRules[key]; ok {
		return r
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return redact
		}
	}
	return nil
}

// MaskFirstLast keeps prefixLen leading and suffixLen trailing bytes of value and masks the
// rest. Values too short to keep anything are masked entirely.
func MaskFirstLast(value string, prefixLen, suffixLen int) string {
	switch {
	case value == "":
		return maskedEmpty
	case prefixLen < 0, suffixLen < 0, len(value) <= prefixLen+suffixLen:
		return maskedAll
	}
	return value[:prefixLen] + "***" + value[len(value)-suffixLen:]
}

func MaskFirstLast4(value string) string {
	return MaskFirstLast(value, 4, 4)
}

func clean(value any) any {
	switch v := value.(type) {
	case nil, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return v
	case string:
		return SanitizeLogString(v)
	case []byte:
		return SanitizeLogString(string(v))
	case error:
		return SanitizeLogString(v.Error())
	case fmt.Stringer:
		return SanitizeLogString(v.String())
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = SanitizeLogString(s)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clean(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = SanitizeFieldValue(k, item)
		}
		return out
	default:
		return SanitizeLogString(fmt.Sprint(v))
	}
}
