package transform

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/core"
)

// ============================================================================
// BUILT-IN TRANSFORMS
// ============================================================================

var nonDigits = regexp.MustCompile(`\D`)

func builtinTransforms() map[string]TransformFunc {
	return map[string]TransformFunc{
		"uppercase": func(v any, _ map[string]any) (any, error) {
			return strings.ToUpper(asString(v)), nil
		},
		"lowercase": func(v any, _ map[string]any) (any, error) {
			return strings.ToLower(asString(v)), nil
		},
		"titlecase": func(v any, _ map[string]any) (any, error) {
			return titleCase(asString(v)), nil
		},
		"trim": func(v any, _ map[string]any) (any, error) {
			return strings.TrimSpace(asString(v)), nil
		},
		"to_string": func(v any, _ map[string]any) (any, error) {
			return asString(v), nil
		},
		"to_int": func(v any, _ map[string]any) (any, error) {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			return int64(f), nil
		},
		"to_float": func(v any, _ map[string]any) (any, error) {
			return toFloat(v)
		},
		"to_bool": func(v any, _ map[string]any) (any, error) {
			switch t := v.(type) {
			case bool:
				return t, nil
			case string:
				b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
				if err != nil {
					return nil, transformErr("value %q is not a boolean", t)
				}
				return b, nil
			}
			f, err := toFloat(v)
			if err != nil {
				return nil, transformErr("value %v is not a boolean", v)
			}
			return f != 0, nil
		},
		// date_format reparses with params: source_layout, target_layout.
		"date_format": func(v any, params map[string]any) (any, error) {
			source := paramString(params, "source_layout", time.RFC3339)
			target := paramString(params, "target_layout", "2006-01-02")
			t, err := time.Parse(source, asString(v))
			if err != nil {
				return nil, transformErr("value %q does not match layout %s", asString(v), source)
			}
			return t.Format(target), nil
		},
		"normalize_phone": func(v any, _ map[string]any) (any, error) {
			return normalizePhone(asString(v))
		},
		"normalize_email": func(v any, _ map[string]any) (any, error) {
			return strings.ToLower(strings.TrimSpace(asString(v))), nil
		},
		"extract_digits": func(v any, _ map[string]any) (any, error) {
			return nonDigits.ReplaceAllString(asString(v), ""), nil
		},
		"truncate": func(v any, params map[string]any) (any, error) {
			n := paramInt(params, "length", 255)
			s := asString(v)
			if len(s) > n {
				return s[:n], nil
			}
			return s, nil
		},
		"pad_left": func(v any, params map[string]any) (any, error) {
			n := paramInt(params, "length", 0)
			pad := paramString(params, "pad", "0")
			s := asString(v)
			for len(s) < n {
				s = pad + s
			}
			return s, nil
		},
		// Currency amounts cross the wire as minor units (kobo).
		"naira_to_kobo": func(v any, _ map[string]any) (any, error) {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			return int64(math.Round(f * 100)), nil
		},
		"kobo_to_naira": func(v any, _ map[string]any) (any, error) {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			return f / 100, nil
		},
		"split": func(v any, params map[string]any) (any, error) {
			sep := paramString(params, "separator", ",")
			parts := strings.Split(asString(v), sep)
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, nil
		},
		"join": func(v any, params map[string]any) (any, error) {
			sep := paramString(params, "separator", ",")
			return strings.Join(stringSlice(v), sep), nil
		},
		"hash": func(v any, _ map[string]any) (any, error) {
			sum := md5.Sum([]byte(asString(v)))
			return hex.EncodeToString(sum[:]), nil
		},
		"uuid": func(_ any, _ map[string]any) (any, error) {
			return newUUID(), nil
		},
		"timestamp": func(_ any, _ map[string]any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	}
}

// normalizePhone renders Nigerian numbers in +234 form. Accepts the local
// 11-digit form (0XXXXXXXXXX), the bare 10-digit form, and already-prefixed
// international numbers.
func normalizePhone(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(digits, "234") && len(digits) == 13:
		return "+" + digits, nil
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return "+234" + digits[1:], nil
	case len(digits) == 10:
		return "+234" + digits, nil
	}
	return "", transformErr("value %q is not a Nigerian phone number", raw)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ============================================================================
// BUILT-IN VALIDATIONS
// ============================================================================

var phonePattern = regexp.MustCompile(`^(\+234|0)[7-9][0-1]\d{8}$`)

func builtinValidations() map[string]ValidateFunc {
	return map[string]ValidateFunc{
		"required": func(v any, _ string) error {
			if v == nil || asString(v) == "" {
				return fmt.Errorf("value is required")
			}
			return nil
		},
		"email": func(v any, _ string) error {
			if _, err := mail.ParseAddress(asString(v)); err != nil {
				return fmt.Errorf("%q is not a valid email", asString(v))
			}
			return nil
		},
		"phone": func(v any, _ string) error {
			if !phonePattern.MatchString(asString(v)) {
				return fmt.Errorf("%q is not a valid Nigerian phone number", asString(v))
			}
			return nil
		},
		"numeric": func(v any, _ string) error {
			if _, err := toFloat(v); err != nil {
				return fmt.Errorf("%v is not numeric", v)
			}
			return nil
		},
		"date": func(v any, arg string) error {
			layout := "2006-01-02"
			if arg != "" {
				layout = arg
			}
			if _, err := time.Parse(layout, asString(v)); err != nil {
				if _, err := time.Parse(time.RFC3339, asString(v)); err != nil {
					return fmt.Errorf("%q is not a valid date", asString(v))
				}
			}
			return nil
		},
		"url": func(v any, _ string) error {
			u, err := url.Parse(asString(v))
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("%q is not a valid url", asString(v))
			}
			return nil
		},
		"min_length": func(v any, arg string) error {
			n, _ := strconv.Atoi(arg)
			if len(asString(v)) < n {
				return fmt.Errorf("shorter than %d characters", n)
			}
			return nil
		},
		"max_length": func(v any, arg string) error {
			n, _ := strconv.Atoi(arg)
			if len(asString(v)) > n {
				return fmt.Errorf("longer than %d characters", n)
			}
			return nil
		},
		"regex": func(v any, arg string) error {
			re, err := regexp.Compile(arg)
			if err != nil {
				return fmt.Errorf("invalid pattern %q", arg)
			}
			if !re.MatchString(asString(v)) {
				return fmt.Errorf("%q does not match %s", asString(v), arg)
			}
			return nil
		},
		"in": func(v any, arg string) error {
			got := asString(v)
			for _, allowed := range strings.Split(arg, "|") {
				if got == allowed {
					return nil
				}
			}
			return fmt.Errorf("%q is not one of %s", got, arg)
		},
		"range": func(v any, arg string) error {
			parts := strings.SplitN(arg, "..", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid range spec %q", arg)
			}
			lo, err1 := strconv.ParseFloat(parts[0], 64)
			hi, err2 := strconv.ParseFloat(parts[1], 64)
			n, err3 := toFloat(v)
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("%v is not in range %s", v, arg)
			}
			if n < lo || n > hi {
				return fmt.Errorf("%v is outside %s", v, arg)
			}
			return nil
		},
	}
}

// splitValidation parses "min_length:3" into name and argument.
func splitValidation(spec string) (string, string) {
	if i := strings.Index(spec, ":"); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// ============================================================================
// VALUE COERCION
// ============================================================================

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, transformErr("value %q is not numeric", t)
		}
		return f, nil
	}
	return 0, transformErr("value %v is not numeric", v)
}

func paramString(params map[string]any, key, fallback string) string {
	if params != nil {
		if s, ok := params[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func paramInt(params map[string]any, key string, fallback int) int {
	if params != nil {
		switch t := params[key].(type) {
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return fallback
}

func newUUID() string { return uuid.NewString() }

func transformErr(format string, args ...any) error {
	return core.NewError(core.KindValidation, "transform", fmt.Sprintf(format, args...))
}
