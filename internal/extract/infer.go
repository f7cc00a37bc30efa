package extract

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/faucetdb/schemaguard/internal/model"
)

// DatetimeLayouts are the layouts recognized as datetime values, tried in
// order.
var DatetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02-Jan-2006",
}

var boolWords = map[string]bool{
	"true": true, "false": false,
	"yes": true, "no": false,
	"t": true, "f": false,
	"y": true, "n": false,
}

// InferValue returns the narrowest type tag of a single non-null value.
// Integer literals win over booleans, so "1" and "0" are integers.
func InferValue(s string) model.TypeTag {
	switch {
	case IsInteger(s):
		return model.TypeInteger
	case IsFloat(s):
		return model.TypeFloat
	case IsBool(s):
		return model.TypeBoolean
	case IsDatetime(s):
		return model.TypeDatetime
	default:
		return model.TypeString
	}
}

// IsInteger reports whether s is a base-10 integer literal.
func IsInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// IsFloat reports whether s is a finite decimal number.
func IsFloat(s string) bool {
	f, ok := ParseFloat(s)
	return ok && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// ParseFloat parses s as a decimal number. Hex, underscores, and the
// special values inf and nan are rejected.
func ParseFloat(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "_xXpP") {
		return 0, false
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsIntegral reports whether s is a number with no fractional part, such as
// "3" or "3.0".
func IsIntegral(s string) bool {
	if IsInteger(s) {
		return true
	}
	f, ok := ParseFloat(s)
	return ok && f == math.Trunc(f) && math.Abs(f) < 1<<53
}

// IsBool reports whether s is a recognized boolean word.
func IsBool(s string) bool {
	_, ok := boolWords[strings.ToLower(s)]
	return ok
}

// IsBoolLike reports whether s is a boolean word or the digits 0 and 1.
func IsBoolLike(s string) bool {
	return s == "0" || s == "1" || IsBool(s)
}

// IsDatetime reports whether s matches one of DatetimeLayouts.
func IsDatetime(s string) bool {
	_, ok := ParseDatetime(s)
	return ok
}

// ParseDatetime parses s with the first matching layout.
func ParseDatetime(s string) (time.Time, bool) {
	for _, layout := range DatetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
