package livy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var blockComment = regexp.MustCompile(`(?s)\s*/\*.*?\*/\s*`)

// normalizeSQL strips a single trailing semicolon (defensive normalization,
// not a statement splitter) and removes block comments before submission.
func normalizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(blockComment.ReplaceAllString(sql, "\n"))
}

// renderStatement substitutes rendered binding literals into the statement
// text's printf-style verbs.
func renderStatement(sql string, bindings []any) string {
	if len(bindings) == 0 {
		return sql
	}
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = renderBinding(b)
	}
	return fmt.Sprintf(sql, args...)
}

// renderBinding converts one bound value into a Spark SQL literal. The
// backslash and single-quote escaping here is the sole injection defense
// for bound parameters.
func renderBinding(v any) string {
	switch t := v.(type) {
	case nil:
		return "''"
	case time.Time:
		return "'" + t.Format("2006-01-02 15:04:05.000") + "'"
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return formatFloat(float64(t))
	case int8:
		return formatFloat(float64(t))
	case int16:
		return formatFloat(float64(t))
	case int32:
		return formatFloat(float64(t))
	case int64:
		return formatFloat(float64(t))
	case uint:
		return formatFloat(float64(t))
	case uint8:
		return formatFloat(float64(t))
	case uint16:
		return formatFloat(float64(t))
	case uint32:
		return formatFloat(float64(t))
	case uint64:
		return formatFloat(float64(t))
	default:
		s := fmt.Sprint(v)
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `'`, `\'`)
		return "'" + s + "'"
	}
}

// formatFloat renders numerics as floating-point literals, keeping a
// decimal point on integral values so 2 renders as 2.0.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
