package ingestion

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// BuildQuoteRow maps one raw upstream quote object to the storage schema.
// It requires a canonical code and trade date; selects adjusted OHLCV
// fields with the documented fallback order, dropping the row if any
// component is missing or non-finite; coerces numeric strings; rejects
// booleans; and normalizes the stock code to its four-character canonical
// form. now supplies the default created-at timestamp when the row doesn't
// carry one. It returns (row, false) when the row should be dropped.
func BuildQuoteRow(raw map[string]any, now func() time.Time) (Row, bool) {
	code, ok := stringField(raw, "Code")
	if !ok {
		return nil, false
	}
	date, ok := stringField(raw, "Date")
	if !ok {
		return nil, false
	}

	open, ok := numericFallback(raw, "AdjO", "O")
	if !ok {
		return nil, false
	}
	high, ok := numericFallback(raw, "AdjH", "H")
	if !ok {
		return nil, false
	}
	low, ok := numericFallback(raw, "AdjL", "L")
	if !ok {
		return nil, false
	}
	closeVal, ok := numericFallback(raw, "AdjC", "C")
	if !ok {
		return nil, false
	}
	volumeF, ok := numericFallback(raw, "AdjVo", "Vo")
	if !ok {
		return nil, false
	}

	adjFactor, ok := adjustmentFactor(raw)
	if !ok {
		return nil, false
	}

	createdAt, present := stringField(raw, "CreatedAt")
	if !present {
		createdAt = now().UTC().Format(time.RFC3339)
	}

	row := Row{
		"code":              Canonicalize(code),
		"date":              date,
		"open":              open,
		"high":              high,
		"low":               low,
		"close":             closeVal,
		"volume":            int64(volumeF),
		"adjustment_factor": adjFactor,
		"created_at":        createdAt,
	}
	return row, true
}

// adjustmentFactor is optional; an absent field or an empty string coerces
// to nil. A present, non-empty value must be numeric.
func adjustmentFactor(raw map[string]any) (any, bool) {
	v, present := raw["AdjustmentFactor"]
	if !present || v == nil {
		return nil, true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, true
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	return f, true
}

// numericFallback tries each key in order and returns the first one that is
// present and numeric (booleans, non-parseable strings, and non-finite
// values are treated as not usable and fall through to the next key).
func numericFallback(raw map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, present := raw[key]
	if !present || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case bool:
		return 0, false
	case float64:
		return finiteOrFalse(t)
	case float32:
		return finiteOrFalse(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return finiteOrFalse(f)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finiteOrFalse(f)
	default:
		return 0, false
	}
}

func finiteOrFalse(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
