package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FieldRule is one candidate location for a value inside a raw record.
// Field matches a key exactly; otherwise Contains matches any key holding one of the
// substrings, case-insensitively, in sorted key order. When the matched value is an
// object, Subkeys are tried in order. A Final rule ends resolution once Field holds an
// object carrying one of its Subkeys, even when that subkey is null.
type FieldRule struct {
	Field    string
	Contains []string
	Subkeys  []string
	Final    bool
}

// SpO2Rules resolves the daily SpO2 percentage across the field names the API has used.
var SpO2Rules = []FieldRule{
	{Field: "spo2_percentage", Subkeys: []string{"average"}, Final: true},
	{Field: "average_blood_oxygen"},
	{Contains: []string{"oxygen", "spo2"}, Subkeys: []string{"average", "value"}},
}

// SleepSpO2Rules is the fallback applied to sleep sessions.
var SleepSpO2Rules = []FieldRule{
	{Contains: []string{"spo2", "oxygen"}, Subkeys: []string{"average"}},
}

// Resolve evaluates rules in order and returns the first numeric value found.
func Resolve(rec map[string]interface{}, rules []FieldRule) (float64, bool) {
	for _, rule := range rules {
		if v, ok := rule.apply(rec); ok {
			return v, true
		}
		if rule.claims(rec) {
			return 0, false
		}
	}
	return 0, false
}

func (r FieldRule) apply(rec map[string]interface{}) (float64, bool) {
	if r.Field != "" {
		raw, ok := rec[r.Field]
		if !ok {
			return 0, false
		}
		return r.extract(raw)
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, sub := range r.Contains {
			if strings.Contains(lower, sub) {
				if v, ok := r.extract(rec[k]); ok {
					return v, true
				}
				break
			}
		}
	}
	return 0, false
}

// claims reports whether a Final rule owns rec's Field, usable or not.
func (r FieldRule) claims(rec map[string]interface{}) bool {
	if !r.Final || r.Field == "" {
		return false
	}
	obj, ok := rec[r.Field].(map[string]interface{})
	if !ok {
		return false
	}
	for _, sk := range r.Subkeys {
		if _, present := obj[sk]; present {
			return true
		}
	}
	return false
}

func (r FieldRule) extract(raw interface{}) (float64, bool) {
	if obj, ok := raw.(map[string]interface{}); ok {
		for _, sk := range r.Subkeys {
			if v, ok := toFloat(obj[sk]); ok {
				return v, true
			}
		}
		return 0, false
	}
	return toFloat(raw)
}

// toFloat converts a JSON scalar to a finite float.
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func floatField(rec map[string]interface{}, key string) *float64 {
	if v, ok := toFloat(rec[key]); ok {
		return &v
	}
	return nil
}
