package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrNoJSONObject is returned when the input holds no brace-delimited object at all.
var ErrNoJSONObject = errors.New("no JSON object found")

// ErrTrailingData is returned when a decoded object is followed by more input.
var ErrTrailingData = errors.New("unexpected data after JSON object")

// ParseStrictObject decodes input as a single JSON object with no repair.
// Numbers stay json.Number so a literal out of float64 range spoils only
// its own field.
func ParseStrictObject(input string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	if out == nil {
		return nil, ErrNoJSONObject
	}
	return out, nil
}

// OuterObject trims everything before the first '{' and after the last '}'.
// Model output often wraps the object in prose or a ```json fence.
func OuterObject(input string) (string, error) {
	start := strings.Index(input, "{")
	end := strings.LastIndex(input, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return input[start : end+1], nil
}

// RepairJSON fixes common model JSON faults: trailing commas, single quotes,
// unquoted keys, unclosed containers, comments.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (Hjson) and returns standard JSON.
func ParseHJSON(hjsonData string) (string, error) {
	opts := hjson.DefaultDecoderOptions()
	opts.UseJSONNumber = true

	var result interface{}
	if err := hjson.UnmarshalWithOptions([]byte(hjsonData), &result, opts); err != nil {
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %v", err)
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}
	return string(jsonBytes), nil
}

// RecoverJSONObject is the single bounded recovery pass for model output:
// cut to the outermost braces, repair, and decode. Hjson is the last lenient
// reading of the same cut. There is no second pass.
func RecoverJSONObject(input string) (map[string]interface{}, error) {
	cut, err := OuterObject(input)
	if err != nil {
		return nil, err
	}

	if obj, err := ParseStrictObject(cut); err == nil {
		return obj, nil
	}

	if repaired, err := RepairJSON(cut); err == nil {
		if obj, err := ParseStrictObject(repaired); err == nil {
			return obj, nil
		}
	}

	converted, err := ParseHJSON(cut)
	if err != nil {
		return nil, fmt.Errorf("RECOVERY_FAILED: %w", err)
	}
	obj, err := ParseStrictObject(converted)
	if err != nil {
		return nil, fmt.Errorf("RECOVERY_FAILED: %w", err)
	}
	return obj, nil
}

// Snippet shortens s for error messages and logs. It never splits a rune.
func Snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
