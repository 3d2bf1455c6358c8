package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// RatioName identifies one of the fixed report ratios.
type RatioName string

const (
	RatioCurrent             RatioName = "current_ratio"
	RatioDebtToEquity        RatioName = "debt_to_equity_ratio"
	RatioGrossMargin         RatioName = "gross_margin_ratio"
	RatioOperatingMargin     RatioName = "operating_margin_ratio"
	RatioReturnOnAssets      RatioName = "return_on_assets_ratio"
	RatioReturnOnEquity      RatioName = "return_on_equity_ratio"
	RatioAssetTurnover       RatioName = "asset_turnover_ratio"
	RatioInventoryTurnover   RatioName = "inventory_turnover_ratio"
	RatioReceivablesTurnover RatioName = "receivables_turnover_ratio"
	RatioDebt                RatioName = "debt_ratio"
	RatioInterestCoverage    RatioName = "interest_coverage_ratio"
)

// RequiredRatios is the fixed report order.
var RequiredRatios = []RatioName{
	RatioCurrent,
	RatioDebtToEquity,
	RatioGrossMargin,
	RatioOperatingMargin,
	RatioReturnOnAssets,
	RatioReturnOnEquity,
	RatioAssetTurnover,
	RatioInventoryTurnover,
	RatioReceivablesTurnover,
	RatioDebt,
	RatioInterestCoverage,
}

type ratioState uint8

const (
	ratioUndefined ratioState = iota
	ratioFinite
	ratioInfinite
)

// InfinityToken is the wire form of an infinite ratio.
const InfinityToken = "Infinity"

// RatioValue is a finite number, +Inf, or undefined. The zero value is undefined.
type RatioValue struct {
	v     float64
	state ratioState
}

func Finite(v float64) RatioValue {
	if math.IsInf(v, 1) {
		return Infinite()
	}
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return Undefined()
	}
	return RatioValue{v: v, state: ratioFinite}
}

func Infinite() RatioValue {
	return RatioValue{v: math.Inf(1), state: ratioInfinite}
}

func Undefined() RatioValue {
	return RatioValue{}
}

func (r RatioValue) IsUndefined() bool { return r.state == ratioUndefined }
func (r RatioValue) IsInfinite() bool  { return r.state == ratioInfinite }

// Float returns the value (+Inf for infinite) and false when undefined.
func (r RatioValue) Float() (float64, bool) {
	return r.v, r.state != ratioUndefined
}

func (r RatioValue) String() string {
	switch r.state {
	case ratioFinite:
		return fmt.Sprintf("%.4f", r.v)
	case ratioInfinite:
		return InfinityToken
	default:
		return "undefined"
	}
}

// MarshalJSON writes a number, the "Infinity" string, or null.
func (r RatioValue) MarshalJSON() ([]byte, error) {
	switch r.state {
	case ratioFinite:
		return json.Marshal(r.v)
	case ratioInfinite:
		return json.Marshal(InfinityToken)
	default:
		return []byte("null"), nil
	}
}

func (r *RatioValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = Undefined()
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != InfinityToken {
			return fmt.Errorf("unknown ratio token %q", s)
		}
		*r = Infinite()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ratio value: %w", err)
	}
	*r = Finite(v)
	return nil
}

// RatioResult is one computed ratio with the literal inputs it was computed from.
type RatioResult struct {
	Name    RatioName         `json:"name"`
	Inputs  map[string]Amount `json:"inputs"`
	Missing []string          `json:"missing,omitempty"`
	Value   RatioValue        `json:"ratio_value"`
}

// RatioSet holds exactly one result per required ratio, in report order.
type RatioSet struct {
	results []RatioResult
}

// NewRatioSet orders results by RequiredRatios and fills any gap with an undefined result,
// so completeness holds for whatever the caller passes in.
func NewRatioSet(results []RatioResult) RatioSet {
	byName := make(map[RatioName]RatioResult, len(results))
	for _, r := range results {
		if _, seen := byName[r.Name]; !seen {
			byName[r.Name] = r
		}
	}
	ordered := make([]RatioResult, 0, len(RequiredRatios))
	for _, name := range RequiredRatios {
		r, ok := byName[name]
		if !ok {
			r = RatioResult{Name: name, Inputs: map[string]Amount{}, Value: Undefined()}
		}
		ordered = append(ordered, r)
	}
	return RatioSet{results: ordered}
}

// Results returns a copy of the ordered results.
func (s RatioSet) Results() []RatioResult {
	out := make([]RatioResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s RatioSet) Get(name RatioName) (RatioResult, bool) {
	for _, r := range s.results {
		if r.Name == name {
			return r, true
		}
	}
	return RatioResult{}, false
}

func (s RatioSet) Len() int { return len(s.results) }

// Subset keeps the results for which keep returns true. The result is a plain slice
// because a partial set is not a RatioSet.
func (s RatioSet) Subset(keep func(RatioResult) bool) []RatioResult {
	var out []RatioResult
	for _, r := range s.results {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// MarshalJSON writes {<ratio_name>: {<input>: value, ..., "ratio_value": v}}.
func (s RatioSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(FlattenRatios(s.results))
}

func (s *RatioSet) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var results []RatioResult
	for name, entry := range raw {
		res := RatioResult{Name: RatioName(name), Inputs: map[string]Amount{}}
		for key, msg := range entry {
			if key == "ratio_value" {
				if err := json.Unmarshal(msg, &res.Value); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				continue
			}
			var a Amount
			if err := json.Unmarshal(msg, &a); err != nil {
				return fmt.Errorf("%s.%s: %w", name, key, err)
			}
			res.Inputs[key] = a
			if a.IsAbsent() {
				res.Missing = append(res.Missing, key)
			}
		}
		sort.Strings(res.Missing)
		results = append(results, res)
	}
	*s = NewRatioSet(results)
	return nil
}

// FlattenRatios renders results in the report wire shape.
func FlattenRatios(results []RatioResult) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(results))
	for _, r := range results {
		entry := make(map[string]interface{}, len(r.Inputs)+1)
		for k, v := range r.Inputs {
			entry[k] = v
		}
		entry["ratio_value"] = r.Value
		out[string(r.Name)] = entry
	}
	return out
}
