package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"statement_report/pkg/models"
	"strconv"
	"strings"
)

var (
	numeralRe  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?`)
	unitRe     = regexp.MustCompile(`^\s*(thousands?|k|millions?|mm|mn|m|billions?|bn|b)\b`)
	currencyRe = regexp.MustCompile(`^\s*(?:[$€£¥]|(?:usd|eur|gbp|jpy|cny|rmb|chf|cad|aud|hkd|inr)\b)`)
)

var unitScale = map[string]float64{
	"thousand": 1e3, "thousands": 1e3, "k": 1e3,
	"million": 1e6, "millions": 1e6, "mm": 1e6, "mn": 1e6, "m": 1e6,
	"billion": 1e9, "billions": 1e9, "bn": 1e9, "b": 1e9,
}

// ParseAmount coerces one raw schema value into an Amount.
// Numbers pass through; strings such as "1,200 USD", "$1.2 million" or
// "(350)" are reduced to their numeral; anything without a numeral is absent.
func ParseAmount(v interface{}) models.Amount {
	switch x := v.(type) {
	case nil:
		return models.Absent()
	case float64:
		return models.Value(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return models.Absent()
		}
		return models.Value(f)
	case int:
		return models.Value(float64(x))
	case int64:
		return models.Value(float64(x))
	case string:
		return parseAmountText(x)
	default:
		return models.Absent()
	}
}

func parseAmountText(s string) models.Amount {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Absent()
	}

	locs := numeralRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return models.Absent()
	}
	i := pickNumeral(s, locs)
	loc := locs[i]

	f, err := strconv.ParseFloat(strings.ReplaceAll(s[loc[0]:loc[1]], ",", ""), 64)
	if err != nil {
		// Out-of-range numerals are absent, not ±Inf.
		return models.Absent()
	}

	from := 0
	if i > 0 {
		from = locs[i-1][1]
	}
	if strings.ContainsAny(s[from:loc[0]], "-−(") {
		f = -f
	}

	rest := strings.ToLower(s[loc[1]:])
	if m := unitRe.FindStringSubmatch(rest); m != nil {
		// Rounded so 1.2 million is exactly 1200000.
		f = roundTo(f*unitScale[m[1]], 6)
	}
	return models.Value(f)
}

// pickNumeral chooses which numeral carries the amount when a string holds
// several, as in "FY2023: 1,500". A numeral followed by a unit or currency
// wins; otherwise the last one does.
func pickNumeral(s string, locs [][]int) int {
	for i, loc := range locs {
		rest := strings.ToLower(s[loc[1]:])
		if unitRe.MatchString(rest) || currencyRe.MatchString(rest) {
			return i
		}
	}
	return len(locs) - 1
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	r := math.Round(f*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return f
	}
	return r
}

// ParseBool reads the availability flags. Only an explicit affirmative is true.
func ParseBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1", "available":
			return true
		}
	case float64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	}
	return false
}

// ParseString reads a header or details field.
func ParseString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
