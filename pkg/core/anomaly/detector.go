// Package anomaly flags outlying rows in tabular financial data.
//
// Every numeric column is standardised, each row is scored by its mean
// squared z-score, and rows scoring above mean + k·σ of all scores are
// anomalies.
package anomaly

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"statement_report/pkg/core/extract"
	"strings"
	"unicode/utf8"

	"github.com/montanaflynn/stats"
)

// DefaultMultiplier is k in the mean + k·σ threshold.
const DefaultMultiplier = 1.0

// GrowthColumns is the feature set for year-over-year growth tables.
var GrowthColumns = []string{
	"Income_Growth", "Expenditure_Growth", "PBT_Growth", "Effective_Tax_Rate",
	"EPS_Growth", "FE_Earnings_Growth", "FE_Outgo_Growth",
}

var (
	ErrNoNumericColumns = errors.New("no numeric columns to score")
	ErrTooFewRows       = errors.New("at least two complete rows are required")
)

// MissingColumnsError lists required columns absent from the header.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Record is one flagged row. Row is 1-based and excludes the header.
type Record struct {
	Row    int                `json:"row"`
	Values map[string]float64 `json:"values"`
	Score  float64            `json:"score"`
}

type Result struct {
	Columns      []string `json:"columns"`
	Scored       int      `json:"scored"`
	Skipped      int      `json:"skipped"`
	Threshold    float64  `json:"threshold"`
	NumAnomalies int      `json:"num_anomalies"`
	Anomalies    []Record `json:"anomalies"`
}

type Detector struct {
	multiplier float64
	required   []string
}

type Option func(*Detector)

// WithMultiplier sets k. Non-positive values keep the default.
func WithMultiplier(k float64) Option {
	return func(d *Detector) {
		if k > 0 {
			d.multiplier = k
		}
	}
}

// WithRequiredColumns restricts scoring to cols and fails when any is missing.
func WithRequiredColumns(cols ...string) Option {
	return func(d *Detector) { d.required = cols }
}

func New(opts ...Option) *Detector {
	d := &Detector{multiplier: DefaultMultiplier}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectCSV reads a CSV table with a header row and scores it.
func (d *Detector) DetectCSV(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrTooFewRows
	}
	return d.Detect(rows[0], rows[1:])
}

// Detect scores rows under header. Cells are read like extracted amounts,
// so "1,200" and "(35)" are numeric.
func (d *Detector) Detect(header []string, rows [][]string) (*Result, error) {
	cols, err := d.columns(header, rows)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = strings.TrimSpace(header[c])
	}

	// Rows missing any scored value are skipped rather than imputed.
	var (
		matrix [][]float64
		rowIdx []int
	)
	for i, row := range rows {
		vals, ok := numericCells(row, cols)
		if !ok {
			continue
		}
		matrix = append(matrix, vals)
		rowIdx = append(rowIdx, i+1)
	}
	if len(matrix) < 2 {
		return nil, ErrTooFewRows
	}

	scores, err := scoreRows(matrix)
	if err != nil {
		return nil, err
	}
	mean, err := stats.Mean(scores)
	if err != nil {
		return nil, err
	}
	sd, err := stats.StandardDeviationPopulation(scores)
	if err != nil {
		return nil, err
	}
	threshold := mean + d.multiplier*sd

	res := &Result{
		Columns:   names,
		Scored:    len(matrix),
		Skipped:   len(rows) - len(matrix),
		Threshold: threshold,
		Anomalies: []Record{},
	}
	for i, score := range scores {
		if score <= threshold {
			continue
		}
		values := make(map[string]float64, len(names))
		for j, name := range names {
			values[name] = matrix[i][j]
		}
		res.Anomalies = append(res.Anomalies, Record{Row: rowIdx[i], Values: values, Score: score})
	}
	res.NumAnomalies = len(res.Anomalies)
	return res, nil
}

// columns picks the scored column indexes: the required set when given,
// otherwise every column whose non-empty cells all read as numbers.
func (d *Detector) columns(header []string, rows [][]string) ([]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	if len(d.required) > 0 {
		var cols []int
		var missing []string
		for _, name := range d.required {
			i, ok := index[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			cols = append(cols, i)
		}
		if len(missing) > 0 {
			return nil, &MissingColumnsError{Missing: missing}
		}
		return cols, nil
	}

	var cols []int
	for i := range header {
		numeric, seen := true, false
		for _, row := range rows {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			seen = true
			if _, ok := cellValue(row[i]); !ok {
				numeric = false
				break
			}
		}
		if numeric && seen {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return nil, ErrNoNumericColumns
	}
	return cols, nil
}

func numericCells(row []string, cols []int) ([]float64, bool) {
	vals := make([]float64, len(cols))
	for j, c := range cols {
		if c >= len(row) {
			return nil, false
		}
		v, ok := cellValue(row[c])
		if !ok {
			return nil, false
		}
		vals[j] = v
	}
	return vals, true
}

// cellValue reads one cell. It is stricter than ParseAmount: a cell must
// begin like a number, so labels such as "FY2023" are not numeric.
func cellValue(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	if r, _ := utf8.DecodeRuneInString(cell); !strings.ContainsRune("0123456789.-−($€£¥+", r) {
		return 0, false
	}
	return extract.ParseAmount(cell).Float()
}

// scoreRows returns each row's mean squared z-score across columns.
// A constant column contributes nothing.
func scoreRows(matrix [][]float64) ([]float64, error) {
	width := len(matrix[0])
	means := make([]float64, width)
	sds := make([]float64, width)
	column := make([]float64, len(matrix))
	for j := 0; j < width; j++ {
		for i := range matrix {
			column[i] = matrix[i][j]
		}
		m, err := stats.Mean(column)
		if err != nil {
			return nil, err
		}
		sd, err := stats.StandardDeviationPopulation(column)
		if err != nil {
			return nil, err
		}
		means[j], sds[j] = m, sd
	}

	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		var sum float64
		for j, v := range row {
			if sds[j] == 0 || math.IsNaN(sds[j]) {
				continue
			}
			z := (v - means[j]) / sds[j]
			sum += z * z
		}
		scores[i] = sum / float64(width)
	}
	return scores, nil
}
