package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// pdfText reads the text layer of every page.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		// The PDF parser panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// xlsxToCSV renders every sheet as CSV under a "# sheet: <name>" header line.
func xlsxToCSV(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&buf, "# sheet: %s\n", sheet)
		w := csv.NewWriter(&buf)
		for _, row := range rows {
			if len(row) == 0 {
				continue
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("xlsx sheet %s: %w", sheet, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
