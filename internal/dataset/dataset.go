// Package dataset loads the venue workbook, one sheet per city, and renders
// it as compact markdown for the model context.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet holds one city's venues. Every row has the same width as Header.
type Sheet struct {
	City   string
	Header []string
	Rows   [][]string
}

// Dataset is the parsed workbook, sheets in workbook order.
type Dataset struct {
	Path   string
	Sheets []Sheet
}

// Load parses the workbook at path. The first non-blank row of each sheet is
// its header; blank rows are skipped and short rows are padded.
func Load(path string) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	ds := &Dataset{Path: path}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q of %s: %w", name, path, err)
		}
		sheet, ok := buildSheet(name, rows)
		if !ok {
			continue
		}
		ds.Sheets = append(ds.Sheets, sheet)
	}

	if len(ds.Sheets) == 0 {
		return nil, errors.New("dataset " + path + " has no non-empty sheets")
	}
	return ds, nil
}

func buildSheet(city string, rows [][]string) (Sheet, bool) {
	sheet := Sheet{City: strings.TrimSpace(city)}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if sheet.Header == nil {
			sheet.Header = trimAll(row)
			continue
		}
		sheet.Rows = append(sheet.Rows, trimAll(row))
	}
	if sheet.Header == nil {
		return Sheet{}, false
	}

	width := len(sheet.Header)
	for _, row := range sheet.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	sheet.Header = pad(sheet.Header, width)
	for i := range sheet.Rows {
		sheet.Rows[i] = pad(sheet.Rows[i], width)
	}
	return sheet, true
}

// Cities lists the sheet names.
func (d *Dataset) Cities() []string {
	cities := make([]string, 0, len(d.Sheets))
	for _, s := range d.Sheets {
		cities = append(cities, s.City)
	}
	return cities
}

// Sheet finds a city's sheet, ignoring case.
func (d *Dataset) Sheet(city string) (Sheet, bool) {
	for _, s := range d.Sheets {
		if strings.EqualFold(s.City, strings.TrimSpace(city)) {
			return s, true
		}
	}
	return Sheet{}, false
}

// Digest renders every sheet as a markdown table. maxRows limits the rows per
// sheet; zero means no limit.
func (d *Dataset) Digest(maxRows int) string {
	var sb strings.Builder
	for i, s := range d.Sheets {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## Venue data: %s\n\n", s.City)
		writeRow(&sb, s.Header)

		sb.WriteString("|")
		for range s.Header {
			sb.WriteString(" --- |")
		}
		sb.WriteString("\n")

		rows := s.Rows
		if maxRows > 0 && len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		for _, row := range rows {
			writeRow(&sb, row)
		}
		if omitted := len(s.Rows) - len(rows); omitted > 0 {
			fmt.Fprintf(&sb, "\n(%d more rows omitted)\n", omitted)
		}
	}
	return sb.String()
}

var cellEscaper = strings.NewReplacer("|", "\\|", "\r\n", " ", "\n", " ")

func writeRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		sb.WriteString(" ")
		sb.WriteString(cellEscaper.Replace(c))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func pad(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
