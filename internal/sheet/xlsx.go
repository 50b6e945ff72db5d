// Package sheet reads and writes single-sheet XLSX workbooks.
package sheet

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadOptions selects the sheet to read.
type ReadOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// Read reads an XLSX file and returns the rows of one sheet as strings.
// Fully blank rows are dropped.
func Read(path string, opts ReadOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open file")
	}

	s, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range s.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// Table is a header plus data rows. Cells may be string, int or float64;
// other values are written with fmt.Sprint.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Write saves t as a workbook with a single sheet.
func Write(path string, t Table) error {
	f, err := build(t)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "sheet: save %s", path)
}

// Encode writes t as a workbook to w.
func Encode(w io.Writer, t Table) error {
	f, err := build(t)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "sheet: write")
}

func build(t Table) (*xlsx.File, error) {
	name := t.Name
	if name == "" {
		name = "Sheet1"
	}
	f := xlsx.NewFile()
	s, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: add sheet %s", name)
	}

	header := s.AddRow()
	for _, h := range t.Header {
		header.AddCell().SetString(h)
	}
	for _, values := range t.Rows {
		row := s.AddRow()
		for _, v := range values {
			cell := row.AddCell()
			switch x := v.(type) {
			case string:
				cell.SetString(x)
			case int:
				cell.SetInt(x)
			case float64:
				cell.SetFloat(x)
			default:
				cell.SetString(fmt.Sprint(x))
			}
		}
	}
	return f, nil
}

func getSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("sheet: %q not found", opts.SheetName)
		}
		return s, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet: index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
