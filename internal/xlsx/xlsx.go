// Package xlsx is the spreadsheet I/O boundary. It reduces workbooks to
// ordered sheets of string cells and writes them back; everything above this
// package works with typed records, not spreadsheet cells.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet as raw string cells. Rows may be ragged: excelize
// trims trailing empty cells, so consumers index defensively.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is an ordered collection of sheets.
type Workbook struct {
	Sheets []Sheet
}

// SheetCount returns the number of sheets.
func (wb *Workbook) SheetCount() int {
	return len(wb.Sheets)
}

// Sheet returns the sheet with the given name.
func (wb *Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range wb.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// Read loads a workbook from disk.
func Read(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", name, path, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// Write saves the given sheets as a workbook at path, in order.
func Write(path string, sheets []Sheet) error {
	f, err := build(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// WriteTo streams the given sheets as a workbook to w. Used by the export
// endpoint so the file never touches disk.
func WriteTo(w io.Writer, sheets []Sheet) error {
	f, err := build(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(sheets []Sheet) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, sheet := range sheets {
		if i == 0 {
			// Rename the default sheet rather than leaving an empty Sheet1.
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return nil, fmt.Errorf("name sheet %q: %w", sheet.Name, err)
			}
		} else {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return nil, fmt.Errorf("add sheet %q: %w", sheet.Name, err)
			}
		}

		for rowIdx, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return nil, fmt.Errorf("sheet %q row %d: %w", sheet.Name, rowIdx+1, err)
			}
			values := make([]any, len(row))
			for i, v := range row {
				values[i] = v
			}
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				return nil, fmt.Errorf("sheet %q row %d: %w", sheet.Name, rowIdx+1, err)
			}
		}
	}

	return f, nil
}
