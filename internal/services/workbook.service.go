package services

import (
	"github.com/xuri/excelize/v2"
)

// Workbook is a read-only spreadsheet addressed by sheet name.
type Workbook interface {
	Rows(sheet string) ([][]string, error)
	Close() error
}

// WorkbookOpener opens the workbook stored at path.
type WorkbookOpener func(path string) (Workbook, error)

type excelWorkbook struct {
	file *excelize.File
}

func OpenExcelWorkbook(path string) (Workbook, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &excelWorkbook{file: file}, nil
}

func (w *excelWorkbook) Rows(sheet string) ([][]string, error) {
	return w.file.GetRows(sheet)
}

func (w *excelWorkbook) Close() error {
	return w.file.Close()
}
