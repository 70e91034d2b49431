package student

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/sala/core"
)

var (
	ErrEmptyWorkbook = core.NewValidationError(errors.New("the workbook has no sheet"))

	headerMarker   = "ល.រ"
	headerMarkerEn = "No"
)

// Import sheet columns (0-based), after the row number.
const (
	colName = iota + 1
	colGender
	colDateOfBirth
	colPreviousGrade
	colPassStatus
	colExamSession
	colExamCenter
	colExamRoom
	colExamDesk
	colRemarks
)

// ImportedRow is a student read from an import sheet.
type ImportedRow struct {
	Line    int     `json:"line"`
	Student Student `json:"student"`
}

// ParseExcel reads students from the first sheet of an xlsx workbook. Data starts after the header row,
// which holds "ល.រ" or "No". Rows without a name are skipped.
func ParseExcel(r io.Reader) ([]ImportedRow, []BulkError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, core.NewValidationError(errors.Wrap(err, "reading workbook"))
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading rows")
	}

	start := 0
	for i, row := range rows {
		if isHeaderRow(row) {
			start = i + 1
		}
	}

	var (
		imported []ImportedRow
		errs     []BulkError
	)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		cell := func(col int) string {
			if col < len(row) {
				return core.CleanString(row[col])
			}
			return ""
		}
		line := i + 1 // sheet rows are 1-based

		name := cell(colName)
		if name == "" {
			continue
		}
		s := Student{
			KhmerName:     name,
			Gender:        GenderMale,
			PreviousGrade: cell(colPreviousGrade),
			Remarks:       cell(colRemarks),
			Grade9Exam: ExamInfo{
				PassStatus: cell(colPassStatus),
				Session:    cell(colExamSession),
				Center:     cell(colExamCenter),
				Room:       cell(colExamRoom),
				Desk:       cell(colExamDesk),
			},
		}
		s.LastName, s.FirstName = splitName(name)
		if g, ok := ParseGender(cell(colGender)); ok {
			s.Gender = g
		} else if strings.Contains(cell(colGender), "ស្រី") {
			s.Gender = GenderFemale
		}

		dob, err := parseSheetDate(cell(colDateOfBirth))
		if err != nil {
			errs = append(errs, BulkError{Row: line, Error: "invalid date of birth " + strconv.Quote(cell(colDateOfBirth))})
			continue
		}
		s.DateOfBirth = dob
		imported = append(imported, ImportedRow{Line: line, Student: s})
	}
	return imported, errs, nil
}

func isHeaderRow(row []string) bool {
	for _, c := range row {
		c = strings.TrimSpace(c)
		if strings.Contains(c, headerMarker) || c == headerMarkerEn {
			return true
		}
	}
	return false
}

// parseSheetDate parses a date typed as text or stored as an Excel serial number.
func parseSheetDate(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, core.ErrInvalidDate
	}
	if serial, err := strconv.ParseFloat(val, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, core.ErrInvalidDate
		}
		return core.TruncateDay(t), nil
	}
	return core.ParseDate(val)
}

// ImportExcel creates the students of an import sheet in a class. Each row is saved on its own.
func (svc *Service) ImportExcel(ctx context.Context, classID string, r io.Reader) (BulkResult, error) {
	if _, err := svc.checkClass(ctx, classID); err != nil {
		return BulkResult{}, err
	}
	imported, rowErrs, err := ParseExcel(r)
	if err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Total: len(imported) + len(rowErrs), Failed: len(rowErrs), Errors: []BulkError{}}
	result.Errors = append(result.Errors, rowErrs...)
	for _, row := range imported {
		s := row.Student
		s.ClassID = classID
		if _, err := svc.create(ctx, s); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{Row: row.Line, Error: errors.Cause(err).Error()})
			continue
		}
		result.Created++
	}
	return result, nil
}
