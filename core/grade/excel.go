package grade

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
)

const sheetName = "Grades"

var (
	ErrEmptyWorkbook = core.NewValidationError(errors.New("the workbook has no sheet"))
	ErrNoHeader      = core.NewValidationError(errors.New("no header row with a name column was found"))

	nameHeaders = []string{"ឈ្មោះ", "គោត្តនាម និងនាម", "Name"}
)

// Grade sheet columns (1-based), before the subjects.
const (
	colNo = iota + 1
	colName
	colGender
	colFirstSubject
)

// WriteExcel writes a grid as an xlsx workbook: one row per student, one column per subject
// followed by the totals.
func WriteExcel(w io.Writer, grid Grid) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	set := func(col, row int, val interface{}) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetName, cell, val)
	}

	set(1, 1, fmt.Sprintf("%s - %s %d", grid.ClassName, grid.Month, grid.Year))
	header := []string{"No", "Name", "Gender"}
	for _, s := range grid.Subjects {
		header = append(header, s.ShortCode)
	}
	header = append(header, "Total", "Average", "Level", "Rank", "Absent", "Permission")
	for i, h := range header {
		set(i+1, 3, h)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 3)
		_ = f.SetCellStyle(sheetName, "A3", last, bold)
	}
	_ = f.SetColWidth(sheetName, "B", "B", 28)

	for i, st := range grid.Students {
		r := i + 4
		set(colNo, r, i+1)
		set(colName, r, st.StudentName)
		set(colGender, r, st.Gender)
		col := colFirstSubject
		for _, s := range grid.Subjects {
			if cell := st.Grades[s.ID]; cell.Score != nil {
				set(col, r, *cell.Score)
			}
			col++
		}
		for _, v := range []interface{}{st.TotalScore, st.Average, st.GradeLevel, st.Rank, st.Absent, st.Permission} {
			set(col, r, v)
			col++
		}
	}
	return errors.Wrap(f.Write(w), "writing workbook")
}

// ExcelFilename names the xlsx export of a grid.
func ExcelFilename(grid Grid) string {
	return fmt.Sprintf("grades_%s_%d-%02d.xlsx", grid.ClassName, grid.Year, grid.MonthNumber)
}

// ImportError is the failure of a single sheet row.
type ImportError struct {
	Row         int    `json:"row"`
	StudentName string `json:"student_name"`
	Error       string `json:"error"`
}

type ImportResult struct {
	TotalStudents    int           `json:"total_students"`
	ImportedStudents int           `json:"imported_students"`
	ErrorStudents    int           `json:"error_students"`
	SavedScores      int           `json:"saved_scores"`
	Errors           []ImportError `json:"errors"`
}

// ImportExcel reads the scores of a class for a month from a grade sheet. Subject columns are matched
// by short code or code in the header row and students by name.
func (svc *Service) ImportExcel(ctx context.Context, classID string, p attendance.Period, r io.Reader) (ImportResult, error) {
	grid, err := svc.Grid(ctx, classID, p)
	if err != nil {
		return ImportResult{}, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportResult{}, core.NewValidationError(errors.Wrap(err, "reading workbook"))
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportResult{}, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportResult{}, errors.Wrap(err, "reading rows")
	}

	headerIdx := -1
	for i, row := range rows {
		if len(row) > colName-1 && isNameHeader(row[colName-1]) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return ImportResult{}, ErrNoHeader
	}

	subjectCols := make(map[int]string) // 0-based column -> subject ID
	for c, h := range rows[headerIdx] {
		h = strings.TrimSpace(h)
		for _, s := range grid.Subjects {
			if h != "" && (strings.EqualFold(h, s.ShortCode) || strings.EqualFold(h, s.Code)) {
				subjectCols[c] = s.ID
			}
		}
	}

	byName := make(map[string][]string, len(grid.Students))
	for _, st := range grid.Students {
		byName[st.StudentName] = append(byName[st.StudentName], st.StudentID)
	}

	result := ImportResult{Errors: []ImportError{}}
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < colName {
			continue
		}
		name := core.CleanString(row[colName-1])
		if name == "" {
			continue
		}
		result.TotalStudents++
		fail := func(msg string) {
			result.ErrorStudents++
			result.Errors = append(result.Errors, ImportError{Row: i + 1, StudentName: name, Error: msg})
		}

		ids := byName[name]
		if len(ids) != 1 {
			if len(ids) == 0 {
				fail("student not found in class")
			} else {
				fail("several students have this name")
			}
			continue
		}

		var inputs []ScoreInput
		badCell := ""
		for c, subjectID := range subjectCols {
			if c >= len(row) {
				continue
			}
			val := core.NormalizeDigits(strings.TrimSpace(row[c]))
			if val == "" {
				continue
			}
			score, err := strconv.ParseFloat(val, 64)
			if err != nil {
				badCell = val
				break
			}
			inputs = append(inputs, ScoreInput{StudentID: ids[0], SubjectID: subjectID, Score: &score})
		}
		if badCell != "" {
			fail(fmt.Sprintf("invalid score %q", badCell))
			continue
		}

		saved, err := svc.BulkSave(ctx, classID, p, inputs)
		if err != nil {
			return result, err
		}
		result.SavedScores += saved.SavedCount
		if saved.ErrorCount > 0 {
			fail(saved.Errors[0].Error)
			continue
		}
		result.ImportedStudents++
	}
	return result, nil
}

func isNameHeader(s string) bool {
	s = strings.TrimSpace(s)
	for _, h := range nameHeaders {
		if strings.EqualFold(s, h) {
			return true
		}
	}
	return false
}
