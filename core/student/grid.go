package student

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

// Grid fields, in the order of the bulk entry sheet columns.
const (
	FieldName               = "name"
	FieldGender             = "gender"
	FieldDateOfBirth        = "date_of_birth"
	FieldPreviousGrade      = "previous_grade"
	FieldPreviousSchool     = "previous_school"
	FieldRepeatingGrade     = "repeating_grade"
	FieldTransferredFrom    = "transferred_from"
	FieldGrade9ExamSession  = "grade9_exam_session"
	FieldGrade9ExamCenter   = "grade9_exam_center"
	FieldGrade9ExamRoom     = "grade9_exam_room"
	FieldGrade9ExamDesk     = "grade9_exam_desk"
	FieldGrade12ExamSession = "grade12_exam_session"
	FieldGrade12ExamCenter  = "grade12_exam_center"
	FieldGrade12ExamRoom    = "grade12_exam_room"
	FieldGrade12ExamDesk    = "grade12_exam_desk"
	FieldGrade12Track       = "grade12_track"
	FieldRemarks            = "remarks"
)

var ErrUnknownField = core.NewValidationError(nil, core.FieldError{Field: "start_field", Error: "unknown field"})

// FieldOrder returns the grid columns of a grade level. Exam columns only exist from the grades
// that sit the matching national exam.
func FieldOrder(grade int) []string {
	fields := []string{
		FieldName, FieldGender, FieldDateOfBirth,
		FieldPreviousGrade, FieldPreviousSchool, FieldRepeatingGrade, FieldTransferredFrom,
	}
	if grade >= 9 {
		fields = append(fields, FieldGrade9ExamSession, FieldGrade9ExamCenter, FieldGrade9ExamRoom, FieldGrade9ExamDesk)
	}
	if grade >= 12 {
		fields = append(fields,
			FieldGrade12ExamSession, FieldGrade12ExamCenter, FieldGrade12ExamRoom, FieldGrade12ExamDesk, FieldGrade12Track,
		)
	}
	return append(fields, FieldRemarks)
}

// Row is a line of the bulk entry grid. Rows with an ID update an existing student.
type Row struct {
	No    int               `json:"no"`
	ID    string            `json:"id,omitempty"`
	Cells map[string]string `json:"cells"`
}

func (r Row) Get(field string) string {
	return core.CleanString(r.Cells[field])
}

func (r *Row) Set(field, val string) {
	if r.Cells == nil {
		r.Cells = make(map[string]string)
	}
	r.Cells[field] = val
}

// IsBlank reports whether no cell of the row holds a value.
func (r Row) IsBlank() bool {
	for _, v := range r.Cells {
		if core.CleanString(v) != "" {
			return false
		}
	}
	return true
}

// IsComplete reports whether the required cells are filled.
func (r Row) IsComplete() bool {
	return r.Get(FieldName) != "" && r.Get(FieldGender) != "" && r.Get(FieldDateOfBirth) != ""
}

// ParsePaste splits clipboard text copied from a spreadsheet into rows of cells.
func ParsePaste(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	// spreadsheets end the copied block with a line break
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	data := make([][]string, 0, len(lines))
	for _, line := range lines {
		data = append(data, strings.Split(line, "\t"))
	}
	return data
}

// ApplyPaste writes `data` into `rows` from `startRow` and `startField`, adding rows when needed.
// Cells beyond the last column of the grade are dropped.
func ApplyPaste(rows []Row, startRow int, startField string, data [][]string, grade int) ([]Row, error) {
	fields := FieldOrder(grade)
	start := -1
	for i, f := range fields {
		if f == startField {
			start = i
			break
		}
	}
	if start < 0 {
		return rows, ErrUnknownField
	}
	if startRow < 0 {
		startRow = 0
	}

	for len(rows) < startRow+len(data) {
		rows = append(rows, Row{No: len(rows) + 1, Cells: make(map[string]string)})
	}
	for offset, cells := range data {
		row := &rows[startRow+offset]
		for col, val := range cells {
			if start+col >= len(fields) {
				break
			}
			row.Set(fields[start+col], strings.TrimSpace(val))
		}
	}
	return rows, nil
}

// ValidateRows returns the complete rows of the grid and the errors of the others.
// Blank rows are ignored.
func ValidateRows(rows []Row) ([]Row, []BulkError) {
	valid := make([]Row, 0, len(rows))
	var errs []BulkError
	for i, row := range rows {
		if row.No == 0 {
			row.No = i + 1
		}
		if row.IsBlank() {
			continue
		}
		if !row.IsComplete() {
			errs = append(errs, BulkError{Row: row.No, Error: "name, gender and date of birth are required"})
			continue
		}
		if _, ok := ParseGender(row.Get(FieldGender)); !ok {
			errs = append(errs, BulkError{Row: row.No, Error: fmt.Sprintf("invalid gender %q", row.Get(FieldGender))})
			continue
		}
		if _, err := core.ParseDate(row.Get(FieldDateOfBirth)); err != nil {
			errs = append(errs, BulkError{Row: row.No, Error: fmt.Sprintf("invalid date of birth %q", row.Get(FieldDateOfBirth))})
			continue
		}
		valid = append(valid, row)
	}
	return valid, errs
}

// apply writes the cells of a valid row into `s`. Only the columns of the grade that are present in
// the row are written. The Khmer name is kept in sync only when the name cell was edited or the
// student already had one.
func (r Row) apply(s *Student, grade int) {
	for _, f := range FieldOrder(grade) {
		if _, ok := r.Cells[f]; !ok {
			continue
		}
		val := r.Get(f)
		switch f {
		case FieldName:
			if val != s.Name() || s.KhmerName != "" {
				s.KhmerName = val
				s.LastName, s.FirstName = splitName(val)
			}
		case FieldGender:
			s.Gender, _ = ParseGender(val)
		case FieldDateOfBirth:
			s.DateOfBirth, _ = core.ParseDate(val)
		case FieldPreviousGrade:
			s.PreviousGrade = val
		case FieldPreviousSchool:
			s.PreviousSchool = val
		case FieldRepeatingGrade:
			s.RepeatingGrade = val
		case FieldTransferredFrom:
			s.TransferredFrom = val
		case FieldGrade9ExamSession:
			s.Grade9Exam.Session = val
		case FieldGrade9ExamCenter:
			s.Grade9Exam.Center = val
		case FieldGrade9ExamRoom:
			s.Grade9Exam.Room = val
		case FieldGrade9ExamDesk:
			s.Grade9Exam.Desk = val
		case FieldGrade12ExamSession:
			s.Grade12Exam.Session = val
		case FieldGrade12ExamCenter:
			s.Grade12Exam.Center = val
		case FieldGrade12ExamRoom:
			s.Grade12Exam.Room = val
		case FieldGrade12ExamDesk:
			s.Grade12Exam.Desk = val
		case FieldGrade12Track:
			s.Grade12Track = val
		case FieldRemarks:
			s.Remarks = val
		}
	}
}

// RowOf returns the grid row of an existing student.
func RowOf(no int, s Student, grade int) Row {
	row := Row{No: no, ID: s.ID, Cells: make(map[string]string)}
	for _, f := range FieldOrder(grade) {
		var val string
		switch f {
		case FieldName:
			val = s.Name()
		case FieldGender:
			val = s.Gender
		case FieldDateOfBirth:
			if !s.DateOfBirth.IsZero() {
				val = s.DateOfBirth.Format("02/01/2006")
			}
		case FieldPreviousGrade:
			val = s.PreviousGrade
		case FieldPreviousSchool:
			val = s.PreviousSchool
		case FieldRepeatingGrade:
			val = s.RepeatingGrade
		case FieldTransferredFrom:
			val = s.TransferredFrom
		case FieldGrade9ExamSession:
			val = s.Grade9Exam.Session
		case FieldGrade9ExamCenter:
			val = s.Grade9Exam.Center
		case FieldGrade9ExamRoom:
			val = s.Grade9Exam.Room
		case FieldGrade9ExamDesk:
			val = s.Grade9Exam.Desk
		case FieldGrade12ExamSession:
			val = s.Grade12Exam.Session
		case FieldGrade12ExamCenter:
			val = s.Grade12Exam.Center
		case FieldGrade12ExamRoom:
			val = s.Grade12Exam.Room
		case FieldGrade12ExamDesk:
			val = s.Grade12Exam.Desk
		case FieldGrade12Track:
			val = s.Grade12Track
		case FieldRemarks:
			val = s.Remarks
		}
		row.Cells[f] = val
	}
	return row
}

// BulkError is the failure of a single grid row.
type BulkError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

func (e BulkError) String() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Error)
}

type BulkResult struct {
	Total   int         `json:"total"`
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors"`
}

// Grid returns the bulk entry rows of the students of a class.
func (svc *Service) Grid(ctx context.Context, classID string) ([]Row, []string, error) {
	cls, err := svc.checkClass(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	students, err := svc.Roster(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]Row, 0, len(students))
	for i, s := range students {
		rows = append(rows, RowOf(i+1, s, cls.Grade))
	}
	return rows, FieldOrder(cls.Grade), nil
}

// BulkSave creates or updates the students of a class from grid rows. Each row is saved on its own:
// a failing row is reported and the others are still saved.
func (svc *Service) BulkSave(ctx context.Context, classID string, rows []Row) (BulkResult, error) {
	cls, err := svc.checkClass(ctx, classID)
	if err != nil {
		return BulkResult{}, err
	}

	valid, rowErrs := ValidateRows(rows)
	result := BulkResult{Total: len(valid) + len(rowErrs), Errors: []BulkError{}}
	result.Failed = len(rowErrs)
	result.Errors = append(result.Errors, rowErrs...)

	for _, row := range valid {
		if row.ID != "" {
			err := svc.updateFromRow(ctx, classID, cls.Grade, row)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, BulkError{Row: row.No, Error: err.Error()})
				continue
			}
			result.Updated++
			continue
		}

		s := Student{ClassID: classID}
		row.apply(&s, cls.Grade)
		if _, err := svc.create(ctx, s); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{Row: row.No, Error: errors.Cause(err).Error()})
			continue
		}
		result.Created++
	}
	return result, nil
}

func (svc *Service) updateFromRow(ctx context.Context, classID string, grade int, row Row) error {
	s, err := svc.repo.GetStudent(ctx, GetFilter{ID: row.ID})
	if err != nil {
		return err
	}
	if s.ClassID != classID {
		return ErrNotFound
	}
	row.apply(&s, grade)
	s.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateStudent(ctx, s)
	return errors.Cause(err)
}
