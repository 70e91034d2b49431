package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/sala/core/student"
)

// Export templates
const (
	TemplateRoster       = "student-roster"
	TemplateImport       = "student-import"
	TemplateGradeSheet   = "grade-sheet"
	TemplateAttendance   = "attendance-csv"
	noHomeroomTeacherYet = "មិនទាន់កំណត់"
)

type Template struct {
	Name        string `json:"name"`
	Format      string `json:"format"`
	Description string `json:"description"`
}

var templates = []Template{
	{Name: TemplateRoster, Format: "xlsx", Description: "Class roster with exam columns"},
	{Name: TemplateImport, Format: "xlsx", Description: "Blank student import sheet"},
	{Name: TemplateGradeSheet, Format: "xlsx", Description: "Monthly grade sheet of a class"},
	{Name: TemplateAttendance, Format: "csv", Description: "Monthly attendance grid of a class"},
}

func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

type Preview struct {
	ClassName         string `json:"class_name"`
	Grade             int    `json:"grade"`
	Section           string `json:"section"`
	AcademicYear      string `json:"academic_year"`
	TotalStudents     int    `json:"total_students"`
	MaleStudents      int    `json:"male_students"`
	FemaleStudents    int    `json:"female_students"`
	ClassInstructor   string `json:"class_instructor"`
	SuggestedFilename string `json:"suggested_filename"`
}

// Preview describes the roster export of a class without generating it.
func (svc *Service) Preview(ctx context.Context, classID string) (Preview, error) {
	cls, err := svc.getClass(ctx, classID)
	if err != nil {
		return Preview{}, err
	}
	roster, err := svc.students.Roster(ctx, cls.ID)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{
		ClassName:         cls.Name,
		Grade:             cls.Grade,
		Section:           cls.Section,
		AcademicYear:      cls.AcademicYear,
		TotalStudents:     len(roster),
		ClassInstructor:   noHomeroomTeacherYet,
		SuggestedFilename: RosterFilename(cls.Name, time.Now()),
	}
	for _, s := range roster {
		if s.IsMale() {
			p.MaleStudents++
		} else {
			p.FemaleStudents++
		}
	}
	if cls.HomeroomTeacherID != "" {
		if t, err := svc.teachers.GetByID(ctx, cls.HomeroomTeacherID); err == nil {
			p.ClassInstructor = t.Name()
		}
	}
	return p, nil
}

func RosterFilename(className string, now time.Time) string {
	return fmt.Sprintf("Students_%s_%s.xlsx", className, now.Format("2006-01-02"))
}

type RosterOptions struct {
	ExamSession string `json:"exam_session"`
	ExamCode    string `json:"exam_code"`
}

var rosterHeader = []string{
	"ល.រ", "គោត្តនាម និងនាម", "ភេទ", "ថ្ងៃខែឆ្នាំកំណើត", "សម័យប្រឡង", "លេខកូដ", "បន្ទប់", "តុ", "ផ្សេងៗ", "ហត្ថលេខា",
}

// WriteRoster writes the roster of a class as an xlsx workbook.
func (svc *Service) WriteRoster(ctx context.Context, w io.Writer, classID string, opts RosterOptions) error {
	cls, err := svc.getClass(ctx, classID)
	if err != nil {
		return err
	}
	roster, err := svc.students.Roster(ctx, cls.ID)
	if err != nil {
		return err
	}

	sw := newSheet(cls.Name)
	defer sw.close()
	sw.set(1, 1, fmt.Sprintf("%s (%s)", cls.Name, cls.AcademicYear))
	sw.header(3, rosterHeader)
	for i, s := range roster {
		r := i + 4
		sw.set(1, r, i+1)
		sw.set(2, r, s.Name())
		sw.set(3, r, genderKh(s))
		if !s.DateOfBirth.IsZero() {
			sw.set(4, r, s.DateOfBirth.Format("02/01/2006"))
		}
		sw.set(5, r, opts.ExamSession)
		sw.set(6, r, opts.ExamCode)
	}
	return sw.write(w)
}

var importHeader = []string{
	"ល.រ", "គោត្តនាម និងនាម", "ភេទ", "ថ្ងៃខែឆ្នាំកំណើត", "ថ្នាក់ចាស់", "ជាប់/ធ្លាក់",
	"សម័យប្រឡង", "មណ្ឌលប្រឡង", "បន្ទប់", "តុ", "ផ្សេងៗ",
}

// WriteImportTemplate writes a blank student import sheet matching the columns read by the student import.
func WriteImportTemplate(w io.Writer) error {
	sw := newSheet("Students")
	defer sw.close()
	sw.header(1, importHeader)
	return sw.write(w)
}

func genderKh(s student.Student) string {
	if s.IsMale() {
		return "ប្រុស"
	}
	return "ស្រី"
}

// sheetWriter writes a single sheet workbook.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func newSheet(name string) *sheetWriter {
	f := excelize.NewFile()
	sw := &sheetWriter{f: f, sheet: "Sheet1"}
	if name != "" {
		if err := f.SetSheetName("Sheet1", name); err == nil {
			sw.sheet = name
		}
	}
	return sw
}

func (sw *sheetWriter) set(col, row int, val interface{}) {
	if sw.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		sw.err = err
		return
	}
	sw.err = sw.f.SetCellValue(sw.sheet, cell, val)
}

func (sw *sheetWriter) header(row int, titles []string) {
	for i, t := range titles {
		sw.set(i+1, row, t)
	}
	if bold, err := sw.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(titles), row)
		_ = sw.f.SetCellStyle(sw.sheet, first, last, bold)
	}
	_ = sw.f.SetColWidth(sw.sheet, "B", "B", 28)
}

func (sw *sheetWriter) write(w io.Writer) error {
	if sw.err != nil {
		return errors.Wrap(sw.err, "filling sheet")
	}
	return errors.Wrap(sw.f.Write(w), "writing workbook")
}

func (sw *sheetWriter) close() { _ = sw.f.Close() }
