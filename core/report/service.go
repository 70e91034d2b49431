// Package report builds the school reports and exports from the grade, attendance and student records.
package report

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

var (
	// errors
	ErrClassNotFound   = core.NewNotFoundError("class not found")
	ErrNoClassInGrade  = core.NewNotFoundError("no classes found for this grade")
	ErrNoPages         = core.NewValidationError(nil, core.FieldError{Field: "pages", Error: "at least one page is required"})
	ErrSameClass       = core.NewValidationError(nil, core.FieldError{Field: "class2_id", Error: "select two different classes"})
	ErrInvalidRoom     = core.NewValidationError(nil, core.FieldError{Field: "room_number", Error: "enter a room number"})
	ErrUnknownTemplate = core.NewNotFoundError("template not found")
)

type (
	SchoolDirectory interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
		QueryClasses(ctx context.Context, filter school.ClassFilter) ([]school.Class, error)
		QuerySubjects(ctx context.Context, filter school.SubjectFilter) ([]school.Subject, error)
	}

	GradeGridder interface {
		Grid(ctx context.Context, classID string, p attendance.Period) (grade.Grid, error)
		Query(ctx context.Context, filter grade.QueryFilter) ([]grade.Grade, error)
	}

	AttendanceQuerier interface {
		Query(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Attendance, error)
	}

	StudentDirectory interface {
		Roster(ctx context.Context, classID string) ([]student.Student, error)
		Query(ctx context.Context, filter student.QueryFilter) ([]student.Student, error)
		GetByID(ctx context.Context, id string) (student.Student, error)
	}

	TeacherDirectory interface {
		Query(ctx context.Context, filter teacher.QueryFilter) ([]teacher.Teacher, error)
		GetByID(ctx context.Context, id string) (teacher.Teacher, error)
	}

	AccountCounter interface {
		Count(ctx context.Context, filter *user.QueryFilter) (int, error)
	}

	Service struct {
		school     SchoolDirectory
		grades     GradeGridder
		attendance AttendanceQuerier
		students   StudentDirectory
		teachers   TeacherDirectory
		accounts   AccountCounter
	}
)

func NewService(
	sch SchoolDirectory,
	grades GradeGridder,
	att AttendanceQuerier,
	students StudentDirectory,
	teachers TeacherDirectory,
	accounts AccountCounter,
) *Service {
	return &Service{
		school:     sch,
		grades:     grades,
		attendance: att,
		students:   students,
		teachers:   teachers,
		accounts:   accounts,
	}
}

func (svc *Service) getClass(ctx context.Context, classID string) (school.Class, error) {
	cls, err := svc.school.GetClass(ctx, classID)
	if err != nil {
		if core.IsNotFound(err) {
			return school.Class{}, ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return cls, nil
}

// MonthlyReport returns the scores, averages, ranks and absences of a class for a month.
func (svc *Service) MonthlyReport(ctx context.Context, classID string, p attendance.Period) (grade.Grid, error) {
	return svc.grades.Grid(ctx, classID, p)
}

type (
	GradeWideStudent struct {
		grade.StudentRow
		ClassID   string `json:"class_id"`
		ClassName string `json:"class_name"`
		ClassRank int    `json:"class_rank"`
	}

	GradeWideReport struct {
		Grade            int                   `json:"grade"`
		ClassNames       []string              `json:"class_names"`
		Month            string                `json:"month"`
		MonthNumber      int                   `json:"month_number"`
		Year             int                   `json:"year"`
		TotalCoefficient float64               `json:"total_coefficient"`
		Subjects         []grade.SubjectColumn `json:"subjects"`
		Students         []GradeWideStudent    `json:"students"`
	}
)

// GradeWideReport combines the monthly reports of all the classes of a grade level and ranks
// their students together.
func (svc *Service) GradeWideReport(ctx context.Context, gradeLevel int, p attendance.Period) (GradeWideReport, error) {
	classes, err := svc.school.QueryClasses(ctx, school.ClassFilter{Grade: gradeLevel})
	if err != nil {
		return GradeWideReport{}, errors.Wrap(err, "querying classes")
	}
	if len(classes) == 0 {
		return GradeWideReport{}, ErrNoClassInGrade
	}

	report := GradeWideReport{
		Grade:       gradeLevel,
		Month:       core.MonthName(p.Month),
		MonthNumber: p.Month,
		Year:        p.Year,
		Students:    []GradeWideStudent{},
	}
	for _, cls := range classes {
		grid, err := svc.grades.Grid(ctx, cls.ID, p)
		if err != nil {
			return GradeWideReport{}, err
		}
		report.ClassNames = append(report.ClassNames, cls.Name)
		report.Subjects, report.TotalCoefficient = grid.Subjects, grid.TotalCoefficient
		for _, row := range grid.Students {
			report.Students = append(report.Students, GradeWideStudent{
				StudentRow: row,
				ClassID:    cls.ID,
				ClassName:  cls.Name,
				ClassRank:  row.Rank,
			})
		}
	}

	averages := make([]float64, len(report.Students))
	for i, s := range report.Students {
		averages[i] = s.Average
	}
	for i, rank := range grade.Rank(averages) {
		report.Students[i].Rank = rank
	}
	return report, nil
}
