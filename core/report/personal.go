package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
)

const (
	recentGradesDays  = 7
	recentGradesLimit = 10
	attendanceDays    = 30
)

type (
	ClassSummary struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Grade    int    `json:"grade"`
		Students int    `json:"students"`
	}

	SubjectSummary struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Code  string `json:"code"`
		Grade int    `json:"grade"`
	}

	TeacherDashboard struct {
		Teacher            teacher.Teacher  `json:"teacher"`
		Name               string           `json:"name"`
		HomeroomClass      *ClassSummary    `json:"homeroom_class"`
		Classes            []ClassSummary   `json:"classes"`
		Subjects           []SubjectSummary `json:"subjects"`
		TotalClasses       int              `json:"total_classes"`
		TotalStudents      int              `json:"total_students"`
		RecentGradeEntries int              `json:"recent_grade_entries"` // grades entered in the last 7 days
	}

	RecentGrade struct {
		SubjectID   string  `json:"subject_id"`
		SubjectName string  `json:"subject_name"`
		Score       float64 `json:"score"`
		MaxScore    float64 `json:"max_score"`
		Percentage  float64 `json:"percentage"`
		Month       string  `json:"month"`
		MonthNumber int     `json:"month_number"`
		Year        int     `json:"year"`
	}

	AttendanceOverview struct {
		Present    int `json:"present"`
		Absent     int `json:"absent"`
		Late       int `json:"late"`
		Permission int `json:"permission"`
		Total      int `json:"total"`
	}

	StudentDashboard struct {
		Student      student.Student    `json:"student"`
		Name         string             `json:"name"`
		Class        *school.Class      `json:"class"`
		RecentGrades []RecentGrade      `json:"recent_grades"`
		AverageScore float64            `json:"average_score"` // percentage
		Attendance   AttendanceOverview `json:"attendance"`    // last 30 days
	}
)

// TeacherDashboard summarizes the work of a teacher: their homeroom class and the classes of the
// grades of the subjects they teach.
func (svc *Service) TeacherDashboard(ctx context.Context, teacherID string, now time.Time) (TeacherDashboard, error) {
	t, err := svc.teachers.GetByID(ctx, teacherID)
	if err != nil {
		return TeacherDashboard{}, err
	}
	dash := TeacherDashboard{
		Teacher:  t,
		Name:     t.Name(),
		Classes:  make([]ClassSummary, 0),
		Subjects: make([]SubjectSummary, 0),
	}

	subjects, err := svc.school.QuerySubjects(ctx, school.SubjectFilter{TeacherID: t.ID})
	if err != nil {
		return dash, errors.Wrap(err, "querying subjects")
	}
	taught := make(map[int]bool, len(subjects))
	for _, subj := range subjects {
		dash.Subjects = append(dash.Subjects, SubjectSummary{
			ID:    subj.ID,
			Name:  subjectName(subj),
			Code:  subj.Code,
			Grade: subj.Grade,
		})
		taught[subj.Grade] = true
	}

	classes, err := svc.school.QueryClasses(ctx, school.ClassFilter{})
	if err != nil {
		return dash, errors.Wrap(err, "querying classes")
	}
	since := now.AddDate(0, 0, -recentGradesDays)
	students := make(map[string]struct{})
	for _, cls := range classes {
		homeroom := cls.ID == t.HomeroomClassID || cls.HomeroomTeacherID == t.ID
		if !homeroom && !taught[cls.Grade] {
			continue
		}
		roster, err := svc.students.Roster(ctx, cls.ID)
		if err != nil {
			return dash, errors.Wrap(err, "listing roster")
		}
		summary := ClassSummary{ID: cls.ID, Name: cls.Name, Grade: cls.Grade, Students: len(roster)}
		if homeroom && dash.HomeroomClass == nil {
			hc := summary
			dash.HomeroomClass = &hc
		}
		dash.Classes = append(dash.Classes, summary)
		for _, s := range roster {
			students[s.ID] = struct{}{}
		}

		grades, err := svc.grades.Query(ctx, grade.QueryFilter{ClassID: cls.ID})
		if err != nil {
			return dash, errors.Wrap(err, "querying grades")
		}
		for _, g := range grades {
			if !g.UpdatedAt.Before(since) {
				dash.RecentGradeEntries++
			}
		}
	}
	dash.TotalClasses = len(dash.Classes)
	dash.TotalStudents = len(students)
	return dash, nil
}

// StudentDashboard summarizes the latest grades and the attendance of the last 30 days of a student.
func (svc *Service) StudentDashboard(ctx context.Context, studentID string, now time.Time) (StudentDashboard, error) {
	s, err := svc.students.GetByID(ctx, studentID)
	if err != nil {
		return StudentDashboard{}, err
	}
	dash := StudentDashboard{Student: s, Name: s.Name(), RecentGrades: make([]RecentGrade, 0)}
	if s.ClassID != "" {
		cls, err := svc.school.GetClass(ctx, s.ClassID)
		if err != nil && !core.IsNotFound(err) {
			return dash, errors.Wrap(err, "finding class")
		}
		if err == nil {
			dash.Class = &cls
		}
	}

	grades, err := svc.grades.Query(ctx, grade.QueryFilter{StudentID: s.ID})
	if err != nil {
		return dash, errors.Wrap(err, "querying grades")
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].UpdatedAt.After(grades[j].UpdatedAt) })
	if len(grades) > recentGradesLimit {
		grades = grades[:recentGradesLimit]
	}
	names, err := svc.subjectNames(ctx, grades)
	if err != nil {
		return dash, err
	}
	var total float64
	var scored int
	for _, g := range grades {
		rg := RecentGrade{
			SubjectID:   g.SubjectID,
			SubjectName: names[g.SubjectID],
			Score:       g.Score,
			MaxScore:    g.MaxScore,
			Month:       g.Month,
			MonthNumber: g.MonthNumber,
			Year:        g.Year,
		}
		if g.MaxScore > 0 {
			rg.Percentage = grade.Round2(g.Score / g.MaxScore * 100)
			total += g.Score / g.MaxScore * 100
			scored++
		}
		dash.RecentGrades = append(dash.RecentGrades, rg)
	}
	if scored > 0 {
		dash.AverageScore = grade.Round2(total / float64(scored))
	}

	from := core.TruncateDay(now).AddDate(0, 0, -attendanceDays)
	records, err := svc.attendance.Query(ctx, attendance.QueryFilter{StudentID: s.ID, From: from})
	if err != nil {
		return dash, errors.Wrap(err, "querying attendance")
	}
	for _, rec := range records {
		switch rec.Status {
		case attendance.StatusPresent:
			dash.Attendance.Present++
		case attendance.StatusAbsent:
			dash.Attendance.Absent++
		case attendance.StatusLate:
			dash.Attendance.Late++
		case attendance.StatusPermission:
			dash.Attendance.Permission++
		}
	}
	dash.Attendance.Total = len(records)
	return dash, nil
}

func (svc *Service) subjectNames(ctx context.Context, grades []grade.Grade) (map[string]string, error) {
	names := make(map[string]string)
	if len(grades) == 0 {
		return names, nil
	}
	ids := make([]string, 0, len(grades))
	for _, g := range grades {
		ids = append(ids, g.SubjectID)
	}
	subjects, err := svc.school.QuerySubjects(ctx, school.SubjectFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	for _, subj := range subjects {
		names[subj.ID] = subjectName(subj)
	}
	return names, nil
}

func subjectName(subj school.Subject) string {
	if subj.NameKh != "" {
		return subj.NameKh
	}
	return subj.NameEn
}
