package report

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

type (
	GradeLevelStats struct {
		Grade    int            `json:"grade"`
		Classes  int            `json:"classes"`
		Students int            `json:"students"`
		Male     int            `json:"male"`
		Female   int            `json:"female"`
		Levels   map[string]int `json:"levels,omitempty"` // students per letter grade, for a month
	}

	DashboardStats struct {
		TotalStudents   int               `json:"total_students"`
		MaleStudents    int               `json:"male_students"`
		FemaleStudents  int               `json:"female_students"`
		TotalTeachers   int               `json:"total_teachers"`
		ClassTeachers   int               `json:"class_teachers"`
		TotalClasses    int               `json:"total_classes"`
		TotalSubjects   int               `json:"total_subjects"`
		ActiveSubjects  int               `json:"active_subjects"`
		ActiveAccounts  int               `json:"active_accounts"`
		StudentAccounts int               `json:"student_accounts"`
		Grades          []GradeLevelStats `json:"grades"`
	}
)

// DashboardStats summarizes the school. When `p` is set, the grade-level breakdown also counts the
// letter grades of that month.
func (svc *Service) DashboardStats(ctx context.Context, p *attendance.Period) (DashboardStats, error) {
	var stats DashboardStats

	students, err := svc.students.Query(ctx, student.QueryFilter{})
	if err != nil {
		return stats, errors.Wrap(err, "querying students")
	}
	teachers, err := svc.teachers.Query(ctx, teacher.QueryFilter{})
	if err != nil {
		return stats, errors.Wrap(err, "querying teachers")
	}
	classes, err := svc.school.QueryClasses(ctx, school.ClassFilter{})
	if err != nil {
		return stats, errors.Wrap(err, "querying classes")
	}
	subjects, err := svc.school.QuerySubjects(ctx, school.SubjectFilter{})
	if err != nil {
		return stats, errors.Wrap(err, "querying subjects")
	}
	active := true
	if stats.ActiveAccounts, err = svc.accounts.Count(ctx, &user.QueryFilter{IsActive: &active}); err != nil {
		return stats, errors.Wrap(err, "counting accounts")
	}
	stats.StudentAccounts, err = svc.accounts.Count(ctx, &user.QueryFilter{Roles: []string{user.RoleStudent}})
	if err != nil {
		return stats, errors.Wrap(err, "counting student accounts")
	}

	stats.TotalStudents = len(students)
	stats.TotalTeachers = len(teachers)
	stats.TotalClasses = len(classes)
	stats.TotalSubjects = len(subjects)
	for _, s := range students {
		if s.IsMale() {
			stats.MaleStudents++
		} else {
			stats.FemaleStudents++
		}
	}
	for _, t := range teachers {
		if t.Role == teacher.RoleClassTeacher {
			stats.ClassTeachers++
		}
	}
	for _, s := range subjects {
		if s.IsActive {
			stats.ActiveSubjects++
		}
	}

	gradeOf := make(map[string]int, len(classes))
	byGrade := make(map[int]*GradeLevelStats)
	var order []int
	for _, cls := range classes {
		gradeOf[cls.ID] = cls.Grade
		gs, ok := byGrade[cls.Grade]
		if !ok {
			gs = &GradeLevelStats{Grade: cls.Grade}
			byGrade[cls.Grade] = gs
			order = append(order, cls.Grade)
		}
		gs.Classes++
		if p != nil {
			if err = svc.countLevels(ctx, gs, cls.ID, *p); err != nil {
				return stats, err
			}
		}
	}
	for _, s := range students {
		gs, ok := byGrade[gradeOf[s.ClassID]]
		if !ok || s.ClassID == "" {
			continue
		}
		gs.Students++
		if s.IsMale() {
			gs.Male++
		} else {
			gs.Female++
		}
	}
	sort.Ints(order)
	stats.Grades = make([]GradeLevelStats, 0, len(order))
	for _, g := range order {
		stats.Grades = append(stats.Grades, *byGrade[g])
	}
	return stats, nil
}

func (svc *Service) countLevels(ctx context.Context, gs *GradeLevelStats, classID string, p attendance.Period) error {
	grid, err := svc.grades.Grid(ctx, classID, p)
	if err != nil {
		return err
	}
	if gs.Levels == nil {
		gs.Levels = make(map[string]int, len(grade.Levels))
		for _, l := range grade.Levels {
			gs.Levels[l] = 0
		}
	}
	for _, row := range grid.Students {
		gs.Levels[row.GradeLevel]++
	}
	return nil
}
