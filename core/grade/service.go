package grade

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("grade not found")
	ErrClassNotFound     = core.NewNotFoundError("class not found")
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrStudentNotInClass = errors.New("student not in class")
)

type (
	Repository interface {
		QueryGrades(ctx context.Context, filter QueryFilter) ([]Grade, error)
		GetGrade(ctx context.Context, id string) (Grade, error)
		// SaveGrade creates or replaces the score of a student for a subject and a month.
		SaveGrade(ctx context.Context, g Grade) (Grade, error)
		// DeleteScore deletes the score of a student for a subject and a month and returns the deleted count.
		DeleteScore(ctx context.Context, studentID, subjectID, classID string, month, year int) (int, error)
		DeleteGrade(ctx context.Context, id string) error
	}

	ClassFinder interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
	}

	SubjectLister interface {
		GradeSubjects(ctx context.Context, grade int) ([]school.OrderedSubject, error)
	}

	RosterProvider interface {
		Roster(ctx context.Context, classID string) ([]student.Student, error)
	}

	AttendanceSummarizer interface {
		MonthlySummary(ctx context.Context, classID string, p attendance.Period) (map[string]attendance.Counts, error)
	}

	Service struct {
		repo       Repository
		classes    ClassFinder
		subjects   SubjectLister
		students   RosterProvider
		attendance AttendanceSummarizer
	}
)

func NewService(
	repo Repository, classes ClassFinder, subjects SubjectLister, students RosterProvider, att AttendanceSummarizer,
) *Service {
	return &Service{
		repo:       repo,
		classes:    classes,
		subjects:   subjects,
		students:   students,
		attendance: att,
	}
}

func (svc *Service) getClass(ctx context.Context, classID string) (school.Class, error) {
	cls, err := svc.classes.GetClass(ctx, classID)
	if err != nil {
		if core.IsNotFound(err) {
			return school.Class{}, ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return cls, nil
}

// Grid returns the scores of every student of a class for a month, with their totals, averages and ranks.
// The average divides the total score by the coefficients of all the active subjects of the grade,
// entered or not.
func (svc *Service) Grid(ctx context.Context, classID string, p attendance.Period) (Grid, error) {
	cls, err := svc.getClass(ctx, classID)
	if err != nil {
		return Grid{}, err
	}
	subjects, err := svc.subjects.GradeSubjects(ctx, cls.Grade)
	if err != nil {
		return Grid{}, err
	}
	roster, err := svc.students.Roster(ctx, classID)
	if err != nil {
		return Grid{}, err
	}
	grades, err := svc.repo.QueryGrades(ctx, QueryFilter{ClassID: classID, MonthNumber: p.Month, Year: p.Year})
	if err != nil {
		return Grid{}, errors.Wrap(err, "querying grades")
	}
	absences, err := svc.attendance.MonthlySummary(ctx, classID, p)
	if err != nil {
		return Grid{}, err
	}

	type key struct{ student, subject string }
	scores := make(map[key]Grade, len(grades))
	for _, g := range grades {
		scores[key{g.StudentID, g.SubjectID}] = g
	}

	grid := Grid{
		ClassID:     cls.ID,
		ClassName:   cls.Name,
		Grade:       cls.Grade,
		Month:       core.MonthName(p.Month),
		MonthNumber: p.Month,
		Year:        p.Year,
		Subjects:    make([]SubjectColumn, 0, len(subjects)),
		Students:    make([]StudentRow, 0, len(roster)),
	}
	for _, s := range subjects {
		grid.TotalCoefficient += s.Coefficient
		grid.Subjects = append(grid.Subjects, SubjectColumn{
			ID:          s.ID,
			NameKh:      s.NameKh,
			NameEn:      s.NameEn,
			Code:        s.Code,
			ShortCode:   s.ShortCode,
			MaxScore:    s.MaxScore,
			Coefficient: s.Coefficient,
			Order:       s.Order,
		})
	}

	averages := make([]float64, 0, len(roster))
	for _, st := range roster {
		row := StudentRow{
			StudentID:        st.ID,
			StudentName:      st.Name(),
			Gender:           st.Gender,
			Grades:           make(map[string]Cell, len(subjects)),
			TotalCoefficient: grid.TotalCoefficient,
			Absent:           absences[st.ID].Absent,
			Permission:       absences[st.ID].Permission,
		}
		for _, sub := range subjects {
			cell := Cell{MaxScore: sub.MaxScore, Coefficient: sub.Coefficient}
			if g, ok := scores[key{st.ID, sub.ID}]; ok {
				score := g.Score
				cell.ID, cell.Score, cell.IsSaved = g.ID, &score, true
				row.TotalScore += score
				row.TotalMaxScore += sub.MaxScore
			}
			row.Grades[sub.ID] = cell
		}
		if grid.TotalCoefficient > 0 {
			row.Average = row.TotalScore / grid.TotalCoefficient
		}
		row.TotalScore = Round2(row.TotalScore)
		row.Average = Round2(row.Average)
		row.GradeLevel = Level(row.Average)
		averages = append(averages, row.Average)
		grid.Students = append(grid.Students, row)
	}
	for i, rank := range Rank(averages) {
		grid.Students[i].Rank = rank
	}
	return grid, nil
}

// BulkSave applies the scores typed in a grid. A nil score clears the cell. Failing cells are reported
// and the others are still saved.
func (svc *Service) BulkSave(ctx context.Context, classID string, p attendance.Period, inputs []ScoreInput) (BulkResult, error) {
	cls, err := svc.getClass(ctx, classID)
	if err != nil {
		return BulkResult{}, err
	}
	subjects, err := svc.subjects.GradeSubjects(ctx, cls.Grade)
	if err != nil {
		return BulkResult{}, err
	}
	roster, err := svc.students.Roster(ctx, classID)
	if err != nil {
		return BulkResult{}, err
	}

	bySubject := make(map[string]school.OrderedSubject, len(subjects))
	for _, s := range subjects {
		bySubject[s.ID] = s
	}
	inClass := make(map[string]bool, len(roster))
	for _, s := range roster {
		inClass[s.ID] = true
	}

	result := BulkResult{Errors: []CellError{}}
	fail := func(in ScoreInput, err error) {
		result.ErrorCount++
		result.Errors = append(result.Errors, CellError{StudentID: in.StudentID, SubjectID: in.SubjectID, Error: err.Error()})
	}
	for _, in := range inputs {
		sub, ok := bySubject[in.SubjectID]
		if !ok {
			fail(in, ErrSubjectNotFound)
			continue
		}
		if !inClass[in.StudentID] {
			fail(in, ErrStudentNotInClass)
			continue
		}

		if in.Score == nil {
			n, err := svc.repo.DeleteScore(ctx, in.StudentID, in.SubjectID, classID, p.Month, p.Year)
			if err != nil {
				fail(in, errors.Cause(err))
				continue
			}
			result.DeletedCount += n
			continue
		}

		score := *in.Score
		if score < 0 || score > sub.MaxScore {
			fail(in, fmt.Errorf("score must be between 0 and %g", sub.MaxScore))
			continue
		}
		now := time.Now().UTC()
		_, err := svc.repo.SaveGrade(ctx, Grade{
			StudentID:   in.StudentID,
			SubjectID:   in.SubjectID,
			ClassID:     classID,
			Month:       core.MonthName(p.Month),
			MonthNumber: p.Month,
			Year:        p.Year,
			Score:       score,
			MaxScore:    sub.MaxScore,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			fail(in, errors.Cause(err))
			continue
		}
		result.SavedCount++
	}
	return result, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Grade, error) {
	return svc.repo.GetGrade(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteGrade(ctx, id)
}
