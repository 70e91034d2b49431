package report

import (
	"context"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
)

type (
	TrackingBookRequest struct {
		ClassID   string
		Year      int
		StudentID string // all the students of the class when empty
		Months    []int  // the whole year when empty
	}

	MonthResult struct {
		Month       string  `json:"month"`
		MonthNumber int     `json:"month_number"`
		Average     float64 `json:"average"`
		Rank        int     `json:"rank"`
		GradeLevel  string  `json:"grade_level"`
		TotalScore  float64 `json:"total_score"`
		Absent      int     `json:"absent"`
		Permission  int     `json:"permission"`
		HasScores   bool    `json:"has_scores"`
	}

	StudentTrackingBook struct {
		StudentID     string        `json:"student_id"`
		StudentName   string        `json:"student_name"`
		Gender        string        `json:"gender"`
		DateOfBirth   time.Time     `json:"date_of_birth"`
		StudentCode   string        `json:"student_code"`
		Months        []MonthResult `json:"months"`
		YearlyAverage float64       `json:"yearly_average"`
		YearlyLevel   string        `json:"yearly_level"`
		TotalAbsent   int           `json:"total_absent"`
	}

	TrackingBook struct {
		ClassID         string                `json:"class_id"`
		ClassName       string                `json:"class_name"`
		Grade           int                   `json:"grade"`
		Year            int                   `json:"year"`
		HomeroomTeacher string                `json:"homeroom_teacher"`
		Students        []StudentTrackingBook `json:"students"`
	}
)

// TrackingBook returns the monthly results of the students of a class over a year. The yearly average
// is the mean of the months holding at least one score.
func (svc *Service) TrackingBook(ctx context.Context, req TrackingBookRequest) (TrackingBook, error) {
	cls, err := svc.getClass(ctx, req.ClassID)
	if err != nil {
		return TrackingBook{}, err
	}
	if err = core.ValidateYear(req.Year); err != nil {
		return TrackingBook{}, err
	}
	months := req.Months
	if len(months) == 0 {
		months = make([]int, 12)
		for i := range months {
			months[i] = i + 1
		}
	}

	roster, err := svc.students.Roster(ctx, cls.ID)
	if err != nil {
		return TrackingBook{}, err
	}

	book := TrackingBook{
		ClassID:   cls.ID,
		ClassName: cls.Name,
		Grade:     cls.Grade,
		Year:      req.Year,
		Students:  make([]StudentTrackingBook, 0, len(roster)),
	}
	if cls.HomeroomTeacherID != "" {
		if t, err := svc.teachers.GetByID(ctx, cls.HomeroomTeacherID); err == nil {
			book.HomeroomTeacher = t.Name()
		}
	}

	index := make(map[string]int, len(roster))
	for _, s := range roster {
		if req.StudentID != "" && s.ID != req.StudentID {
			continue
		}
		index[s.ID] = len(book.Students)
		book.Students = append(book.Students, StudentTrackingBook{
			StudentID:   s.ID,
			StudentName: s.Name(),
			Gender:      s.Gender,
			DateOfBirth: s.DateOfBirth,
			StudentCode: s.StudentCode,
			Months:      make([]MonthResult, 0, len(months)),
		})
	}
	if req.StudentID != "" && len(book.Students) == 0 {
		return TrackingBook{}, core.NewNotFoundError("student not found in class")
	}

	for _, m := range months {
		p, err := attendance.ParsePeriod(core.MonthName(m), req.Year)
		if err != nil {
			return TrackingBook{}, err
		}
		grid, err := svc.grades.Grid(ctx, cls.ID, p)
		if err != nil {
			return TrackingBook{}, err
		}
		for _, row := range grid.Students {
			i, ok := index[row.StudentID]
			if !ok {
				continue
			}
			book.Students[i].Months = append(book.Students[i].Months, monthResult(grid, row))
		}
	}

	for i := range book.Students {
		summarize(&book.Students[i])
	}
	return book, nil
}

func monthResult(grid grade.Grid, row grade.StudentRow) MonthResult {
	res := MonthResult{
		Month:       grid.Month,
		MonthNumber: grid.MonthNumber,
		Absent:      row.Absent,
		Permission:  row.Permission,
	}
	for _, cell := range row.Grades {
		if cell.IsSaved {
			res.HasScores = true
			break
		}
	}
	if res.HasScores {
		res.Average = row.Average
		res.Rank = row.Rank
		res.GradeLevel = row.GradeLevel
		res.TotalScore = row.TotalScore
	}
	return res
}

func summarize(s *StudentTrackingBook) {
	var sum float64
	var n int
	for _, m := range s.Months {
		s.TotalAbsent += m.Absent
		if m.HasScores {
			sum += m.Average
			n++
		}
	}
	if n > 0 {
		s.YearlyAverage = grade.Round2(sum / float64(n))
		s.YearlyLevel = grade.Level(s.YearlyAverage)
	}
}
