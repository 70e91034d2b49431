package grade

import (
	"math"
	"sort"
	"time"
)

type Grade struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	SubjectID   string    `json:"subject_id"`
	ClassID     string    `json:"class_id"`
	Month       string    `json:"month"` // Khmer month name
	MonthNumber int       `json:"month_number"`
	Year        int       `json:"year"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Remarks     string    `json:"remarks"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type QueryFilter struct {
	ClassID     string
	StudentID   string
	SubjectID   string
	MonthNumber int
	Year        int
}

// Level returns the letter grade of an average on the 50 points scale.
func Level(average float64) string {
	switch {
	case average >= 45:
		return "A"
	case average >= 40:
		return "B"
	case average >= 35:
		return "C"
	case average >= 30:
		return "D"
	case average >= 25:
		return "E"
	}
	return "F"
}

var Levels = []string{"A", "B", "C", "D", "E", "F"}

// Round2 rounds to 2 decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Rank returns the competition rank of each average: equal averages share a rank and the next
// rank skips as many places, eg: 1, 2, 2, 4.
func Rank(averages []float64) []int {
	idx := make([]int, len(averages))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return averages[idx[a]] > averages[idx[b]] })

	ranks := make([]int, len(averages))
	for pos, i := range idx {
		if pos > 0 && Round2(averages[i]) == Round2(averages[idx[pos-1]]) {
			ranks[i] = ranks[idx[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

// Grid

type (
	SubjectColumn struct {
		ID          string  `json:"id"`
		NameKh      string  `json:"name_kh"`
		NameEn      string  `json:"name_en"`
		Code        string  `json:"code"`
		ShortCode   string  `json:"short_code"`
		MaxScore    float64 `json:"max_score"`
		Coefficient float64 `json:"coefficient"`
		Order       int     `json:"order"`
	}

	Cell struct {
		ID          string   `json:"id"`
		Score       *float64 `json:"score"`
		MaxScore    float64  `json:"max_score"`
		Coefficient float64  `json:"coefficient"`
		IsSaved     bool     `json:"is_saved"`
	}

	StudentRow struct {
		StudentID        string          `json:"student_id"`
		StudentName      string          `json:"student_name"`
		Gender           string          `json:"gender"`
		Grades           map[string]Cell `json:"grades"` // by subject ID
		TotalScore       float64         `json:"total_score"`
		TotalMaxScore    float64         `json:"total_max_score"`
		TotalCoefficient float64         `json:"total_coefficient"`
		Average          float64         `json:"average"`
		GradeLevel       string          `json:"grade_level"`
		Rank             int             `json:"rank"`
		Absent           int             `json:"absent"`
		Permission       int             `json:"permission"`
	}

	Grid struct {
		ClassID          string          `json:"class_id"`
		ClassName        string          `json:"class_name"`
		Grade            int             `json:"grade"`
		Month            string          `json:"month"`
		MonthNumber      int             `json:"month_number"`
		Year             int             `json:"year"`
		TotalCoefficient float64         `json:"total_coefficient"`
		Subjects         []SubjectColumn `json:"subjects"`
		Students         []StudentRow    `json:"students"`
	}

	// ScoreInput is a grid cell typed by the user. A nil score clears the cell.
	ScoreInput struct {
		StudentID string   `json:"student_id"`
		SubjectID string   `json:"subject_id"`
		Score     *float64 `json:"score"`
	}

	CellError struct {
		StudentID string `json:"student_id"`
		SubjectID string `json:"subject_id"`
		Error     string `json:"error"`
	}

	BulkResult struct {
		SavedCount   int         `json:"saved_count"`
		DeletedCount int         `json:"deleted_count"`
		ErrorCount   int         `json:"error_count"`
		Errors       []CellError `json:"errors"`
	}
)

// Row returns the row of a student, if any.
func (g Grid) Row(studentID string) (StudentRow, bool) {
	for _, row := range g.Students {
		if row.StudentID == studentID {
			return row, true
		}
	}
	return StudentRow{}, false
}
