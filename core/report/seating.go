package report

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
)

type (
	// PageConfig is the number of students of each class seated in a room.
	PageConfig struct {
		Class1Count int `json:"class1_count"`
		Class2Count int `json:"class2_count"`
	}

	SeatingRequest struct {
		Class1ID    string       `json:"class1_id"`
		Class2ID    string       `json:"class2_id"`
		RoomNumber  string       `json:"room_number"`
		ExamSession string       `json:"exam_session"`
		Pages       []PageConfig `json:"pages"`
	}

	Seat struct {
		Number      int       `json:"number"`
		StudentID   string    `json:"student_id"`
		StudentName string    `json:"student_name"`
		Gender      string    `json:"gender"`
		DateOfBirth time.Time `json:"date_of_birth"`
	}

	SeatingPage struct {
		Room   string `json:"room"`
		Class1 []Seat `json:"class1"`
		Class2 []Seat `json:"class2"`
	}

	Seating struct {
		Class1Name  string        `json:"class1_name"`
		Class2Name  string        `json:"class2_name"`
		ExamSession string        `json:"exam_session"`
		Pages       []SeatingPage `json:"pages"`
		Unseated1   int           `json:"unseated1"`
		Unseated2   int           `json:"unseated2"`
	}
)

// SortForSeating orders students males first, then by Khmer name.
func SortForSeating(students []student.Student) {
	less := core.KhmerLess()
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].IsMale() != students[j].IsMale() {
			return students[i].IsMale()
		}
		return less(students[i].Name(), students[j].Name())
	})
}

// Paginate spreads two rosters over exam rooms. Each page takes the next students of both rosters;
// pages left empty are dropped. Rooms are numbered from `firstRoom` and seat numbers run on across
// the pages of each class.
func Paginate(roster1, roster2 []student.Student, pages []PageConfig, firstRoom int) []SeatingPage {
	var (
		out    []SeatingPage
		i1, i2 int
	)
	take := func(roster []student.Student, from, count int) []Seat {
		seats := []Seat{}
		for i := from; i < from+count && i < len(roster); i++ {
			s := roster[i]
			seats = append(seats, Seat{
				Number:      i + 1,
				StudentID:   s.ID,
				StudentName: s.Name(),
				Gender:      s.Gender,
				DateOfBirth: s.DateOfBirth,
			})
		}
		return seats
	}
	for _, cfg := range pages {
		page := SeatingPage{
			Class1: take(roster1, i1, cfg.Class1Count),
			Class2: take(roster2, i2, cfg.Class2Count),
		}
		if len(page.Class1) == 0 && len(page.Class2) == 0 {
			continue
		}
		page.Room = fmt.Sprintf("%02d", firstRoom+len(out))
		out = append(out, page)
		i1 += cfg.Class1Count
		i2 += cfg.Class2Count
	}
	return out
}

// ExamSeating seats the students of two classes in exam rooms.
func (svc *Service) ExamSeating(ctx context.Context, req SeatingRequest) (Seating, error) {
	if len(req.Pages) == 0 {
		return Seating{}, ErrNoPages
	}
	if req.Class1ID == req.Class2ID {
		return Seating{}, ErrSameClass
	}
	room, err := strconv.Atoi(core.NormalizeDigits(strings.TrimSpace(req.RoomNumber)))
	if err != nil || room < 0 {
		return Seating{}, ErrInvalidRoom
	}
	for _, p := range req.Pages {
		if p.Class1Count < 0 || p.Class2Count < 0 {
			return Seating{}, core.NewValidationError(nil, core.FieldError{Field: "pages", Error: "counts cannot be negative"})
		}
	}

	cls1, err := svc.getClass(ctx, req.Class1ID)
	if err != nil {
		return Seating{}, err
	}
	cls2, err := svc.getClass(ctx, req.Class2ID)
	if err != nil {
		return Seating{}, err
	}
	roster1, err := svc.students.Roster(ctx, cls1.ID)
	if err != nil {
		return Seating{}, err
	}
	roster2, err := svc.students.Roster(ctx, cls2.ID)
	if err != nil {
		return Seating{}, err
	}
	SortForSeating(roster1)
	SortForSeating(roster2)

	seating := Seating{
		Class1Name:  cls1.Name,
		Class2Name:  cls2.Name,
		ExamSession: core.CleanString(req.ExamSession),
		Pages:       Paginate(roster1, roster2, req.Pages, room),
	}
	seated1, seated2 := 0, 0
	for _, p := range seating.Pages {
		seated1 += len(p.Class1)
		seated2 += len(p.Class2)
	}
	seating.Unseated1 = len(roster1) - seated1
	seating.Unseated2 = len(roster2) - seated2
	return seating, nil
}
