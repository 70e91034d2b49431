package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("attendance not found")
	ErrClassNotFound     = core.NewNotFoundError("class not found")
	ErrAlreadyRecorded   = errors.New("attendance already recorded for this session")
	ErrDayOutOfRange     = errors.New("day out of range")
	ErrInvalidSession    = errors.New("session must be M or A")
	ErrStudentNotInClass = errors.New("student not in class")
)

type (
	Repository interface {
		// QueryAttendance returns the records matching `filter`, ordered by date.
		QueryAttendance(ctx context.Context, filter QueryFilter) ([]Attendance, error)
		GetAttendance(ctx context.Context, id string) (Attendance, error)
		// CreateAttendance returns ErrAlreadyRecorded if the student has a record for that day session in the class.
		CreateAttendance(ctx context.Context, a Attendance) (Attendance, error)
		// SaveDay creates or replaces the record of a student for a day session in a class.
		SaveDay(ctx context.Context, a Attendance) (Attendance, error)
		UpdateAttendance(ctx context.Context, a Attendance) (Attendance, error)
		DeleteAttendance(ctx context.Context, id string) error
		// DeleteDay deletes the record of a student for a day session in a class and returns the deleted count.
		DeleteDay(ctx context.Context, studentID, classID string, day time.Time, session string) (int, error)
	}

	ClassFinder interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
	}

	RosterProvider interface {
		Roster(ctx context.Context, classID string) ([]student.Student, error)
	}

	Service struct {
		repo     Repository
		classes  ClassFinder
		students RosterProvider
	}
)

func NewService(repo Repository, classes ClassFinder, students RosterProvider) *Service {
	return &Service{
		repo:     repo,
		classes:  classes,
		students: students,
	}
}

// Period is a calendar month of a school year.
type Period struct {
	Month int
	Year  int
}

// ParsePeriod parses a month given as a Khmer name, an english name or a number.
func ParsePeriod(month string, year int) (Period, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return Period{}, err
	}
	if err = core.ValidateYear(year); err != nil {
		return Period{}, err
	}
	return Period{Month: m, Year: year}, nil
}

func (p Period) Days() int { return core.DaysIn(p.Year, p.Month) }

func (p Period) Start() time.Time { return core.Date(p.Year, p.Month, 1) }

func (p Period) End() time.Time { return p.Start().AddDate(0, 1, 0) }

func (p Period) Day(day int) time.Time { return core.Date(p.Year, p.Month, day) }

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

func (svc *Service) monthRecords(ctx context.Context, classID string, p Period) ([]Attendance, error) {
	records, err := svc.repo.QueryAttendance(ctx, QueryFilter{ClassID: classID, From: p.Start(), To: p.End()})
	return records, errors.Wrap(err, "querying attendance")
}

// Grid returns the attendance of every student of a class for every day of a month.
func (svc *Service) Grid(ctx context.Context, classID string, p Period) (Grid, error) {
	cls, err := svc.getClass(ctx, classID)
	if err != nil {
		return Grid{}, err
	}
	roster, err := svc.students.Roster(ctx, classID)
	if err != nil {
		return Grid{}, err
	}
	records, err := svc.monthRecords(ctx, classID, p)
	if err != nil {
		return Grid{}, err
	}

	byStudent := make(map[string]map[string]Attendance, len(roster))
	for _, rec := range records {
		if byStudent[rec.StudentID] == nil {
			byStudent[rec.StudentID] = make(map[string]Attendance)
		}
		byStudent[rec.StudentID][CellKey(rec.Date.Day(), rec.Session)] = rec
	}

	grid := Grid{
		ClassID:     cls.ID,
		ClassName:   cls.Name,
		Month:       core.MonthName(p.Month),
		MonthNumber: p.Month,
		Year:        p.Year,
		DaysInMonth: p.Days(),
		Days:        make([]int, p.Days()),
		Sessions:    Sessions,
		Students:    make([]StudentRow, 0, len(roster)),
	}
	for i := range grid.Days {
		grid.Days[i] = i + 1
	}
	for _, s := range roster {
		row := StudentRow{
			StudentID:   s.ID,
			StudentName: s.Name(),
			Gender:      s.Gender,
			Attendance:  make(map[string]Cell, len(grid.Days)*len(Sessions)),
		}
		var counts Counts
		for _, day := range grid.Days {
			for _, session := range Sessions {
				key := CellKey(day, session)
				cell := Cell{Day: day, Session: session}
				if rec, ok := byStudent[s.ID][key]; ok {
					counts.add(rec.Status)
					cell.ID, cell.Status, cell.DisplayValue, cell.IsSaved = rec.ID, rec.Status, DisplayValue(rec.Status), true
				}
				row.Attendance[key] = cell
			}
		}
		row.TotalAbsent, row.TotalPermission, row.TotalLate = counts.Absent, counts.Permission, counts.Late
		grid.Students = append(grid.Students, row)
	}
	return grid, nil
}

// BulkSave applies the cells typed in a grid. A/P/L save the matching status of the day session and
// any other value clears it. Failing cells are reported and the others are still saved. Saving the same cells twice
// leaves the same records.
func (svc *Service) BulkSave(ctx context.Context, classID string, p Period, cells []CellInput) (BulkResult, error) {
	if _, err := svc.getClass(ctx, classID); err != nil {
		return BulkResult{}, err
	}
	roster, err := svc.students.Roster(ctx, classID)
	if err != nil {
		return BulkResult{}, err
	}
	inClass := make(map[string]bool, len(roster))
	for _, s := range roster {
		inClass[s.ID] = true
	}

	result := BulkResult{Errors: []CellError{}}
	fail := func(c CellInput, err error) {
		result.ErrorCount++
		result.Errors = append(result.Errors, CellError{
			StudentID: c.StudentID, Day: c.Day, Session: c.Session, Error: err.Error(),
		})
	}
	for _, c := range cells {
		if c.Day < 1 || c.Day > p.Days() {
			fail(c, ErrDayOutOfRange)
			continue
		}
		session, ok := ParseSession(c.Session)
		if !ok {
			fail(c, ErrInvalidSession)
			continue
		}
		if !inClass[c.StudentID] {
			fail(c, ErrStudentNotInClass)
			continue
		}

		day := p.Day(c.Day)
		status := StatusOf(c.Value)
		if status == "" {
			n, err := svc.repo.DeleteDay(ctx, c.StudentID, classID, day, session)
			if err != nil {
				fail(c, errors.Cause(err))
				continue
			}
			result.DeletedCount += n
			continue
		}

		now := time.Now().UTC()
		_, err := svc.repo.SaveDay(ctx, Attendance{
			StudentID: c.StudentID,
			ClassID:   classID,
			Date:      day,
			Session:   session,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			fail(c, errors.Cause(err))
			continue
		}
		result.SavedCount++
	}
	return result, nil
}

// MonthlySummary counts the absences, permissions and late sessions of each student of a class.
func (svc *Service) MonthlySummary(ctx context.Context, classID string, p Period) (map[string]Counts, error) {
	if _, err := svc.getClass(ctx, classID); err != nil {
		return nil, err
	}
	records, err := svc.monthRecords(ctx, classID, p)
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Summarize counts records per student.
func Summarize(records []Attendance) map[string]Counts {
	summary := make(map[string]Counts)
	for _, rec := range records {
		c := summary[rec.StudentID]
		c.add(rec.Status)
		summary[rec.StudentID] = c
	}
	return summary
}

// StudentSummary counts the records of a student within [from, to).
func (svc *Service) StudentSummary(ctx context.Context, studentID string, from, to time.Time) (Counts, error) {
	records, err := svc.repo.QueryAttendance(ctx, QueryFilter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return Counts{}, errors.Wrap(err, "querying attendance")
	}
	return Summarize(records)[studentID], nil
}

func (svc *Service) Create(ctx context.Context, na NewAttendance) (Attendance, error) {
	day, err := core.ParseDate(na.Date)
	if err != nil {
		return Attendance{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "invalid date"})
	}
	roster, err := svc.students.Roster(ctx, na.ClassID)
	if err != nil {
		return Attendance{}, err
	}
	found := false
	for _, s := range roster {
		if s.ID == na.StudentID {
			found = true
			break
		}
	}
	if !found {
		return Attendance{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: ErrStudentNotInClass.Error()})
	}

	now := time.Now().UTC()
	a, err := svc.repo.CreateAttendance(ctx, Attendance{
		StudentID: na.StudentID,
		ClassID:   na.ClassID,
		Date:      day,
		Session:   na.Session,
		Status:    na.Status,
		Remarks:   na.Remarks,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == ErrAlreadyRecorded {
		return Attendance{}, core.NewValidationError(err)
	}
	return a, err
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Attendance, error) {
	return svc.repo.QueryAttendance(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Attendance, error) {
	return svc.repo.GetAttendance(ctx, id)
}

func (svc *Service) Update(ctx context.Context, a Attendance, ua UpdateAttendance) (Attendance, error) {
	if ua.Status != nil {
		a.Status = *ua.Status
	}
	if ua.Remarks != nil {
		a.Remarks = core.CleanString(*ua.Remarks)
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAttendance(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAttendance(ctx, id)
}

// WriteCSV writes a grid as CSV: one line per student with the letters of each day session and the totals.
func WriteCSV(w io.Writer, grid Grid) error {
	cw := csv.NewWriter(w)
	header := []string{"No", "Name", "Gender"}
	for _, day := range grid.Days {
		for _, session := range Sessions {
			header = append(header, strconv.Itoa(day)+SessionLetter(session))
		}
	}
	header = append(header, "Absent", "Permission", "Late")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for i, row := range grid.Students {
		line := []string{strconv.Itoa(i + 1), row.StudentName, row.Gender}
		for _, day := range grid.Days {
			for _, session := range Sessions {
				line = append(line, row.Attendance[CellKey(day, session)].DisplayValue)
			}
		}
		line = append(line,
			strconv.Itoa(row.TotalAbsent), strconv.Itoa(row.TotalPermission), strconv.Itoa(row.TotalLate),
		)
		if err := cw.Write(line); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename names the CSV export of a grid.
func CSVFilename(grid Grid) string {
	return fmt.Sprintf("attendance_%s_%d-%02d.csv", grid.ClassName, grid.Year, grid.MonthNumber)
}
