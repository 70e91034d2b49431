package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) QueryAttendance(_ context.Context, filter attendance.QueryFilter) ([]attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]attendance.Attendance, 0)
	for _, a := range repo.db.attendance {
		if (filter.StudentID != "" && a.StudentID != filter.StudentID) ||
			(filter.ClassID != "" && a.ClassID != filter.ClassID) ||
			(filter.Status != "" && a.Status != filter.Status) ||
			(filter.Session != "" && a.Session != filter.Session) ||
			(!filter.From.IsZero() && a.Date.Before(filter.From)) ||
			(!filter.To.IsZero() && !a.Date.Before(filter.To)) {
			continue
		}
		records = append(records, a)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		if records[i].StudentID != records[j].StudentID {
			return records[i].StudentID < records[j].StudentID
		}
		return records[i].Session > records[j].Session // MORNING first
	})
	return records, nil
}

func (repo *attendanceRepository) GetAttendance(_ context.Context, id string) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.attendance[id]; ok {
		return a, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

// findDay must be called with the lock held.
func (repo *attendanceRepository) findDay(studentID, classID string, day time.Time, session string) (attendance.Attendance, bool) {
	day = core.TruncateDay(day)
	for _, a := range repo.db.attendance {
		if a.StudentID == studentID && a.ClassID == classID && a.Date.Equal(day) && a.Session == session {
			return a, true
		}
	}
	return attendance.Attendance{}, false
}

func (repo *attendanceRepository) CreateAttendance(_ context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a.Session == "" {
		a.Session = attendance.SessionMorning
	}
	if _, exists := repo.findDay(a.StudentID, a.ClassID, a.Date, a.Session); exists {
		return attendance.Attendance{}, attendance.ErrAlreadyRecorded
	}
	a.ID = newID()
	a.Date = core.TruncateDay(a.Date)
	repo.db.attendance[a.ID] = a
	return a, nil
}

func (repo *attendanceRepository) SaveDay(_ context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.Date = core.TruncateDay(a.Date)
	if a.Session == "" {
		a.Session = attendance.SessionMorning
	}
	if existing, ok := repo.findDay(a.StudentID, a.ClassID, a.Date, a.Session); ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		a.ID = newID()
	}
	repo.db.attendance[a.ID] = a
	return a, nil
}

func (repo *attendanceRepository) UpdateAttendance(_ context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendance[a.ID]; !ok {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	repo.db.attendance[a.ID] = a
	return a, nil
}

func (repo *attendanceRepository) DeleteAttendance(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendance[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.attendance, id)
	return nil
}

func (repo *attendanceRepository) DeleteDay(_ context.Context, studentID, classID string, day time.Time, session string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a, ok := repo.findDay(studentID, classID, day, session); ok {
		delete(repo.db.attendance, a.ID)
		return 1, nil
	}
	return 0, nil
}
