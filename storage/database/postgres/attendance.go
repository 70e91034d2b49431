package pgrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
)

const (
	attendanceColumns = "id, student_id, class_id, date, session, status, remarks, created_at, updated_at"

	selectAttendanceSQL = "SELECT " + attendanceColumns + " FROM attendance"
)

type attendanceRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	ClassID   string    `db:"class_id"`
	Date      time.Time `db:"date"`
	Session   string    `db:"session"`
	Status    string    `db:"status"`
	Remarks   string    `db:"remarks"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:        row.ID,
		StudentID: row.StudentID,
		ClassID:   row.ClassID,
		Date:      core.TruncateDay(row.Date),
		Session:   row.Session,
		Status:    row.Status,
		Remarks:   row.Remarks,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	base
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db core.DB) *attendanceRepository {
	return &attendanceRepository{base{db: db}}
}

func (repo *attendanceRepository) QueryAttendance(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Attendance, error) {
	w := &where{}
	if filter.StudentID != "" {
		w.in("student_id", []string{filter.StudentID})
	}
	if filter.ClassID != "" {
		w.in("class_id", []string{filter.ClassID})
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Session != "" {
		w.add("session = ?", filter.Session)
	}
	if !filter.From.IsZero() {
		w.add("date >= ?", core.TruncateDay(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("date < ?", filter.To.UTC())
	}

	var rows []attendanceRow
	query := selectAttendanceSQL + w.String() + " ORDER BY date, student_id, session DESC"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance")
	}
	records := make([]attendance.Attendance, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.attendance())
	}
	return records, nil
}

func (repo *attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	if !validID(id) {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	var row attendanceRow
	if err := repo.db.GetContext(ctx, &row, selectAttendanceSQL+" WHERE id = $1", id); err != nil {
		return attendance.Attendance{}, trapNoRows(err, attendance.ErrNotFound, "selecting attendance")
	}
	return row.attendance(), nil
}

func (repo *attendanceRepository) CreateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	a.ID = newID()
	a.Date = core.TruncateDay(a.Date)
	if a.Session == "" {
		a.Session = attendance.SessionMorning
	}
	_, err := repo.db.ExecContext(ctx, `INSERT INTO attendance (`+attendanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.StudentID, a.ClassID, a.Date, a.Session, a.Status, a.Remarks, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Attendance{}, attendance.ErrAlreadyRecorded
		}
		return attendance.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return a, nil
}

func (repo *attendanceRepository) SaveDay(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	a.Date = core.TruncateDay(a.Date)
	if a.Session == "" {
		a.Session = attendance.SessionMorning
	}
	var row attendanceRow
	err := repo.db.GetContext(ctx, &row, `INSERT INTO attendance (`+attendanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, class_id, date, session) DO UPDATE SET status = EXCLUDED.status,
		remarks = EXCLUDED.remarks, updated_at = EXCLUDED.updated_at
		RETURNING `+attendanceColumns,
		newID(), a.StudentID, a.ClassID, a.Date, a.Session, a.Status, a.Remarks, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "saving attendance")
	}
	return row.attendance(), nil
}

func (repo *attendanceRepository) UpdateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	if !validID(a.ID) {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"UPDATE attendance SET status = $2, remarks = $3, updated_at = $4 WHERE id = $1",
		a.ID, a.Status, a.Remarks, a.UpdatedAt.UTC()))
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "updating attendance")
	}
	if n == 0 {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	return a, nil
}

func (repo *attendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	if !validID(id) {
		return attendance.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo *attendanceRepository) DeleteDay(ctx context.Context, studentID, classID string, day time.Time, session string) (int, error) {
	if !validID(studentID) || !validID(classID) {
		return 0, nil
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"DELETE FROM attendance WHERE student_id = $1 AND class_id = $2 AND date = $3 AND session = $4",
		studentID, classID, core.TruncateDay(day), session))
	return n, errors.Wrap(err, "deleting attendance")
}
