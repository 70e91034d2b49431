package pgrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
)

type studentRow struct {
	ID              string      `db:"id"`
	StudentCode     string      `db:"student_code"`
	FirstName       string      `db:"first_name"`
	LastName        string      `db:"last_name"`
	KhmerName       string      `db:"khmer_name"`
	Gender          string      `db:"gender"`
	DateOfBirth     null.Time   `db:"date_of_birth"`
	ClassID         null.String `db:"class_id"`
	Email           null.String `db:"email"`
	Phone           null.String `db:"phone"`
	Address         string      `db:"address"`
	PreviousGrade   string      `db:"previous_grade"`
	PreviousSchool  string      `db:"previous_school"`
	RepeatingGrade  string      `db:"repeating_grade"`
	TransferredFrom string      `db:"transferred_from"`
	Grade9Exam      null.JSON   `db:"grade9_exam"`
	Grade12Exam     null.JSON   `db:"grade12_exam"`
	Grade12Track    string      `db:"grade12_track"`
	Remarks         string      `db:"remarks"`
	UserID          null.String `db:"user_id"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

const (
	studentColumns = `s.id, s.student_code, s.first_name, s.last_name, s.khmer_name, s.gender, s.date_of_birth,
		s.class_id, s.email, s.phone, s.address, s.previous_grade, s.previous_school, s.repeating_grade,
		s.transferred_from, s.grade9_exam, s.grade12_exam, s.grade12_track, s.remarks, s.user_id,
		s.created_at, s.updated_at`

	insertStudentSQL = `INSERT INTO students (id, student_code, first_name, last_name, khmer_name, gender,
		date_of_birth, class_id, email, phone, address, previous_grade, previous_school, repeating_grade,
		transferred_from, grade9_exam, grade12_exam, grade12_track, remarks, user_id, created_at, updated_at)
		VALUES (:id, :student_code, :first_name, :last_name, :khmer_name, :gender, :date_of_birth, :class_id,
		:email, :phone, :address, :previous_grade, :previous_school, :repeating_grade, :transferred_from,
		:grade9_exam, :grade12_exam, :grade12_track, :remarks, :user_id, :created_at, :updated_at)`

	updateStudentSQL = `UPDATE students SET student_code = :student_code, first_name = :first_name,
		last_name = :last_name, khmer_name = :khmer_name, gender = :gender, date_of_birth = :date_of_birth,
		class_id = :class_id, email = :email, phone = :phone, address = :address,
		previous_grade = :previous_grade, previous_school = :previous_school,
		repeating_grade = :repeating_grade, transferred_from = :transferred_from, grade9_exam = :grade9_exam,
		grade12_exam = :grade12_exam, grade12_track = :grade12_track, remarks = :remarks, user_id = :user_id,
		updated_at = :updated_at WHERE id = :id`
)

type studentRepository struct {
	base
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db core.DB) *studentRepository {
	return &studentRepository{base{db: db}}
}

func examJSON(exam student.ExamInfo) null.JSON {
	if exam == (student.ExamInfo{}) {
		return null.JSON{}
	}
	b, err := json.Marshal(exam)
	if err != nil {
		return null.JSON{}
	}
	return null.JSONFrom(b)
}

func examOf(j null.JSON) student.ExamInfo {
	var exam student.ExamInfo
	if j.Valid {
		_ = j.Unmarshal(&exam)
	}
	return exam
}

func (repo *studentRepository) toRow(s student.Student) studentRow {
	return studentRow{
		ID:              s.ID,
		StudentCode:     s.StudentCode,
		FirstName:       s.FirstName,
		LastName:        s.LastName,
		KhmerName:       s.KhmerName,
		Gender:          s.Gender,
		DateOfBirth:     nullDate(s.DateOfBirth),
		ClassID:         nullString(s.ClassID),
		Email:           nullString(s.Email),
		Phone:           nullString(s.Phone),
		Address:         s.Address,
		PreviousGrade:   s.PreviousGrade,
		PreviousSchool:  s.PreviousSchool,
		RepeatingGrade:  s.RepeatingGrade,
		TransferredFrom: s.TransferredFrom,
		Grade9Exam:      examJSON(s.Grade9Exam),
		Grade12Exam:     examJSON(s.Grade12Exam),
		Grade12Track:    s.Grade12Track,
		Remarks:         s.Remarks,
		UserID:          nullString(s.UserID),
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

func (repo *studentRepository) fromRow(row studentRow) student.Student {
	return student.Student{
		ID:              row.ID,
		StudentCode:     row.StudentCode,
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		KhmerName:       row.KhmerName,
		Gender:          row.Gender,
		DateOfBirth:     timeOf(row.DateOfBirth),
		ClassID:         row.ClassID.String,
		Email:           row.Email.String,
		Phone:           row.Phone.String,
		Address:         row.Address,
		PreviousGrade:   row.PreviousGrade,
		PreviousSchool:  row.PreviousSchool,
		RepeatingGrade:  row.RepeatingGrade,
		TransferredFrom: row.TransferredFrom,
		Grade9Exam:      examOf(row.Grade9Exam),
		Grade12Exam:     examOf(row.Grade12Exam),
		Grade12Track:    row.Grade12Track,
		Remarks:         row.Remarks,
		UserID:          row.UserID.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo *studentRepository) CheckEmail(ctx context.Context, email string, excludedIDs ...string) error {
	if email == "" {
		return nil
	}
	w := &where{}
	w.add("email = ?", email)
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		w.add("NOT (id = ANY(?::uuid[]))", pq.Array(ids))
	}
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM students"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "checking student email")
	}
	if n > 0 {
		return student.ErrEmailExists
	}
	return nil
}

func (repo *studentRepository) LastCode(ctx context.Context, prefix string) (string, error) {
	var code null.String
	err := repo.db.GetContext(ctx, &code,
		"SELECT MAX(student_code) FROM students WHERE student_code LIKE $1", prefix+"%")
	return code.String, errors.Wrap(err, "selecting last student code")
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	s.ID = newID()
	if _, err := sqlx.NamedExecContext(ctx, repo.db, insertStudentSQL, repo.toRow(s)); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, student.ErrEmailExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *studentRepository) filter(filter student.QueryFilter) (string, *where) {
	from := " FROM students s"
	w := &where{}
	w.search(filter.Search, "s.first_name", "s.last_name", "s.khmer_name", "s.student_code", "s.phone")
	if filter.ClassID != "" {
		w.in("s.class_id", []string{filter.ClassID})
	}
	if len(filter.ClassIDs) > 0 {
		w.in("s.class_id", filter.ClassIDs)
	}
	if filter.Grade != 0 {
		from += " JOIN classes c ON c.id = s.class_id"
		w.add("c.grade = ?", filter.Grade)
	}
	if filter.Gender != "" {
		w.add("s.gender = ?", filter.Gender)
	}
	if len(filter.IDs) > 0 {
		w.in("s.id", filter.IDs)
	}
	if len(filter.UserIDs) > 0 {
		w.in("s.user_id", filter.UserIDs)
	}
	if filter.HasAccount != nil {
		if *filter.HasAccount {
			w.add("s.user_id IS NOT NULL")
		} else {
			w.add("s.user_id IS NULL")
		}
	}
	return from, w
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	from, w := repo.filter(filter)
	query := "SELECT " + studentColumns + from + w.String() + " ORDER BY s.student_code"
	args := w.args
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.fromRow(row))
	}
	return students, nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, filter student.QueryFilter) (int, error) {
	from, w := repo.filter(filter)
	n, err := repo.count(ctx, "SELECT COUNT(*)"+from+w.String(), w.args...)
	return n, errors.Wrap(err, "counting students")
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	w := &where{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return student.Student{}, student.ErrNotFound
		}
		w.add("s.id = ?", filter.ID)
	case filter.UserID != "":
		if !validID(filter.UserID) {
			return student.Student{}, student.ErrNotFound
		}
		w.add("s.user_id = ?", filter.UserID)
	case filter.Code != "":
		w.add("s.student_code = ?", filter.Code)
	default:
		return student.Student{}, student.ErrNotFound
	}

	var row studentRow
	query := "SELECT " + studentColumns + " FROM students s" + w.String() + " LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(query), w.args...); err != nil {
		return student.Student{}, trapNoRows(err, student.ErrNotFound, "selecting student")
	}
	return repo.fromRow(row), nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	if !validID(s.ID) {
		return student.Student{}, student.ErrNotFound
	}
	n, err := repo.affected(sqlx.NamedExecContext(ctx, repo.db, updateStudentSQL, repo.toRow(s)))
	if err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, student.ErrEmailExists
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	if !validID(id) {
		return student.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
