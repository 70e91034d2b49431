package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/teacher"
)

type teacherRow struct {
	ID              string      `db:"id"`
	EmployeeID      string      `db:"employee_id"`
	FirstName       string      `db:"first_name"`
	LastName        string      `db:"last_name"`
	KhmerName       string      `db:"khmer_name"`
	Gender          string      `db:"gender"`
	Email           null.String `db:"email"`
	Phone           null.String `db:"phone"`
	Position        string      `db:"position"`
	Role            string      `db:"role"`
	HomeroomClassID null.String `db:"homeroom_class_id"`
	Address         string      `db:"address"`
	DateOfBirth     null.Time   `db:"date_of_birth"`
	HireDate        null.Time   `db:"hire_date"`
	UserID          null.String `db:"user_id"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

const (
	teacherColumns = `id, employee_id, first_name, last_name, khmer_name, gender, email, phone, position, role,
		homeroom_class_id, address, date_of_birth, hire_date, user_id, created_at, updated_at`

	insertTeacherSQL = `INSERT INTO teachers (` + teacherColumns + `) VALUES (:id, :employee_id, :first_name,
		:last_name, :khmer_name, :gender, :email, :phone, :position, :role, :homeroom_class_id, :address,
		:date_of_birth, :hire_date, :user_id, :created_at, :updated_at)`

	updateTeacherSQL = `UPDATE teachers SET employee_id = :employee_id, first_name = :first_name,
		last_name = :last_name, khmer_name = :khmer_name, gender = :gender, email = :email, phone = :phone,
		position = :position, role = :role, homeroom_class_id = :homeroom_class_id, address = :address,
		date_of_birth = :date_of_birth, hire_date = :hire_date, user_id = :user_id, updated_at = :updated_at
		WHERE id = :id`
)

type teacherRepository struct {
	base
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db core.DB) *teacherRepository {
	return &teacherRepository{base{db: db}}
}

func (repo *teacherRepository) toRow(t teacher.Teacher) teacherRow {
	return teacherRow{
		ID:              t.ID,
		EmployeeID:      t.EmployeeID,
		FirstName:       t.FirstName,
		LastName:        t.LastName,
		KhmerName:       t.KhmerName,
		Gender:          t.Gender,
		Email:           nullString(t.Email),
		Phone:           nullString(t.Phone),
		Position:        t.Position,
		Role:            t.Role,
		HomeroomClassID: nullString(t.HomeroomClassID),
		Address:         t.Address,
		DateOfBirth:     nullDate(t.DateOfBirth),
		HireDate:        nullDate(t.HireDate),
		UserID:          nullString(t.UserID),
		CreatedAt:       t.CreatedAt.UTC(),
		UpdatedAt:       t.UpdatedAt.UTC(),
	}
}

func (repo *teacherRepository) fromRow(row teacherRow) teacher.Teacher {
	return teacher.Teacher{
		ID:              row.ID,
		EmployeeID:      row.EmployeeID,
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		KhmerName:       row.KhmerName,
		Gender:          row.Gender,
		Email:           row.Email.String,
		Phone:           row.Phone.String,
		Position:        row.Position,
		Role:            row.Role,
		HomeroomClassID: row.HomeroomClassID.String,
		Address:         row.Address,
		DateOfBirth:     timeOf(row.DateOfBirth),
		HireDate:        timeOf(row.HireDate),
		UserID:          row.UserID.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo *teacherRepository) CheckUniqueness(ctx context.Context, email, employeeID string, excludedIDs ...string) error {
	checks := []struct {
		col string
		val string
		err error
	}{
		{"email", email, teacher.ErrEmailExists},
		{"employee_id", employeeID, teacher.ErrEmployeeIDExists},
	}
	for _, c := range checks {
		if c.val == "" {
			continue
		}
		w := &where{}
		w.add(c.col+" = ?", c.val)
		if ids := validIDs(excludedIDs); len(ids) > 0 {
			w.add("NOT (id = ANY(?::uuid[]))", pq.Array(ids))
		}
		n, err := repo.count(ctx, "SELECT COUNT(*) FROM teachers"+w.String(), w.args...)
		if err != nil {
			return errors.Wrap(err, "checking teacher uniqueness")
		}
		if n > 0 {
			return c.err
		}
	}
	return nil
}

func (repo *teacherRepository) LastCode(ctx context.Context, prefix string) (string, error) {
	var code null.String
	err := repo.db.GetContext(ctx, &code,
		"SELECT MAX(employee_id) FROM teachers WHERE employee_id LIKE $1", prefix+"%")
	return code.String, errors.Wrap(err, "selecting last employee ID")
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	t.ID = newID()
	if _, err := sqlx.NamedExecContext(ctx, repo.db, insertTeacherSQL, repo.toRow(t)); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *teacherRepository) QueryTeachers(ctx context.Context, filter teacher.QueryFilter) ([]teacher.Teacher, error) {
	w := &where{}
	w.search(filter.Search, "first_name", "last_name", "khmer_name", "employee_id", "email", "phone")
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if len(filter.IDs) > 0 {
		w.in("id", filter.IDs)
	}
	if len(filter.UserIDs) > 0 {
		w.in("user_id", filter.UserIDs)
	}

	var rows []teacherRow
	query := "SELECT " + teacherColumns + " FROM teachers" + w.String() + " ORDER BY employee_id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, row := range rows {
		teachers = append(teachers, repo.fromRow(row))
	}
	return teachers, nil
}

func (repo *teacherRepository) get(ctx context.Context, col, val string) (teacher.Teacher, error) {
	if !validID(val) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	var row teacherRow
	query := "SELECT " + teacherColumns + " FROM teachers WHERE " + col + " = $1 LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, query, val); err != nil {
		return teacher.Teacher{}, trapNoRows(err, teacher.ErrNotFound, "selecting teacher")
	}
	return repo.fromRow(row), nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	return repo.get(ctx, "id", id)
}

func (repo *teacherRepository) GetTeacherByUserID(ctx context.Context, userID string) (teacher.Teacher, error) {
	return repo.get(ctx, "user_id", userID)
}

func (repo *teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	if !validID(t.ID) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	n, err := repo.affected(sqlx.NamedExecContext(ctx, repo.db, updateTeacherSQL, repo.toRow(t)))
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if n == 0 {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	return t, nil
}

func (repo *teacherRepository) DeleteTeacher(ctx context.Context, id string) error {
	if !validID(id) {
		return teacher.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	if n == 0 {
		return teacher.ErrNotFound
	}
	return nil
}
