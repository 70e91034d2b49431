package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
)

type classRow struct {
	ID                string      `db:"id"`
	Name              string      `db:"name"`
	Grade             int         `db:"grade"`
	Section           string      `db:"section"`
	AcademicYear      string      `db:"academic_year"`
	HomeroomTeacherID null.String `db:"homeroom_teacher_id"`
	Capacity          int         `db:"capacity"`
	StudentCount      int         `db:"student_count"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

type subjectRow struct {
	ID          string         `db:"id"`
	NameKh      string         `db:"name_kh"`
	NameEn      string         `db:"name_en"`
	Code        string         `db:"code"`
	Grade       int            `db:"grade"`
	MaxScore    float64        `db:"max_score"`
	Coefficient float64        `db:"coefficient"`
	IsActive    bool           `db:"is_active"`
	TeacherIDs  pq.StringArray `db:"teacher_ids"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

const (
	selectClassSQL = `SELECT c.id, c.name, c.grade, c.section, c.academic_year, c.homeroom_teacher_id, c.capacity,
		(SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS student_count, c.created_at, c.updated_at
		FROM classes c`

	selectSubjectSQL = `SELECT sj.id, sj.name_kh, sj.name_en, sj.code, sj.grade, sj.max_score, sj.coefficient,
		sj.is_active, ARRAY(SELECT st.teacher_id::text FROM subject_teachers st WHERE st.subject_id = sj.id
		ORDER BY st.teacher_id) AS teacher_ids, sj.created_at, sj.updated_at
		FROM subjects sj`
)

type schoolRepository struct {
	base
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db core.DB) *schoolRepository {
	return &schoolRepository{base{db: db}}
}

func (row classRow) class() school.Class {
	return school.Class{
		ID:                row.ID,
		Name:              row.Name,
		Grade:             row.Grade,
		Section:           row.Section,
		AcademicYear:      row.AcademicYear,
		HomeroomTeacherID: row.HomeroomTeacherID.String,
		Capacity:          row.Capacity,
		StudentCount:      row.StudentCount,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (row subjectRow) subject() school.Subject {
	return school.Subject{
		ID:          row.ID,
		NameKh:      row.NameKh,
		NameEn:      row.NameEn,
		Code:        row.Code,
		Grade:       row.Grade,
		MaxScore:    row.MaxScore,
		Coefficient: row.Coefficient,
		IsActive:    row.IsActive,
		TeacherIDs:  stringsOf(row.TeacherIDs),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

// Classes

func (repo *schoolRepository) CreateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	cls.ID = newID()
	cls.StudentCount = 0
	_, err := repo.db.ExecContext(ctx, `INSERT INTO classes (id, name, grade, section, academic_year,
		homeroom_teacher_id, capacity, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cls.ID, cls.Name, cls.Grade, cls.Section, cls.AcademicYear, nullString(cls.HomeroomTeacherID),
		cls.Capacity, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, filter school.ClassFilter) ([]school.Class, error) {
	w := &where{}
	w.search(filter.Search, "c.name")
	if filter.Grade != 0 {
		w.add("c.grade = ?", filter.Grade)
	}
	if filter.AcademicYear != "" {
		w.add("c.academic_year = ?", filter.AcademicYear)
	}
	if filter.TeacherID != "" {
		w.in("c.homeroom_teacher_id", []string{filter.TeacherID})
	}
	if len(filter.IDs) > 0 {
		w.in("c.id", filter.IDs)
	}

	var rows []classRow
	query := selectClassSQL + w.String() + " ORDER BY c.grade, c.name, c.id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, id string) (school.Class, error) {
	if !validID(id) {
		return school.Class{}, school.ErrClassNotFound
	}
	var row classRow
	if err := repo.db.GetContext(ctx, &row, selectClassSQL+" WHERE c.id = $1", id); err != nil {
		return school.Class{}, trapNoRows(err, school.ErrClassNotFound, "selecting class")
	}
	return row.class(), nil
}

func (repo *schoolRepository) UpdateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	if !validID(cls.ID) {
		return school.Class{}, school.ErrClassNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, `UPDATE classes SET name = $2, grade = $3, section = $4,
		academic_year = $5, homeroom_teacher_id = $6, capacity = $7, updated_at = $8 WHERE id = $1`,
		cls.ID, cls.Name, cls.Grade, cls.Section, cls.AcademicYear, nullString(cls.HomeroomTeacherID),
		cls.Capacity, cls.UpdatedAt.UTC()))
	if err != nil {
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if n == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return repo.GetClass(ctx, cls.ID)
}

func (repo *schoolRepository) DeleteClass(ctx context.Context, id string) error {
	if !validID(id) {
		return school.ErrClassNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n == 0 {
		return school.ErrClassNotFound
	}
	return nil
}

func (repo *schoolRepository) AssignStudents(ctx context.Context, classID string, studentIDs []string) (int, error) {
	ids := validIDs(studentIDs)
	if len(ids) == 0 || !validID(classID) {
		return 0, nil
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"UPDATE students SET class_id = $1, updated_at = $2 WHERE id = ANY($3::uuid[])",
		classID, time.Now().UTC(), pq.Array(ids)))
	return n, errors.Wrap(err, "assigning students")
}

func (repo *schoolRepository) RemoveStudent(ctx context.Context, classID, studentID string) error {
	if !validID(classID) || !validID(studentID) {
		return school.ErrStudentNotInClass
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"UPDATE students SET class_id = NULL, updated_at = $3 WHERE id = $1 AND class_id = $2",
		studentID, classID, time.Now().UTC()))
	if err != nil {
		return errors.Wrap(err, "removing student from class")
	}
	if n == 0 {
		return school.ErrStudentNotInClass
	}
	return nil
}

// Subjects

func (repo *schoolRepository) CheckSubjectCode(ctx context.Context, code string, excludedIDs ...string) error {
	w := &where{}
	w.add("code = ?", code)
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		w.add("NOT (id = ANY(?::uuid[]))", pq.Array(ids))
	}
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM subjects"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "checking subject code")
	}
	if n > 0 {
		return school.ErrSubjectCodeExists
	}
	return nil
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, subj school.Subject) (school.Subject, error) {
	subj.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO subjects (id, name_kh, name_en, code, grade, max_score,
		coefficient, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		subj.ID, subj.NameKh, subj.NameEn, subj.Code, subj.Grade, subj.MaxScore, subj.Coefficient,
		subj.IsActive, subj.CreatedAt.UTC(), subj.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return school.Subject{}, school.ErrSubjectCodeExists
		}
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	subj.TeacherIDs = []string{}
	return subj, nil
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, filter school.SubjectFilter) ([]school.Subject, error) {
	w := &where{}
	w.search(filter.Search, "sj.name_kh", "sj.name_en", "sj.code")
	if filter.Grade != 0 {
		w.add("sj.grade = ?", filter.Grade)
	}
	if filter.IsActive != nil {
		w.add("sj.is_active = ?", *filter.IsActive)
	}
	if filter.TeacherID != "" {
		w.add("sj.id IN (SELECT subject_id FROM subject_teachers WHERE teacher_id = ANY(?::uuid[]))",
			pq.Array(validIDs([]string{filter.TeacherID})))
	}
	if len(filter.IDs) > 0 {
		w.in("sj.id", filter.IDs)
	}

	var rows []subjectRow
	query := selectSubjectSQL + w.String() + " ORDER BY sj.grade, sj.code"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}

func (repo *schoolRepository) GetSubject(ctx context.Context, id string) (school.Subject, error) {
	if !validID(id) {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	var row subjectRow
	if err := repo.db.GetContext(ctx, &row, selectSubjectSQL+" WHERE sj.id = $1", id); err != nil {
		return school.Subject{}, trapNoRows(err, school.ErrSubjectNotFound, "selecting subject")
	}
	return row.subject(), nil
}

// UpdateSubject keeps the assigned teachers: they are changed through SetSubjectTeachers.
func (repo *schoolRepository) UpdateSubject(ctx context.Context, subj school.Subject) (school.Subject, error) {
	if !validID(subj.ID) {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, `UPDATE subjects SET name_kh = $2, name_en = $3, code = $4,
		grade = $5, max_score = $6, coefficient = $7, is_active = $8, updated_at = $9 WHERE id = $1`,
		subj.ID, subj.NameKh, subj.NameEn, subj.Code, subj.Grade, subj.MaxScore, subj.Coefficient,
		subj.IsActive, subj.UpdatedAt.UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return school.Subject{}, school.ErrSubjectCodeExists
		}
		return school.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n == 0 {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	return repo.GetSubject(ctx, subj.ID)
}

func (repo *schoolRepository) DeleteSubject(ctx context.Context, id string) error {
	if !validID(id) {
		return school.ErrSubjectNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM subjects WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if n == 0 {
		return school.ErrSubjectNotFound
	}
	return nil
}

func (repo *schoolRepository) SetSubjectTeachers(ctx context.Context, subjectID string, teacherIDs []string) error {
	if !validID(subjectID) {
		return school.ErrSubjectNotFound
	}
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)", subjectID); err != nil {
			return errors.Wrap(err, "selecting subject")
		}
		if !exists {
			return school.ErrSubjectNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM subject_teachers WHERE subject_id = $1", subjectID); err != nil {
			return errors.Wrap(err, "clearing subject teachers")
		}
		return setSubjectTeachers(ctx, tx, subjectID, teacherIDs)
	})
}

// setSubjectTeachers links the existing teachers among `teacherIDs` to a subject.
func setSubjectTeachers(ctx context.Context, tx *sqlx.Tx, subjectID string, teacherIDs []string) error {
	ids := validIDs(teacherIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO subject_teachers (subject_id, teacher_id)
		SELECT $1, t.id FROM teachers t WHERE t.id = ANY($2::uuid[]) ON CONFLICT DO NOTHING`, subjectID, pq.Array(ids))
	return errors.Wrap(err, "linking subject teachers")
}
