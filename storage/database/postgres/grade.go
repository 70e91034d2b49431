package pgrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/grade"
)

const (
	gradeColumns = `id, student_id, subject_id, class_id, month, month_number, year, score, max_score, remarks,
		created_at, updated_at`

	selectGradeSQL = "SELECT " + gradeColumns + " FROM grades"
)

type gradeRow struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	SubjectID   string    `db:"subject_id"`
	ClassID     string    `db:"class_id"`
	Month       string    `db:"month"`
	MonthNumber int       `db:"month_number"`
	Year        int       `db:"year"`
	Score       float64   `db:"score"`
	MaxScore    float64   `db:"max_score"`
	Remarks     string    `db:"remarks"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row gradeRow) grade() grade.Grade {
	return grade.Grade{
		ID:          row.ID,
		StudentID:   row.StudentID,
		SubjectID:   row.SubjectID,
		ClassID:     row.ClassID,
		Month:       row.Month,
		MonthNumber: row.MonthNumber,
		Year:        row.Year,
		Score:       row.Score,
		MaxScore:    row.MaxScore,
		Remarks:     row.Remarks,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type gradeRepository struct {
	base
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db core.DB) *gradeRepository {
	return &gradeRepository{base{db: db}}
}

func (repo *gradeRepository) QueryGrades(ctx context.Context, filter grade.QueryFilter) ([]grade.Grade, error) {
	w := &where{}
	if filter.ClassID != "" {
		w.in("class_id", []string{filter.ClassID})
	}
	if filter.StudentID != "" {
		w.in("student_id", []string{filter.StudentID})
	}
	if filter.SubjectID != "" {
		w.in("subject_id", []string{filter.SubjectID})
	}
	if filter.MonthNumber != 0 {
		w.add("month_number = ?", filter.MonthNumber)
	}
	if filter.Year != 0 {
		w.add("year = ?", filter.Year)
	}

	var rows []gradeRow
	query := selectGradeSQL + w.String() + " ORDER BY year, month_number, student_id, subject_id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting grades")
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, row.grade())
	}
	return grades, nil
}

func (repo *gradeRepository) GetGrade(ctx context.Context, id string) (grade.Grade, error) {
	if !validID(id) {
		return grade.Grade{}, grade.ErrNotFound
	}
	var row gradeRow
	if err := repo.db.GetContext(ctx, &row, selectGradeSQL+" WHERE id = $1", id); err != nil {
		return grade.Grade{}, trapNoRows(err, grade.ErrNotFound, "selecting grade")
	}
	return row.grade(), nil
}

func (repo *gradeRepository) SaveGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	var row gradeRow
	err := repo.db.GetContext(ctx, &row, `INSERT INTO grades (`+gradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (student_id, subject_id, class_id, month_number, year) DO UPDATE SET month = EXCLUDED.month,
		score = EXCLUDED.score, max_score = EXCLUDED.max_score, remarks = EXCLUDED.remarks,
		updated_at = EXCLUDED.updated_at
		RETURNING `+gradeColumns,
		newID(), g.StudentID, g.SubjectID, g.ClassID, g.Month, g.MonthNumber, g.Year, g.Score, g.MaxScore,
		g.Remarks, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if err != nil {
		return grade.Grade{}, errors.Wrap(err, "saving grade")
	}
	return row.grade(), nil
}

func (repo *gradeRepository) DeleteScore(ctx context.Context, studentID, subjectID, classID string, month, year int) (int, error) {
	if !validID(studentID) || !validID(subjectID) || !validID(classID) {
		return 0, nil
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, `DELETE FROM grades WHERE student_id = $1 AND subject_id = $2
		AND class_id = $3 AND month_number = $4 AND year = $5`, studentID, subjectID, classID, month, year))
	return n, errors.Wrap(err, "deleting score")
}

func (repo *gradeRepository) DeleteGrade(ctx context.Context, id string) error {
	if !validID(id) {
		return grade.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM grades WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	if n == 0 {
		return grade.ErrNotFound
	}
	return nil
}
