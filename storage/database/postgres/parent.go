package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/parent"
)

type parentRow struct {
	ID           string         `db:"id"`
	ParentCode   string         `db:"parent_code"`
	KhmerName    string         `db:"khmer_name"`
	EnglishName  string         `db:"english_name"`
	Gender       string         `db:"gender"`
	Phone        string         `db:"phone"`
	Email        null.String    `db:"email"`
	Occupation   string         `db:"occupation"`
	Relationship string         `db:"relationship"`
	Address      string         `db:"address"`
	StudentIDs   pq.StringArray `db:"student_ids"`
	UserID       null.String    `db:"user_id"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

const (
	selectParentSQL = `SELECT p.id, p.parent_code, p.khmer_name, p.english_name, p.gender, p.phone, p.email,
		p.occupation, p.relationship, p.address, ARRAY(SELECT ps.student_id::text FROM parent_students ps
		WHERE ps.parent_id = p.id ORDER BY ps.student_id) AS student_ids, p.user_id, p.is_active,
		p.created_at, p.updated_at FROM parents p`

	insertParentSQL = `INSERT INTO parents (id, parent_code, khmer_name, english_name, gender, phone, email,
		occupation, relationship, address, user_id, is_active, created_at, updated_at) VALUES (:id, :parent_code,
		:khmer_name, :english_name, :gender, :phone, :email, :occupation, :relationship, :address, :user_id,
		:is_active, :created_at, :updated_at)`

	updateParentSQL = `UPDATE parents SET parent_code = :parent_code, khmer_name = :khmer_name,
		english_name = :english_name, gender = :gender, phone = :phone, email = :email, occupation = :occupation,
		relationship = :relationship, address = :address, user_id = :user_id, is_active = :is_active,
		updated_at = :updated_at WHERE id = :id`
)

type parentRepository struct {
	base
}

var _ parent.Repository = (*parentRepository)(nil) // interface compliance check

func NewParentRepository(db core.DB) *parentRepository {
	return &parentRepository{base{db: db}}
}

func (repo *parentRepository) toRow(p parent.Parent) parentRow {
	return parentRow{
		ID:           p.ID,
		ParentCode:   p.ParentCode,
		KhmerName:    p.KhmerName,
		EnglishName:  p.EnglishName,
		Gender:       p.Gender,
		Phone:        p.Phone,
		Email:        nullString(p.Email),
		Occupation:   p.Occupation,
		Relationship: p.Relationship,
		Address:      p.Address,
		UserID:       nullString(p.UserID),
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (row parentRow) parent() parent.Parent {
	return parent.Parent{
		ID:           row.ID,
		ParentCode:   row.ParentCode,
		KhmerName:    row.KhmerName,
		EnglishName:  row.EnglishName,
		Gender:       row.Gender,
		Phone:        row.Phone,
		Email:        row.Email.String,
		Occupation:   row.Occupation,
		Relationship: row.Relationship,
		Address:      row.Address,
		StudentIDs:   stringsOf(row.StudentIDs),
		UserID:       row.UserID.String,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (repo *parentRepository) CheckPhone(ctx context.Context, phone string, excludedIDs ...string) error {
	w := &where{}
	w.add("phone = ?", phone)
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		w.add("NOT (id = ANY(?::uuid[]))", pq.Array(ids))
	}
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM parents"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "checking parent phone")
	}
	if n > 0 {
		return parent.ErrPhoneExists
	}
	return nil
}

func (repo *parentRepository) LastCode(ctx context.Context, prefix string) (string, error) {
	var code null.String
	err := repo.db.GetContext(ctx, &code,
		"SELECT MAX(parent_code) FROM parents WHERE parent_code LIKE $1", prefix+"%")
	return code.String, errors.Wrap(err, "selecting last parent code")
}

func (repo *parentRepository) CreateParent(ctx context.Context, p parent.Parent) (parent.Parent, error) {
	p.ID = newID()
	if _, err := sqlx.NamedExecContext(ctx, repo.db, insertParentSQL, repo.toRow(p)); err != nil {
		if isUniqueViolation(err) {
			return parent.Parent{}, parent.ErrPhoneExists
		}
		return parent.Parent{}, errors.Wrap(err, "inserting parent")
	}
	p.StudentIDs = []string{}
	return p, nil
}

func (repo *parentRepository) QueryParents(ctx context.Context, filter parent.QueryFilter) ([]parent.Parent, error) {
	w := &where{}
	w.search(filter.Search, "p.khmer_name", "p.english_name", "p.parent_code", "p.phone")
	if filter.StudentID != "" {
		w.add("p.id IN (SELECT parent_id FROM parent_students WHERE student_id = ANY(?::uuid[]))",
			pq.Array(validIDs([]string{filter.StudentID})))
	}
	if filter.UserID != "" {
		w.in("p.user_id", []string{filter.UserID})
	}
	if filter.IsActive != nil {
		w.add("p.is_active = ?", *filter.IsActive)
	}
	if len(filter.IDs) > 0 {
		w.in("p.id", filter.IDs)
	}

	var rows []parentRow
	query := selectParentSQL + w.String() + " ORDER BY p.parent_code"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting parents")
	}
	parents := make([]parent.Parent, 0, len(rows))
	for _, row := range rows {
		parents = append(parents, row.parent())
	}
	return parents, nil
}

func (repo *parentRepository) get(ctx context.Context, col, val string) (parent.Parent, error) {
	if !validID(val) {
		return parent.Parent{}, parent.ErrNotFound
	}
	var row parentRow
	if err := repo.db.GetContext(ctx, &row, selectParentSQL+" WHERE p."+col+" = $1 LIMIT 1", val); err != nil {
		return parent.Parent{}, trapNoRows(err, parent.ErrNotFound, "selecting parent")
	}
	return row.parent(), nil
}

func (repo *parentRepository) GetParent(ctx context.Context, id string) (parent.Parent, error) {
	return repo.get(ctx, "id", id)
}

func (repo *parentRepository) GetParentByUserID(ctx context.Context, userID string) (parent.Parent, error) {
	return repo.get(ctx, "user_id", userID)
}

// UpdateParent keeps the linked students: they are changed through LinkStudents and UnlinkStudent.
func (repo *parentRepository) UpdateParent(ctx context.Context, p parent.Parent) (parent.Parent, error) {
	if !validID(p.ID) {
		return parent.Parent{}, parent.ErrNotFound
	}
	n, err := repo.affected(sqlx.NamedExecContext(ctx, repo.db, updateParentSQL, repo.toRow(p)))
	if err != nil {
		if isUniqueViolation(err) {
			return parent.Parent{}, parent.ErrPhoneExists
		}
		return parent.Parent{}, errors.Wrap(err, "updating parent")
	}
	if n == 0 {
		return parent.Parent{}, parent.ErrNotFound
	}
	return repo.GetParent(ctx, p.ID)
}

func (repo *parentRepository) DeleteParent(ctx context.Context, id string) error {
	if !validID(id) {
		return parent.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM parents WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	if n == 0 {
		return parent.ErrNotFound
	}
	return nil
}

func (repo *parentRepository) LinkStudents(ctx context.Context, parentID string, studentIDs []string) error {
	if !validID(parentID) {
		return parent.ErrNotFound
	}
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		return linkStudents(ctx, tx, parentID, studentIDs)
	})
}

func (repo *parentRepository) UnlinkStudent(ctx context.Context, parentID, studentID string) error {
	if !validID(parentID) {
		return parent.ErrNotFound
	}
	if !validID(studentID) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx,
		"DELETE FROM parent_students WHERE parent_id = $1 AND student_id = $2", parentID, studentID)
	return errors.Wrap(err, "unlinking student")
}

// linkStudents links the existing students among `studentIDs` to a parent.
func linkStudents(ctx context.Context, tx *sqlx.Tx, parentID string, studentIDs []string) error {
	ids := validIDs(studentIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO parent_students (parent_id, student_id)
		SELECT $1, s.id FROM students s WHERE s.id = ANY($2::uuid[]) ON CONFLICT DO NOTHING`, parentID, pq.Array(ids))
	return errors.Wrap(err, "linking students")
}
