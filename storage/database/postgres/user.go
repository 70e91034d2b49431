package pgrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/user"
)

type userRow struct {
	ID                string         `db:"id"`
	FirstName         string         `db:"first_name"`
	LastName          string         `db:"last_name"`
	Username          null.String    `db:"username"`
	Email             null.String    `db:"email"`
	Phone             null.String    `db:"phone"`
	IsActive          bool           `db:"is_active"`
	Roles             pq.StringArray `db:"roles"`
	AvatarURL         null.String    `db:"avatar_url"`
	IsDefaultPassword bool           `db:"is_default_password"`
	PasswordHash      []byte         `db:"password_hash"`
	PasswordHistory   pq.ByteaArray  `db:"password_history"`
	PasswordChangedAt null.Time      `db:"password_changed_at"`
	PasswordExpiresAt null.Time      `db:"password_expires_at"`
	LastLogin         null.Time      `db:"last_login"`
	LoginCount        int            `db:"login_count"`
	SuspendedAt       null.Time      `db:"suspended_at"`
	SuspensionReason  null.String    `db:"suspension_reason"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

const (
	userColumns = `id, first_name, last_name, username, email, phone, is_active, roles, avatar_url,
		is_default_password, password_hash, password_history, password_changed_at, password_expires_at,
		last_login, login_count, suspended_at, suspension_reason, created_at, updated_at`

	insertUserSQL = `INSERT INTO users (` + userColumns + `) VALUES (:id, :first_name, :last_name, :username,
		:email, :phone, :is_active, :roles, :avatar_url, :is_default_password, :password_hash, :password_history,
		:password_changed_at, :password_expires_at, :last_login, :login_count, :suspended_at, :suspension_reason,
		:created_at, :updated_at)`

	updateUserSQL = `UPDATE users SET first_name = :first_name, last_name = :last_name, username = :username,
		email = :email, phone = :phone, is_active = :is_active, roles = :roles, avatar_url = :avatar_url,
		is_default_password = :is_default_password, password_hash = :password_hash,
		password_history = :password_history, password_changed_at = :password_changed_at,
		password_expires_at = :password_expires_at, last_login = :last_login, login_count = :login_count,
		suspended_at = :suspended_at, suspension_reason = :suspension_reason, updated_at = :updated_at
		WHERE id = :id`
)

// user ordering fields -> columns
var userOrderColumns = map[string]string{
	"created_at": "created_at",
	"first_name": "first_name",
	"last_name":  "last_name",
	"username":   "username",
	"email":      "email",
	"last_login": "last_login",
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{base{db: db}}
}

func (repo *userRepository) toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	history := usr.PasswordHistory
	if history == nil {
		history = [][]byte{}
	}
	return userRow{
		ID:                usr.ID,
		FirstName:         usr.FirstName,
		LastName:          usr.LastName,
		Username:          nullString(usr.Username),
		Email:             nullString(usr.Email),
		Phone:             nullString(usr.Phone),
		IsActive:          usr.IsActive,
		Roles:             roles,
		AvatarURL:         nullString(usr.AvatarURL),
		IsDefaultPassword: usr.IsDefaultPassword,
		PasswordHash:      usr.PasswordHash,
		PasswordHistory:   history,
		PasswordChangedAt: nullTime(usr.PasswordChangedAt),
		PasswordExpiresAt: nullTime(usr.PasswordExpiresAt),
		LastLogin:         nullTime(usr.LastLogin),
		LoginCount:        usr.LoginCount,
		SuspendedAt:       nullTime(usr.SuspendedAt),
		SuspensionReason:  nullString(usr.SuspensionReason),
		CreatedAt:         usr.CreatedAt.UTC(),
		UpdatedAt:         usr.UpdatedAt.UTC(),
	}
}

func (repo *userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:                row.ID,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		Username:          row.Username.String,
		Email:             row.Email.String,
		Phone:             row.Phone.String,
		IsActive:          row.IsActive,
		Roles:             stringsOf(row.Roles),
		AvatarURL:         row.AvatarURL.String,
		IsDefaultPassword: row.IsDefaultPassword,
		PasswordHash:      row.PasswordHash,
		PasswordHistory:   [][]byte(row.PasswordHistory),
		PasswordChangedAt: timeOf(row.PasswordChangedAt),
		PasswordExpiresAt: timeOf(row.PasswordExpiresAt),
		LastLogin:         timeOf(row.LastLogin),
		LoginCount:        row.LoginCount,
		SuspendedAt:       timeOf(row.SuspendedAt),
		SuspensionReason:  row.SuspensionReason.String,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email, phone string, excludedIDs ...string) error {
	checks := []struct {
		col string
		val string
		err error
	}{
		{"username", username, user.ErrUsernameExists},
		{"email", email, user.ErrEmailExists},
		{"phone", phone, user.ErrPhoneExists},
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
		n, err := repo.count(ctx, "SELECT COUNT(*) FROM users"+w.String(), w.args...)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if n > 0 {
			return c.err
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	if _, err := sqlx.NamedExecContext(ctx, repo.db, insertUserSQL, repo.toRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) filter(filter *user.QueryFilter) *where {
	w := &where{}
	if filter == nil {
		return w
	}
	w.search(filter.Search, "first_name", "last_name", "username", "email", "phone")
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		ors := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			ors = append(ors, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)")
			w.args = append(w.args, role+"%")
		}
		w.conds = append(w.conds, "("+strings.Join(ors, " OR ")+")")
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.IsDefaultPassword != nil {
		w.add("is_default_password = ?", *filter.IsDefaultPassword)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}
	if len(filter.IDs) > 0 {
		w.in("id", filter.IDs)
	}
	if !filter.PasswordExpiresBefore.IsZero() {
		w.add("password_expires_at < ?", filter.PasswordExpiresBefore.UTC())
	}
	return w
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	w := repo.filter(filter)

	ordering = core.AllowedOrderings(ordering, userOrderColumns)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderBy = append(orderBy, ord.String())
	}
	orderBy = append(orderBy, "id ASC")

	query := "SELECT " + userColumns + " FROM users" + w.String() + " ORDER BY " + strings.Join(orderBy, ", ")
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter) (int, error) {
	w := repo.filter(filter)
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM users"+w.String(), w.args...)
	return n, errors.Wrap(err, "counting users")
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	w := &where{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Login != "":
		w.add("(username = ? OR email = ? OR phone = ?)", filter.Login, filter.Login, core.NormalizePhone(filter.Login))
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	query := "SELECT " + userColumns + " FROM users" + w.String() + " LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(query), w.args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "selecting user")
	}
	return repo.fromRow(row), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	n, err := repo.affected(sqlx.NamedExecContext(ctx, repo.db, updateUserSQL, repo.toRow(usr)))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetUsersActive(ctx context.Context, ids []string, active bool, reason string, at time.Time) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE users SET is_active = $1, suspended_at = $2, suspension_reason = $3, updated_at = $4
		WHERE id = ANY($5::uuid[])`
	suspendedAt, suspensionReason := nullTime(at), nullString(reason)
	if active {
		suspendedAt, suspensionReason = null.Time{}, null.String{}
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, query, active, suspendedAt, suspensionReason, at.UTC(), pq.Array(ids)))
	return n, errors.Wrap(err, "updating users status")
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1::uuid[])", pq.Array(ids)))
	return n, errors.Wrap(err, "deleting users")
}
