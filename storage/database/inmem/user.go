package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

var userColumns = map[string]string{
	"created_at": "created_at",
	"first_name": "first_name",
	"last_name":  "last_name",
	"username":   "username",
	"email":      "email",
	"last_login": "last_login",
}

func cloneUser(u user.User) user.User {
	u.Roles = cloneStrings(u.Roles)
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	history := make([][]byte, 0, len(u.PasswordHistory))
	for _, h := range u.PasswordHistory {
		history = append(history, append([]byte(nil), h...))
	}
	u.PasswordHistory = history
	return u
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email, phone string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, u := range repo.db.users {
		if core.Contains(excludedIDs, u.ID) {
			continue
		}
		switch {
		case username != "" && u.Username == username:
			return user.ErrUsernameExists
		case email != "" && u.Email == email:
			return user.ErrEmailExists
		case phone != "" && u.Phone == phone:
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = newID()
	repo.db.users[usr.ID] = cloneUser(usr)
	return usr, nil
}

func userMatches(u user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if !matches(filter.Search, u.FirstName, u.LastName, u.Username, u.Email, u.Phone) {
		return false
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, role := range filter.Roles {
			if u.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if filter.IsDefaultPassword != nil && u.IsDefaultPassword != *filter.IsDefaultPassword {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	if !inList(filter.IDs, u.ID) {
		return false
	}
	if !filter.PasswordExpiresBefore.IsZero() &&
		(u.PasswordExpiresAt.IsZero() || !u.PasswordExpiresAt.Before(filter.PasswordExpiresBefore)) {
		return false
	}
	return true
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "first_name":
		return strings.Compare(a.FirstName, b.FirstName)
	case "last_name":
		return strings.Compare(a.LastName, b.LastName)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "last_login":
		return compareTimes(a.LastLogin, b.LastLogin)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.db.users {
		if userMatches(u, filter) {
			users = append(users, cloneUser(u))
		}
	}

	ordering = core.AllowedOrderings(ordering, userColumns)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) CountUsers(_ context.Context, filter *user.QueryFilter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	n := 0
	for _, u := range repo.db.users {
		if userMatches(u, filter) {
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if u, ok := repo.db.users[filter.ID]; ok {
			return cloneUser(u), nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Login == "" {
		return user.User{}, user.ErrNotFound
	}
	phone := core.NormalizePhone(filter.Login)
	for _, u := range repo.db.users {
		if u.Username == filter.Login || u.Email == filter.Login || (u.Phone != "" && u.Phone == phone) {
			return cloneUser(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = cloneUser(usr)
	return usr, nil
}

func (repo *userRepository) SetUsersActive(_ context.Context, ids []string, active bool, reason string, at time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, id := range ids {
		u, ok := repo.db.users[id]
		if !ok {
			continue
		}
		u.IsActive = active
		if active {
			u.SuspendedAt = time.Time{}
			u.SuspensionReason = ""
		} else {
			u.SuspendedAt = at
			u.SuspensionReason = reason
		}
		u.UpdatedAt = at
		repo.db.users[id] = u
		n++
	}
	return n, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			repo.db.unlinkUser(id)
			n++
		}
	}
	return n, nil
}
