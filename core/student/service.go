package student

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("student not found")
	ErrEmailExists       = errors.New("a student with this email already exists")
	ErrClassNotFound     = core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: "class not found"})
	ErrNoAccount         = core.NewValidationError(errors.New("student has no account"))
	ErrEmptyAccountScope = core.NewValidationError(errors.New("select all students, a grade or a list of students"))
)

type (
	Repository interface {
		// CheckEmail returns ErrEmailExists when a student other than the excluded ones uses `email`.
		CheckEmail(ctx context.Context, email string, excludedIDs ...string) error
		// LastCode returns the highest student code starting with `prefix`, or "".
		LastCode(ctx context.Context, prefix string) (string, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		// QueryStudents applies AND operation on available QueryFilter fields, ordered by code.
		// QueryFilter.Search does a case-insensitive match on the names, code or phone.
		QueryStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		CountStudents(ctx context.Context, filter QueryFilter) (int, error)
		GetStudent(ctx context.Context, filter GetFilter) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
	}

	// ClassFinder finds the class of a student.
	ClassFinder interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
	}

	// AccountManager manages the login accounts of students.
	AccountManager interface {
		CreateAccount(ctx context.Context, na user.NewAccount) (user.User, user.Credentials, error)
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
		SetActive(ctx context.Context, ids []string, active bool, reason string) (int, error)
		Delete(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		classes  ClassFinder
		accounts AccountManager
		codeMu   sync.Mutex
	}
)

func NewService(repo Repository, classes ClassFinder, accounts AccountManager) *Service {
	return &Service{
		repo:     repo,
		classes:  classes,
		accounts: accounts,
	}
}

func (svc *Service) checkClass(ctx context.Context, classID string) (school.Class, error) {
	cls, err := svc.classes.GetClass(ctx, classID)
	if err != nil {
		if core.IsNotFound(err) {
			return school.Class{}, ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return cls, nil
}

func (svc *Service) checkEmail(ctx context.Context, email string, excludedIDs ...string) error {
	if email == "" {
		return nil
	}
	if err := svc.repo.CheckEmail(ctx, email, excludedIDs...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email")
	}
	return nil
}

// create assigns the next yearly student code and saves `s`.
func (svc *Service) create(ctx context.Context, s Student) (Student, error) {
	svc.codeMu.Lock()
	defer svc.codeMu.Unlock()

	year := time.Now().Year()
	last, err := svc.repo.LastCode(ctx, core.CodePrefix(CodePrefix, year))
	if err != nil {
		return Student{}, errors.Wrap(err, "finding last student code")
	}
	if s.StudentCode, err = core.NextCode(CodePrefix, year, last); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if ns.ClassID != "" {
		if _, err := svc.checkClass(ctx, ns.ClassID); err != nil {
			return Student{}, err
		}
	}
	if err := svc.checkEmail(ctx, ns.Email); err != nil {
		return Student{}, err
	}
	return svc.create(ctx, ns.student())
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) Count(ctx context.Context, filter QueryFilter) (int, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.CountStudents(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

// GetByUserID finds the student owning the account `userID`.
func (svc *Service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	if userID == "" {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

func (svc *Service) Update(ctx context.Context, s Student, us UpdateStudent) (Student, error) {
	if us.ClassID != nil && *us.ClassID != "" && *us.ClassID != s.ClassID {
		if _, err := svc.checkClass(ctx, *us.ClassID); err != nil {
			return Student{}, err
		}
	}
	if us.Email != nil && *us.Email != s.Email {
		if err := svc.checkEmail(ctx, *us.Email, s.ID); err != nil {
			return Student{}, err
		}
	}
	us.apply(&s)
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

// Delete deletes a student and their account.
func (svc *Service) Delete(ctx context.Context, id string) error {
	s, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteStudent(ctx, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if s.HasAccount() {
		if err = svc.accounts.Delete(ctx, s.UserID); err != nil {
			return errors.Wrap(err, "deleting student account")
		}
	}
	return nil
}

// Roster returns the students of a class ordered by their Khmer names.
func (svc *Service) Roster(ctx context.Context, classID string) ([]Student, error) {
	students, err := svc.repo.QueryStudents(ctx, QueryFilter{ClassID: classID})
	if err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	SortByName(students)
	return students, nil
}

// SortByName sorts students by name using the Khmer collation.
func SortByName(students []Student) {
	less := core.KhmerLess()
	sort.SliceStable(students, func(i, j int) bool { return less(students[i].Name(), students[j].Name()) })
}

// Accounts

func (svc *Service) accountScope(ctx context.Context, af AccountFilter) ([]Student, error) {
	if af.IsEmpty() {
		return nil, ErrEmptyAccountScope
	}
	filter := QueryFilter{Grade: af.Grade, IDs: af.StudentIDs}
	return svc.repo.QueryStudents(ctx, filter)
}

// CreateAccounts creates the missing accounts of the selected students. The username is the lower-cased
// student code and the password is generated: the returned credentials are the only copy of it.
func (svc *Service) CreateAccounts(ctx context.Context, af AccountFilter) ([]AccountCredentials, error) {
	students, err := svc.accountScope(ctx, af)
	if err != nil {
		return nil, err
	}

	creds := make([]AccountCredentials, 0, len(students))
	for _, s := range students {
		if s.HasAccount() {
			continue
		}
		c, err := svc.createAccount(ctx, s)
		if err != nil {
			return creds, errors.Wrapf(err, "creating account of student %s", s.StudentCode)
		}
		creds = append(creds, c)
	}
	return creds, nil
}

// CreateAccount creates the account of a single student.
func (svc *Service) CreateAccount(ctx context.Context, s Student) (AccountCredentials, error) {
	if s.HasAccount() {
		return AccountCredentials{}, core.NewValidationError(errors.New("student already has an account"))
	}
	return svc.createAccount(ctx, s)
}

func (svc *Service) createAccount(ctx context.Context, s Student) (AccountCredentials, error) {
	usr, c, err := svc.accounts.CreateAccount(ctx, user.NewAccount{
		FirstName: firstNonEmpty(s.FirstName, s.Name()),
		LastName:  firstNonEmpty(s.LastName, s.Name()),
		Username:  strings.ToLower(s.StudentCode),
		Email:     s.Email,
		Roles:     []string{user.RoleStudent},
	})
	if err != nil {
		return AccountCredentials{}, err
	}
	s.UserID = usr.ID
	s.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateStudent(ctx, s); err != nil {
		return AccountCredentials{}, errors.Wrap(err, "linking account")
	}
	return AccountCredentials{StudentID: s.ID, StudentName: s.Name(), Login: c.Login, Password: c.Password}, nil
}

// SetAccountsActive activates or deactivates the accounts of the selected students.
func (svc *Service) SetAccountsActive(ctx context.Context, af AccountFilter, active bool, reason string) (int, error) {
	students, err := svc.accountScope(ctx, af)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		if s.HasAccount() {
			ids = append(ids, s.UserID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return svc.accounts.SetActive(ctx, ids, active, reason)
}

// AccountStatistics summarizes the student accounts.
func (svc *Service) AccountStatistics(ctx context.Context) (AccountStats, error) {
	total, err := svc.repo.CountStudents(ctx, QueryFilter{})
	if err != nil {
		return AccountStats{}, errors.Wrap(err, "counting students")
	}
	hasAccount := true
	withAccount, err := svc.repo.CountStudents(ctx, QueryFilter{HasAccount: &hasAccount})
	if err != nil {
		return AccountStats{}, errors.Wrap(err, "counting students with account")
	}
	accounts, err := svc.accounts.Query(ctx, &user.QueryFilter{Roles: []string{user.RoleStudent}}, nil)
	if err != nil {
		return AccountStats{}, errors.Wrap(err, "querying student accounts")
	}

	stats := AccountStats{TotalStudents: total, WithAccount: withAccount, WithoutAccount: total - withAccount}
	for _, a := range accounts {
		if a.IsActive {
			stats.ActiveAccounts++
		} else {
			stats.InactiveAccounts++
		}
	}
	return stats, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
