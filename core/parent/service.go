package parent

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("parent not found")
	ErrPhoneExists      = errors.New("a parent with this phone number already exists")
	ErrNoStudents       = core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "no students provided"})
	ErrStudentsNotFound = core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "some students do not exist"})
)

type (
	Repository interface {
		// CheckPhone returns ErrPhoneExists when a parent other than the excluded ones uses `phone`.
		CheckPhone(ctx context.Context, phone string, excludedIDs ...string) error
		LastCode(ctx context.Context, prefix string) (string, error)
		CreateParent(ctx context.Context, p Parent) (Parent, error)
		// QueryParents returns parents (with their StudentIDs) ordered by code.
		QueryParents(ctx context.Context, filter QueryFilter) ([]Parent, error)
		GetParent(ctx context.Context, id string) (Parent, error)
		GetParentByUserID(ctx context.Context, userID string) (Parent, error)
		UpdateParent(ctx context.Context, p Parent) (Parent, error)
		DeleteParent(ctx context.Context, id string) error
		// LinkStudents links students to a parent, ignoring existing links.
		LinkStudents(ctx context.Context, parentID string, studentIDs []string) error
		UnlinkStudent(ctx context.Context, parentID, studentID string) error
	}

	StudentFinder interface {
		Query(ctx context.Context, filter student.QueryFilter) ([]student.Student, error)
	}

	AccountManager interface {
		CreateAccount(ctx context.Context, na user.NewAccount) (user.User, user.Credentials, error)
		SetActive(ctx context.Context, ids []string, active bool, reason string) (int, error)
		Delete(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		students StudentFinder
		accounts AccountManager
		codeMu   sync.Mutex
	}
)

func NewService(repo Repository, students StudentFinder, accounts AccountManager) *Service {
	return &Service{
		repo:     repo,
		students: students,
		accounts: accounts,
	}
}

func (svc *Service) checkPhone(ctx context.Context, phone string, excludedIDs ...string) error {
	if err := svc.repo.CheckPhone(ctx, phone, excludedIDs...); err != nil {
		if err == ErrPhoneExists {
			return core.NewValidationError(err, core.FieldError{Field: "phone", Error: err.Error()})
		}
		return errors.Wrap(err, "checking phone")
	}
	return nil
}

func (svc *Service) checkStudents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := svc.students.Query(ctx, student.QueryFilter{IDs: ids})
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if len(found) != len(uniq(ids)) {
		return ErrStudentsNotFound
	}
	return nil
}

// Create registers a parent under the next yearly parent code. Unless told otherwise, an account is
// created with the code as username and the phone number as temporary password.
func (svc *Service) Create(ctx context.Context, np NewParent) (Parent, user.Credentials, error) {
	if err := svc.checkPhone(ctx, np.Phone); err != nil {
		return Parent{}, user.Credentials{}, err
	}
	if err := svc.checkStudents(ctx, np.StudentIDs); err != nil {
		return Parent{}, user.Credentials{}, err
	}

	p, err := svc.create(ctx, Parent{
		KhmerName:    np.KhmerName,
		EnglishName:  np.EnglishName,
		Gender:       np.Gender,
		Phone:        np.Phone,
		Email:        np.Email,
		Occupation:   np.Occupation,
		Relationship: np.Relationship,
		Address:      np.Address,
		IsActive:     true,
	})
	if err != nil {
		return Parent{}, user.Credentials{}, errors.Wrap(err, "creating parent")
	}
	if len(np.StudentIDs) > 0 {
		if err = svc.repo.LinkStudents(ctx, p.ID, uniq(np.StudentIDs)); err != nil {
			return Parent{}, user.Credentials{}, errors.Wrap(err, "linking students")
		}
		p.StudentIDs = uniq(np.StudentIDs)
	}

	var creds user.Credentials
	if np.CreateAccount == nil || *np.CreateAccount {
		name := p.Name()
		var usr user.User
		usr, creds, err = svc.accounts.CreateAccount(ctx, user.NewAccount{
			FirstName: name,
			LastName:  name,
			Username:  p.ParentCode,
			Email:     p.Email,
			Phone:     p.Phone,
			Password:  p.Phone,
			Roles:     []string{user.RoleParent},
		})
		if err != nil {
			return Parent{}, user.Credentials{}, err
		}
		p.UserID = usr.ID
		if p, err = svc.repo.UpdateParent(ctx, p); err != nil {
			return Parent{}, user.Credentials{}, errors.Wrap(err, "linking account")
		}
	}
	return p, creds, nil
}

func (svc *Service) create(ctx context.Context, p Parent) (Parent, error) {
	svc.codeMu.Lock()
	defer svc.codeMu.Unlock()

	year := time.Now().Year()
	last, err := svc.repo.LastCode(ctx, core.CodePrefix(CodePrefix, year))
	if err != nil {
		return Parent{}, errors.Wrap(err, "finding last parent code")
	}
	if p.ParentCode, err = core.NextCode(CodePrefix, year, last); err != nil {
		return Parent{}, err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return svc.repo.CreateParent(ctx, p)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Parent, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryParents(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Parent, error) {
	return svc.repo.GetParent(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Parent, error) {
	if userID == "" {
		return Parent{}, ErrNotFound
	}
	return svc.repo.GetParentByUserID(ctx, userID)
}

func (svc *Service) Update(ctx context.Context, p Parent, up UpdateParent) (Parent, error) {
	if up.Phone != nil && *up.Phone != p.Phone {
		if err := svc.checkPhone(ctx, *up.Phone, p.ID); err != nil {
			return Parent{}, err
		}
	}
	wasActive := p.IsActive
	up.apply(&p)
	p.UpdatedAt = time.Now().UTC()

	p, err := svc.repo.UpdateParent(ctx, p)
	if err != nil {
		return Parent{}, errors.Wrap(err, "updating parent")
	}
	if p.UserID != "" && wasActive != p.IsActive {
		if _, err = svc.accounts.SetActive(ctx, []string{p.UserID}, p.IsActive, ""); err != nil {
			return Parent{}, errors.Wrap(err, "updating parent account")
		}
	}
	return p, nil
}

// Delete deletes a parent, their links to students and their account.
func (svc *Service) Delete(ctx context.Context, id string) error {
	p, err := svc.repo.GetParent(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteParent(ctx, id); err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	if p.UserID != "" {
		if err = svc.accounts.Delete(ctx, p.UserID); err != nil {
			return errors.Wrap(err, "deleting parent account")
		}
	}
	return nil
}

func (svc *Service) LinkStudents(ctx context.Context, p Parent, studentIDs []string) (Parent, error) {
	if len(studentIDs) == 0 {
		return Parent{}, ErrNoStudents
	}
	if err := svc.checkStudents(ctx, studentIDs); err != nil {
		return Parent{}, err
	}
	if err := svc.repo.LinkStudents(ctx, p.ID, uniq(studentIDs)); err != nil {
		return Parent{}, errors.Wrap(err, "linking students")
	}
	return svc.repo.GetParent(ctx, p.ID)
}

func (svc *Service) UnlinkStudent(ctx context.Context, p Parent, studentID string) (Parent, error) {
	if !p.HasChild(studentID) {
		return Parent{}, student.ErrNotFound
	}
	if err := svc.repo.UnlinkStudent(ctx, p.ID, studentID); err != nil {
		return Parent{}, errors.Wrap(err, "unlinking student")
	}
	return svc.repo.GetParent(ctx, p.ID)
}

// Children returns the students linked to the parent owning the account `userID`.
func (svc *Service) Children(ctx context.Context, userID string) ([]student.Student, error) {
	p, err := svc.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(p.StudentIDs) == 0 {
		return []student.Student{}, nil
	}
	children, err := svc.students.Query(ctx, student.QueryFilter{IDs: p.StudentIDs})
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	return children, nil
}

func (svc *Service) Statistics(ctx context.Context) (Stats, error) {
	parents, err := svc.repo.QueryParents(ctx, QueryFilter{})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying parents")
	}
	stats := Stats{Total: len(parents), ByRelation: make(map[string]int, len(Relationships))}
	for _, rel := range Relationships {
		stats.ByRelation[rel] = 0
	}
	for _, p := range parents {
		if p.IsActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if p.UserID != "" {
			stats.WithAccount++
		}
		if len(p.StudentIDs) > 0 {
			stats.WithChildren++
		}
		stats.ByRelation[p.Relationship]++
	}
	return stats, nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
