package teacher

import (
	"context"
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
	ErrNotFound           = core.NewNotFoundError("teacher not found")
	ErrEmailExists        = errors.New("a teacher with this email already exists")
	ErrEmployeeIDExists   = errors.New("a teacher with this employee ID already exists")
	ErrHomeroomNotFound   = core.NewValidationError(nil, core.FieldError{Field: "homeroom_class_id", Error: "class not found"})
	ErrInvalidDate        = core.NewValidationError(errors.New("invalid date"))
	errHomeroomTakenField = "homeroom_class_id"
)

type (
	Repository interface {
		// CheckUniqueness returns ErrEmailExists or ErrEmployeeIDExists when a teacher other than the excluded
		// ones already uses one of the non-empty values.
		CheckUniqueness(ctx context.Context, email, employeeID string, excludedIDs ...string) error
		LastCode(ctx context.Context, prefix string) (string, error)
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		// QueryTeachers returns teachers ordered by employee ID.
		QueryTeachers(ctx context.Context, filter QueryFilter) ([]Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		GetTeacherByUserID(ctx context.Context, userID string) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		DeleteTeacher(ctx context.Context, id string) error
	}

	// ClassManager sets the homeroom teachers of classes.
	ClassManager interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
		UpdateClass(ctx context.Context, cls school.Class, uc school.UpdateClass) (school.Class, error)
	}

	// AccountManager manages the login accounts of teachers.
	AccountManager interface {
		CreateAccount(ctx context.Context, na user.NewAccount) (user.User, user.Credentials, error)
		GetByID(ctx context.Context, id string) (user.User, error)
		Update(ctx context.Context, usr user.User, uu user.UpdateUser) (user.User, error)
		Delete(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		classes  ClassManager
		accounts AccountManager
		codeMu   sync.Mutex
	}
)

func NewService(repo Repository, classes ClassManager, accounts AccountManager) *Service {
	return &Service{
		repo:     repo,
		classes:  classes,
		accounts: accounts,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email, employeeID string, excludedIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, email, employeeID, excludedIDs...); err != nil {
		var field string
		switch err {
		case ErrEmailExists:
			field = "email"
		case ErrEmployeeIDExists:
			field = "employee_id"
		default:
			return errors.Wrap(err, "checking teacher uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// checkHomeroom returns the class `classID` if it has no homeroom teacher other than `teacherID`.
func (svc *Service) checkHomeroom(ctx context.Context, classID, teacherID string) (school.Class, error) {
	cls, err := svc.classes.GetClass(ctx, classID)
	if err != nil {
		if core.IsNotFound(err) {
			return school.Class{}, ErrHomeroomNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding homeroom class")
	}
	if cls.HomeroomTeacherID != "" && cls.HomeroomTeacherID != teacherID {
		return school.Class{}, core.NewValidationError(nil, core.FieldError{
			Field: errHomeroomTakenField,
			Error: "class " + cls.Name + " already has a homeroom teacher",
		})
	}
	return cls, nil
}

func (svc *Service) setHomeroom(ctx context.Context, cls school.Class, teacherID string) error {
	_, err := svc.classes.UpdateClass(ctx, cls, school.UpdateClass{HomeroomTeacherID: &teacherID})
	return err
}

// Create creates a teacher and, unless told otherwise, their account. The returned credentials
// are empty when no account was created.
func (svc *Service) Create(ctx context.Context, nt NewTeacher) (Teacher, user.Credentials, error) {
	dob, err := parseOptionalDate(nt.DateOfBirth)
	if err != nil {
		return Teacher{}, user.Credentials{}, ErrInvalidDate
	}
	hired, err := parseOptionalDate(nt.HireDate)
	if err != nil {
		return Teacher{}, user.Credentials{}, ErrInvalidDate
	}
	if err = svc.checkUniqueness(ctx, nt.Email, nt.EmployeeID); err != nil {
		return Teacher{}, user.Credentials{}, err
	}
	var homeroom school.Class
	if nt.HomeroomClassID != "" {
		if homeroom, err = svc.checkHomeroom(ctx, nt.HomeroomClassID, ""); err != nil {
			return Teacher{}, user.Credentials{}, err
		}
	}

	now := time.Now().UTC()
	t := Teacher{
		EmployeeID:      nt.EmployeeID,
		FirstName:       nt.FirstName,
		LastName:        nt.LastName,
		KhmerName:       nt.KhmerName,
		Gender:          nt.Gender,
		Email:           nt.Email,
		Phone:           nt.Phone,
		Position:        core.CleanString(nt.Position),
		Role:            nt.Role,
		HomeroomClassID: nt.HomeroomClassID,
		Address:         core.CleanString(nt.Address),
		DateOfBirth:     dob,
		HireDate:        hired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if t, err = svc.create(ctx, t); err != nil {
		return Teacher{}, user.Credentials{}, errors.Wrap(err, "creating teacher")
	}
	if homeroom.ID != "" {
		if err = svc.setHomeroom(ctx, homeroom, t.ID); err != nil {
			return Teacher{}, user.Credentials{}, errors.Wrap(err, "setting homeroom teacher")
		}
	}

	var creds user.Credentials
	if nt.CreateAccount == nil || *nt.CreateAccount {
		var usr user.User
		usr, creds, err = svc.accounts.CreateAccount(ctx, user.NewAccount{
			FirstName: t.FirstName,
			LastName:  t.LastName,
			Email:     t.Email,
			Phone:     t.Phone,
			Roles:     t.UserRoles(),
		})
		if err != nil {
			return Teacher{}, user.Credentials{}, err
		}
		t.UserID = usr.ID
		if t, err = svc.repo.UpdateTeacher(ctx, t); err != nil {
			return Teacher{}, user.Credentials{}, errors.Wrap(err, "linking account")
		}
	}
	return t, creds, nil
}

func (svc *Service) create(ctx context.Context, t Teacher) (Teacher, error) {
	if t.EmployeeID != "" {
		return svc.repo.CreateTeacher(ctx, t)
	}

	svc.codeMu.Lock()
	defer svc.codeMu.Unlock()
	year := time.Now().Year()
	last, err := svc.repo.LastCode(ctx, core.CodePrefix(CodePrefix, year))
	if err != nil {
		return Teacher{}, errors.Wrap(err, "finding last employee ID")
	}
	if t.EmployeeID, err = core.NextCode(CodePrefix, year, last); err != nil {
		return Teacher{}, err
	}
	return svc.repo.CreateTeacher(ctx, t)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Teacher, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryTeachers(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	if userID == "" {
		return Teacher{}, ErrNotFound
	}
	return svc.repo.GetTeacherByUserID(ctx, userID)
}

// Update modifies a teacher and keeps their account and homeroom class in sync.
func (svc *Service) Update(ctx context.Context, t Teacher, ut UpdateTeacher) (Teacher, error) {
	if ut.Email != nil && *ut.Email != t.Email {
		if err := svc.checkUniqueness(ctx, *ut.Email, "", t.ID); err != nil {
			return Teacher{}, err
		}
		t.Email = *ut.Email
	}

	prevHomeroom := t.HomeroomClassID
	if ut.HomeroomClassID != nil && *ut.HomeroomClassID != t.HomeroomClassID {
		if *ut.HomeroomClassID != "" {
			if _, err := svc.checkHomeroom(ctx, *ut.HomeroomClassID, t.ID); err != nil {
				return Teacher{}, err
			}
		}
		t.HomeroomClassID = *ut.HomeroomClassID
	}
	if ut.Role != nil {
		t.Role = *ut.Role
	}
	if t.Role == RoleClassTeacher && t.HomeroomClassID == "" {
		return Teacher{}, core.NewValidationError(nil, core.FieldError{
			Field: "homeroom_class_id", Error: "a class teacher must have a homeroom class",
		})
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&t.FirstName, ut.FirstName)
	set(&t.LastName, ut.LastName)
	set(&t.KhmerName, ut.KhmerName)
	set(&t.Phone, ut.Phone)
	set(&t.Position, ut.Position)
	set(&t.Address, ut.Address)
	if ut.Gender != nil {
		t.Gender = strings.ToUpper(core.CleanString(*ut.Gender))
	}
	for _, d := range []struct {
		dst *time.Time
		src *string
	}{{&t.DateOfBirth, ut.DateOfBirth}, {&t.HireDate, ut.HireDate}} {
		if d.src == nil {
			continue
		}
		date, err := parseOptionalDate(*d.src)
		if err != nil {
			return Teacher{}, ErrInvalidDate
		}
		*d.dst = date
	}
	t.UpdatedAt = time.Now().UTC()

	t, err := svc.repo.UpdateTeacher(ctx, t)
	if err != nil {
		return Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if err = svc.syncHomeroom(ctx, t, prevHomeroom); err != nil {
		return Teacher{}, err
	}
	if err = svc.syncAccount(ctx, t); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

func (svc *Service) syncHomeroom(ctx context.Context, t Teacher, prevClassID string) error {
	if prevClassID == t.HomeroomClassID {
		return nil
	}
	if prevClassID != "" {
		if cls, err := svc.classes.GetClass(ctx, prevClassID); err == nil && cls.HomeroomTeacherID == t.ID {
			if err = svc.setHomeroom(ctx, cls, ""); err != nil {
				return errors.Wrap(err, "clearing homeroom teacher")
			}
		}
	}
	if t.HomeroomClassID != "" {
		cls, err := svc.classes.GetClass(ctx, t.HomeroomClassID)
		if err != nil {
			return errors.Wrap(err, "finding homeroom class")
		}
		if err = svc.setHomeroom(ctx, cls, t.ID); err != nil {
			return errors.Wrap(err, "setting homeroom teacher")
		}
	}
	return nil
}

func (svc *Service) syncAccount(ctx context.Context, t Teacher) error {
	if t.UserID == "" {
		return nil
	}
	usr, err := svc.accounts.GetByID(ctx, t.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding teacher account")
	}
	_, err = svc.accounts.Update(ctx, usr, user.UpdateUser{
		FirstName: t.FirstName,
		LastName:  t.LastName,
		Username:  usr.Username,
		Email:     t.Email,
		Phone:     t.Phone,
		Roles:     t.UserRoles(),
	})
	return errors.Wrap(err, "updating teacher account")
}

// Delete deletes a teacher and their account, and frees their homeroom class.
func (svc *Service) Delete(ctx context.Context, id string) error {
	t, err := svc.repo.GetTeacher(ctx, id)
	if err != nil {
		return err
	}
	if t.HomeroomClassID != "" {
		prev := t.HomeroomClassID
		t.HomeroomClassID = ""
		if err = svc.syncHomeroom(ctx, t, prev); err != nil {
			return err
		}
	}
	if err = svc.repo.DeleteTeacher(ctx, id); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	if t.UserID != "" {
		if err = svc.accounts.Delete(ctx, t.UserID); err != nil {
			return errors.Wrap(err, "deleting teacher account")
		}
	}
	return nil
}
