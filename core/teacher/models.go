package teacher

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/user"
)

const (
	RoleClassTeacher   = "CLASS_TEACHER"
	RoleSubjectTeacher = "SUBJECT_TEACHER"

	CodePrefix = "T"
)

var Roles = []string{RoleClassTeacher, RoleSubjectTeacher}

type Teacher struct {
	ID              string    `json:"id"`
	EmployeeID      string    `json:"employee_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	KhmerName       string    `json:"khmer_name"`
	Gender          string    `json:"gender"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Position        string    `json:"position"`
	Role            string    `json:"role"`
	HomeroomClassID string    `json:"homeroom_class_id"`
	Address         string    `json:"address"`
	DateOfBirth     time.Time `json:"date_of_birth"`
	HireDate        time.Time `json:"hire_date"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (t Teacher) Name() string {
	if t.KhmerName != "" {
		return t.KhmerName
	}
	return strings.TrimSpace(t.LastName + " " + t.FirstName)
}

// UserRoles returns the account roles matching the teacher role.
func (t Teacher) UserRoles() []string {
	if t.Role == RoleClassTeacher {
		return []string{user.RoleClassTeacher}
	}
	return []string{user.RoleSubjectTeacher}
}

type NewTeacher struct {
	EmployeeID      string `json:"employee_id"`
	FirstName       string `json:"first_name" validate:"required,notblank"`
	LastName        string `json:"last_name" validate:"required,notblank"`
	KhmerName       string `json:"khmer_name"`
	Gender          string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Position        string `json:"position"`
	Role            string `json:"role" validate:"omitempty,oneof=CLASS_TEACHER SUBJECT_TEACHER"`
	HomeroomClassID string `json:"homeroom_class_id" validate:"required_if=Role CLASS_TEACHER"`
	Address         string `json:"address"`
	DateOfBirth     string `json:"date_of_birth"`
	HireDate        string `json:"hire_date"`
	// CreateAccount defaults to true
	CreateAccount *bool `json:"create_account"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.EmployeeID = strings.ToUpper(core.CleanString(nt.EmployeeID))
	nt.FirstName = core.CleanString(nt.FirstName)
	nt.LastName = core.CleanString(nt.LastName)
	nt.KhmerName = core.CleanString(nt.KhmerName)
	nt.Gender = strings.ToUpper(core.CleanString(nt.Gender))
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.NormalizePhone(nt.Phone)
	nt.Role = strings.ToUpper(core.CleanString(nt.Role))
	if nt.Role == "" {
		nt.Role = RoleSubjectTeacher
	}
	return validate.Struct(nt)
}

type UpdateTeacher struct {
	FirstName       *string `json:"first_name" validate:"omitempty,notblank"`
	LastName        *string `json:"last_name" validate:"omitempty,notblank"`
	KhmerName       *string `json:"khmer_name"`
	Gender          *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Phone           *string `json:"phone" validate:"omitempty,phone"`
	Position        *string `json:"position"`
	Role            *string `json:"role" validate:"omitempty,oneof=CLASS_TEACHER SUBJECT_TEACHER"`
	HomeroomClassID *string `json:"homeroom_class_id"`
	Address         *string `json:"address"`
	DateOfBirth     *string `json:"date_of_birth"`
	HireDate        *string `json:"hire_date"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	if ut.Email != nil {
		email := core.CleanString(*ut.Email, true /* lower */)
		ut.Email = &email
	}
	if ut.Phone != nil {
		phone := core.NormalizePhone(*ut.Phone)
		ut.Phone = &phone
	}
	if ut.Role != nil {
		role := strings.ToUpper(core.CleanString(*ut.Role))
		ut.Role = &role
	}
	return validate.Struct(ut)
}

type QueryFilter struct {
	Search  string
	Role    string
	IDs     []string
	UserIDs []string
}

// parseOptionalDate parses `s` when set, the zero time otherwise.
func parseOptionalDate(s string) (time.Time, error) {
	if core.CleanString(s) == "" {
		return time.Time{}, nil
	}
	return core.ParseDate(s)
}
