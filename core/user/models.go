package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/sala/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminSuper = "admin:super"

	// Teacher
	RoleTeacher        = "teacher:"
	RoleClassTeacher   = "teacher:class"
	RoleSubjectTeacher = "teacher:subject"

	// Parent
	RoleParent = "parent:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminSuper}
	TeacherRoles = []string{RoleTeacher, RoleClassTeacher, RoleSubjectTeacher}
	ParentRoles  = []string{RoleParent}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminSuper: 30,
		RoleAdmin:      21,

		// Teachers: 20 - 11
		RoleClassTeacher:   13,
		RoleSubjectTeacher: 12,
		RoleTeacher:        11,

		// Parents & Students: 10 - 1
		RoleParent:  2,
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Subject Teacher", Value: RoleSubjectTeacher},
		{Name: "Class Teacher", Value: RoleClassTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleAdminSuper},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 7)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, ParentRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID                string    `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	IsActive          bool      `json:"is_active"`
	Roles             []string  `json:"roles"`
	AvatarURL         string    `json:"avatar_url"`
	IsDefaultPassword bool      `json:"is_default_password"`
	PasswordHash      []byte    `json:"-"`
	PasswordHistory   [][]byte  `json:"-"`                   // most recent first
	PasswordChangedAt time.Time `json:"password_changed_at"` // UTC
	PasswordExpiresAt time.Time `json:"password_expires_at"` // UTC
	LastLogin         time.Time `json:"last_login"`          // UTC
	LoginCount        int       `json:"login_count"`
	SuspendedAt       time.Time `json:"suspended_at"` // UTC
	SuspensionReason  string    `json:"suspension_reason"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

// Name returns the full name, family name first.
func (u *User) Name() string {
	return strings.TrimSpace(u.LastName + " " + u.FirstName)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// UsedPassword reports whether `pwd` is the current password or one of the remembered previous ones.
func (u *User) UsedPassword(pwd string) bool {
	if len(u.PasswordHash) > 0 && u.CheckPassword(pwd) == nil {
		return true
	}
	for _, hash := range u.PasswordHistory {
		if bcrypt.CompareHashAndPassword(hash, []byte(pwd)) == nil {
			return true
		}
	}
	return false
}

// pushPasswordHistory remembers the current password hash, keeping at most `size` hashes.
func (u *User) pushPasswordHistory(size int) {
	if len(u.PasswordHash) == 0 || size <= 0 {
		return
	}
	history := make([][]byte, 0, size)
	history = append(history, u.PasswordHash)
	for _, h := range u.PasswordHistory {
		if len(history) == size {
			break
		}
		history = append(history, h)
	}
	u.PasswordHistory = history
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsSuperAdmin() bool {
	return core.Contains(u.Roles, RoleAdminSuper)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsParent() bool {
	return u.RoleStartsWith(RoleParent)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// IsStaff reports whether the user is an admin or a teacher.
func (u *User) IsStaff() bool {
	return u.IsAdmin() || u.IsTeacher()
}

// PasswordExpired reports whether the user still has a default password whose lifetime is over.
func (u *User) PasswordExpired(now time.Time) bool {
	return u.IsDefaultPassword && !u.PasswordExpiresAt.IsZero() && !now.Before(u.PasswordExpiresAt)
}

// NewUser contains information needed to create a new User with a chosen password.
type NewUser struct {
	FirstName       string   `json:"first_name" validate:"required"`
	LastName        string   `json:"last_name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,phone"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.NormalizePhone(nu.Phone)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email, nu.Phone)
}

// NewAccount contains information needed to create an account for a school member.
// A temporary password is generated when Password is empty.
type NewAccount struct {
	FirstName string   `json:"first_name" validate:"required"`
	LastName  string   `json:"last_name" validate:"required"`
	Username  string   `json:"username" validate:"omitempty,min=4"`
	Email     string   `json:"email" validate:"omitempty,email"`
	Phone     string   `json:"phone" validate:"omitempty,phone"`
	Password  string   `json:"password" validate:"omitempty,min=8"`
	Roles     []string `json:"roles" validate:"omitempty,allroles"`
}

func (na *NewAccount) Clean() {
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.NormalizePhone(na.Phone)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Username  string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email     string   `json:"email" validate:"omitempty,email"`
	Phone     string   `json:"phone" validate:"omitempty,phone"`
	IsActive  *bool    `json:"is_active"`
	Roles     []string `json:"roles" validate:"omitempty,allroles"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	pick := func(val, orig string, lower bool) string {
		if v := core.CleanString(val, lower); v != "" {
			return v
		}
		return orig
	}
	uu.FirstName = pick(uu.FirstName, origUsr.FirstName, false)
	uu.LastName = pick(uu.LastName, origUsr.LastName, false)
	uu.Username = pick(uu.Username, origUsr.Username, true)
	uu.Email = pick(uu.Email, origUsr.Email, true)
	uu.Phone = pick(core.NormalizePhone(uu.Phone), origUsr.Phone, false)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, uu.Phone, origUsr)
}

// ChangePassword is used by a user to change their own password.
type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	user User
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.user = usr
	return validate.Struct(cp)
}

// SetPassword is used by an admin to set the password of a user.
type SetPassword struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	user User
}

func (sp *SetPassword) Validate(usr User, validate *validator.Validate) error {
	sp.user = usr
	return validate.Struct(sp)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter finds a single user. ID takes precedence over Login.
type GetFilter struct {
	ID    string
	Login string // username, email or phone
}

type QueryFilter struct {
	Search                string
	Roles                 []string
	IsActive              *bool
	IsDefaultPassword     *bool
	CreatedFrom           time.Time
	CreatedTo             time.Time
	IDs                   []string
	PasswordExpiresBefore time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.IsDefaultPassword == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero() && qf.IDs == nil && qf.PasswordExpiresBefore.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// AdminStats summarizes the administrator accounts.
type AdminStats struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Inactive        int `json:"inactive"`
	Suspended       int `json:"suspended"`
	DefaultPassword int `json:"default_password"`
}

// Password alert levels
const (
	AlertNone    = "none"
	AlertInfo    = "info"
	AlertWarning = "warning"
	AlertDanger  = "danger"
	AlertExpired = "expired"
)

// PasswordStatus describes the state of a user's temporary password.
type PasswordStatus struct {
	IsDefaultPassword bool      `json:"is_default_password"`
	ExpiresAt         time.Time `json:"expires_at"`
	DaysRemaining     int       `json:"days_remaining"`
	HoursRemaining    int       `json:"hours_remaining"`
	IsExpired         bool      `json:"is_expired"`
	AlertLevel        string    `json:"alert_level"`
	CanExtend         bool      `json:"can_extend"`
}

// Credentials are returned once, when an account is created with a generated password.
type Credentials struct {
	UserID   string `json:"user_id"`
	Login    string `json:"login"`
	Password string `json:"password"`
}
