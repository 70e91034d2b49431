package student

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"

	CodePrefix = "S"
)

var Genders = []string{GenderMale, GenderFemale}

// ExamInfo holds the national exam seat of a student.
type ExamInfo struct {
	Session    string `json:"session"`
	Center     string `json:"center"`
	Room       string `json:"room"`
	Desk       string `json:"desk"`
	PassStatus string `json:"pass_status"`
}

type Student struct {
	ID              string    `json:"id"`
	StudentCode     string    `json:"student_code"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	KhmerName       string    `json:"khmer_name"`
	Gender          string    `json:"gender"`
	DateOfBirth     time.Time `json:"date_of_birth"`
	ClassID         string    `json:"class_id"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Address         string    `json:"address"`
	PreviousGrade   string    `json:"previous_grade"`
	PreviousSchool  string    `json:"previous_school"`
	RepeatingGrade  string    `json:"repeating_grade"`
	TransferredFrom string    `json:"transferred_from"`
	Grade9Exam      ExamInfo  `json:"grade9_exam"`
	Grade12Exam     ExamInfo  `json:"grade12_exam"`
	Grade12Track    string    `json:"grade12_track"`
	Remarks         string    `json:"remarks"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// Name returns the Khmer name of the student, or their latin name, family name first.
func (s Student) Name() string {
	if s.KhmerName != "" {
		return s.KhmerName
	}
	return strings.TrimSpace(s.LastName + " " + s.FirstName)
}

func (s Student) IsMale() bool { return s.Gender == GenderMale }

// HasAccount reports whether the student can log into the student portal.
func (s Student) HasAccount() bool { return s.UserID != "" }

// splitName splits a full name, family name first: "សុខ ដារា" -> ("សុខ", "ដារា").
// A single word is used as both names.
func splitName(fullName string) (last, first string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// ParseGender accepts Khmer and english spellings of genders.
func ParseGender(s string) (string, bool) {
	switch strings.ToLower(core.CleanString(s)) {
	case "m", "male", "ប", "ប្រុស":
		return GenderMale, true
	case "f", "female", "ស", "ស្រី":
		return GenderFemale, true
	}
	return "", false
}

// NewStudent contains information needed to create a Student.
type NewStudent struct {
	FirstName       string   `json:"first_name" validate:"required,notblank"`
	LastName        string   `json:"last_name" validate:"required,notblank"`
	KhmerName       string   `json:"khmer_name"`
	Gender          string   `json:"gender" validate:"required,gender"`
	DateOfBirth     string   `json:"date_of_birth" validate:"required,pastdate"`
	ClassID         string   `json:"class_id"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,phone"`
	Address         string   `json:"address"`
	PreviousGrade   string   `json:"previous_grade"`
	PreviousSchool  string   `json:"previous_school"`
	RepeatingGrade  string   `json:"repeating_grade"`
	TransferredFrom string   `json:"transferred_from"`
	Grade9Exam      ExamInfo `json:"grade9_exam"`
	Grade12Exam     ExamInfo `json:"grade12_exam"`
	Grade12Track    string   `json:"grade12_track"`
	Remarks         string   `json:"remarks"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.KhmerName = core.CleanString(ns.KhmerName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.NormalizePhone(ns.Phone)
	if g, ok := ParseGender(ns.Gender); ok {
		ns.Gender = g
	}
	return validate.Struct(ns)
}

func (ns NewStudent) student() Student {
	dob, _ := core.ParseDate(ns.DateOfBirth)
	return Student{
		FirstName:       ns.FirstName,
		LastName:        ns.LastName,
		KhmerName:       ns.KhmerName,
		Gender:          ns.Gender,
		DateOfBirth:     dob,
		ClassID:         ns.ClassID,
		Email:           ns.Email,
		Phone:           ns.Phone,
		Address:         core.CleanString(ns.Address),
		PreviousGrade:   core.CleanString(ns.PreviousGrade),
		PreviousSchool:  core.CleanString(ns.PreviousSchool),
		RepeatingGrade:  core.CleanString(ns.RepeatingGrade),
		TransferredFrom: core.CleanString(ns.TransferredFrom),
		Grade9Exam:      ns.Grade9Exam,
		Grade12Exam:     ns.Grade12Exam,
		Grade12Track:    core.CleanString(ns.Grade12Track),
		Remarks:         core.CleanString(ns.Remarks),
	}
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Nil fields are left unchanged.
type UpdateStudent struct {
	FirstName       *string   `json:"first_name" validate:"omitempty,notblank"`
	LastName        *string   `json:"last_name" validate:"omitempty,notblank"`
	KhmerName       *string   `json:"khmer_name"`
	Gender          *string   `json:"gender" validate:"omitempty,gender"`
	DateOfBirth     *string   `json:"date_of_birth" validate:"omitempty,pastdate"`
	ClassID         *string   `json:"class_id"`
	Email           *string   `json:"email" validate:"omitempty,email"`
	Phone           *string   `json:"phone" validate:"omitempty,phone"`
	Address         *string   `json:"address"`
	PreviousGrade   *string   `json:"previous_grade"`
	PreviousSchool  *string   `json:"previous_school"`
	RepeatingGrade  *string   `json:"repeating_grade"`
	TransferredFrom *string   `json:"transferred_from"`
	Grade9Exam      *ExamInfo `json:"grade9_exam"`
	Grade12Exam     *ExamInfo `json:"grade12_exam"`
	Grade12Track    *string   `json:"grade12_track"`
	Remarks         *string   `json:"remarks"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	if us.Gender != nil {
		if g, ok := ParseGender(*us.Gender); ok {
			us.Gender = &g
		}
	}
	if us.Email != nil {
		email := core.CleanString(*us.Email, true /* lower */)
		us.Email = &email
	}
	if us.Phone != nil {
		phone := core.NormalizePhone(*us.Phone)
		us.Phone = &phone
	}
	return validate.Struct(us)
}

func (us UpdateStudent) apply(s *Student) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&s.FirstName, us.FirstName)
	set(&s.LastName, us.LastName)
	set(&s.KhmerName, us.KhmerName)
	set(&s.Gender, us.Gender)
	set(&s.ClassID, us.ClassID)
	set(&s.Email, us.Email)
	set(&s.Phone, us.Phone)
	set(&s.Address, us.Address)
	set(&s.PreviousGrade, us.PreviousGrade)
	set(&s.PreviousSchool, us.PreviousSchool)
	set(&s.RepeatingGrade, us.RepeatingGrade)
	set(&s.TransferredFrom, us.TransferredFrom)
	set(&s.Grade12Track, us.Grade12Track)
	set(&s.Remarks, us.Remarks)
	if us.DateOfBirth != nil {
		if dob, err := core.ParseDate(*us.DateOfBirth); err == nil {
			s.DateOfBirth = dob
		}
	}
	if us.Grade9Exam != nil {
		s.Grade9Exam = *us.Grade9Exam
	}
	if us.Grade12Exam != nil {
		s.Grade12Exam = *us.Grade12Exam
	}
}

type GetFilter struct {
	ID     string
	UserID string
	Code   string
}

type QueryFilter struct {
	Search     string
	ClassID    string
	ClassIDs   []string
	Grade      int // grade level of the student's class
	Gender     string
	IDs        []string
	UserIDs    []string
	HasAccount *bool
	Limit      int
	Offset     int
}

// AccountFilter selects the students whose accounts are managed in bulk.
// An empty filter selects nobody unless All is set.
type AccountFilter struct {
	All        bool     `json:"all"`
	Grade      int      `json:"grade"`
	StudentIDs []string `json:"student_ids"`
}

func (af AccountFilter) IsEmpty() bool {
	return !af.All && af.Grade == 0 && len(af.StudentIDs) == 0
}

// AccountCredentials are the login details of a newly created student account, returned once.
type AccountCredentials struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Login       string `json:"login"`
	Password    string `json:"password"`
}

// AccountStats summarizes the student accounts.
type AccountStats struct {
	TotalStudents    int `json:"total_students"`
	WithAccount      int `json:"with_account"`
	WithoutAccount   int `json:"without_account"`
	ActiveAccounts   int `json:"active_accounts"`
	InactiveAccounts int `json:"inactive_accounts"`
}
