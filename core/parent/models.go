package parent

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

const (
	RelationshipFather   = "FATHER"
	RelationshipMother   = "MOTHER"
	RelationshipGuardian = "GUARDIAN"

	CodePrefix = "P"
)

var Relationships = []string{RelationshipFather, RelationshipMother, RelationshipGuardian}

type Parent struct {
	ID           string    `json:"id"`
	ParentCode   string    `json:"parent_code"`
	KhmerName    string    `json:"khmer_name"`
	EnglishName  string    `json:"english_name"`
	Gender       string    `json:"gender"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Occupation   string    `json:"occupation"`
	Relationship string    `json:"relationship"`
	Address      string    `json:"address"`
	StudentIDs   []string  `json:"student_ids"`
	UserID       string    `json:"user_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (p Parent) Name() string {
	if p.KhmerName != "" {
		return p.KhmerName
	}
	return p.EnglishName
}

func (p Parent) HasChild(studentID string) bool {
	return core.Contains(p.StudentIDs, studentID)
}

type NewParent struct {
	KhmerName    string   `json:"khmer_name" validate:"required,notblank"`
	EnglishName  string   `json:"english_name"`
	Gender       string   `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Phone        string   `json:"phone" validate:"required,phone"`
	Email        string   `json:"email" validate:"omitempty,email"`
	Occupation   string   `json:"occupation"`
	Relationship string   `json:"relationship" validate:"omitempty,oneof=FATHER MOTHER GUARDIAN"`
	Address      string   `json:"address"`
	StudentIDs   []string `json:"student_ids"`
	// CreateAccount defaults to true
	CreateAccount *bool `json:"create_account"`
}

func (np *NewParent) Validate(validate *validator.Validate) error {
	np.KhmerName = core.CleanString(np.KhmerName)
	np.EnglishName = core.CleanString(np.EnglishName)
	np.Gender = strings.ToUpper(core.CleanString(np.Gender))
	np.Phone = core.NormalizePhone(np.Phone)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Occupation = core.CleanString(np.Occupation)
	np.Relationship = strings.ToUpper(core.CleanString(np.Relationship))
	if np.Relationship == "" {
		np.Relationship = RelationshipGuardian
	}
	np.Address = core.CleanString(np.Address)
	return validate.Struct(np)
}

type UpdateParent struct {
	KhmerName    *string `json:"khmer_name" validate:"omitempty,notblank"`
	EnglishName  *string `json:"english_name"`
	Gender       *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Phone        *string `json:"phone" validate:"omitempty,phone"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Occupation   *string `json:"occupation"`
	Relationship *string `json:"relationship" validate:"omitempty,oneof=FATHER MOTHER GUARDIAN"`
	Address      *string `json:"address"`
	IsActive     *bool   `json:"is_active"`
}

func (up *UpdateParent) Validate(validate *validator.Validate) error {
	if up.Phone != nil {
		phone := core.NormalizePhone(*up.Phone)
		up.Phone = &phone
	}
	if up.Email != nil {
		email := core.CleanString(*up.Email, true /* lower */)
		up.Email = &email
	}
	if up.Relationship != nil {
		rel := strings.ToUpper(core.CleanString(*up.Relationship))
		up.Relationship = &rel
	}
	return validate.Struct(up)
}

func (up UpdateParent) apply(p *Parent) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&p.KhmerName, up.KhmerName)
	set(&p.EnglishName, up.EnglishName)
	set(&p.Phone, up.Phone)
	set(&p.Email, up.Email)
	set(&p.Occupation, up.Occupation)
	set(&p.Relationship, up.Relationship)
	set(&p.Address, up.Address)
	if up.Gender != nil {
		p.Gender = strings.ToUpper(core.CleanString(*up.Gender))
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}
}

type QueryFilter struct {
	// Search matches the names, code or phone
	Search    string
	StudentID string
	UserID    string
	IsActive  *bool
	IDs       []string
}

type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	Inactive     int            `json:"inactive"`
	WithAccount  int            `json:"with_account"`
	WithChildren int            `json:"with_children"`
	ByRelation   map[string]int `json:"by_relationship"`
}

// ValidCode reports whether `code` is a well formed parent code, eg: P-2025-0001.
func ValidCode(code string) bool {
	_, _, err := core.ParseCode(CodePrefix, code)
	return err == nil
}
