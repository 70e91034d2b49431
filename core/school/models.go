package school

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

type Class struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Grade             int       `json:"grade"`
	Section           string    `json:"section"`
	AcademicYear      string    `json:"academic_year"`
	HomeroomTeacherID string    `json:"homeroom_teacher_id"`
	Capacity          int       `json:"capacity"` // 0: unlimited
	StudentCount      int       `json:"student_count"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

// IsFull reports whether `n` more students would exceed the capacity of the class.
func (c Class) IsFull(n int) bool {
	return c.Capacity > 0 && c.StudentCount+n > c.Capacity
}

type NewClass struct {
	Name              string `json:"name" validate:"required,notblank"`
	Grade             int    `json:"grade" validate:"required,min=1,max=12"`
	Section           string `json:"section"`
	AcademicYear      string `json:"academic_year" validate:"required"`
	HomeroomTeacherID string `json:"homeroom_teacher_id"`
	Capacity          int    `json:"capacity" validate:"min=0"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Section = core.CleanString(nc.Section)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name              *string `json:"name" validate:"omitempty,notblank"`
	Grade             *int    `json:"grade" validate:"omitempty,min=1,max=12"`
	Section           *string `json:"section"`
	AcademicYear      *string `json:"academic_year" validate:"omitempty,notblank"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
	Capacity          *int    `json:"capacity" validate:"omitempty,min=0"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	return validate.Struct(uc)
}

type ClassFilter struct {
	Search       string
	Grade        int
	AcademicYear string
	TeacherID    string // homeroom teacher
	IDs          []string
}

type Subject struct {
	ID          string    `json:"id"`
	NameKh      string    `json:"name_kh"`
	NameEn      string    `json:"name_en"`
	Code        string    `json:"code"`
	Grade       int       `json:"grade"`
	MaxScore    float64   `json:"max_score"`
	Coefficient float64   `json:"coefficient"`
	IsActive    bool      `json:"is_active"`
	TeacherIDs  []string  `json:"teacher_ids"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// BaseCode returns the code without its grade suffix: "MATH-G7" -> "MATH".
func (s Subject) BaseCode() string {
	return strings.SplitN(s.Code, "-", 2)[0]
}

type NewSubject struct {
	NameKh      string   `json:"name_kh" validate:"required,notblank"`
	NameEn      string   `json:"name_en"`
	Code        string   `json:"code" validate:"required,notblank"`
	Grade       int      `json:"grade" validate:"required,min=1,max=12"`
	MaxScore    float64  `json:"max_score" validate:"gt=0"`
	Coefficient float64  `json:"coefficient" validate:"gt=0"`
	IsActive    *bool    `json:"is_active"`
	TeacherIDs  []string `json:"teacher_ids"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.NameKh = core.CleanString(ns.NameKh)
	ns.NameEn = core.CleanString(ns.NameEn)
	ns.Code = strings.ToUpper(core.CleanString(ns.Code))
	return validate.Struct(ns)
}

type UpdateSubject struct {
	NameKh      *string  `json:"name_kh" validate:"omitempty,notblank"`
	NameEn      *string  `json:"name_en"`
	Code        *string  `json:"code" validate:"omitempty,notblank"`
	Grade       *int     `json:"grade" validate:"omitempty,min=1,max=12"`
	MaxScore    *float64 `json:"max_score" validate:"omitempty,gt=0"`
	Coefficient *float64 `json:"coefficient" validate:"omitempty,gt=0"`
	IsActive    *bool    `json:"is_active"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if us.Code != nil {
		code := strings.ToUpper(core.CleanString(*us.Code))
		us.Code = &code
	}
	return validate.Struct(us)
}

type SubjectFilter struct {
	Search    string
	Grade     int
	IsActive  *bool
	TeacherID string
	IDs       []string
}

// OrderedSubject is a subject with its display position on grade sheets.
type OrderedSubject struct {
	Subject
	ShortCode string `json:"short_code"`
	Order     int    `json:"order"`
}

type subjectPosition struct {
	order     int
	shortCode string
}

var (
	unknownSubjectOrder = 999

	// grades 7 to 9
	lowerSecondaryOrder = map[string]subjectPosition{
		"WRITING":   {1, "W"},
		"WRITER":    {2, "R"},
		"DICTATION": {3, "D"},
		"MATH":      {4, "M"},
		"PHY":       {5, "P"},
		"CHEM":      {6, "C"},
		"BIO":       {7, "B"},
		"EARTH":     {8, "Es"},
		"MORAL":     {9, "Mo"},
		"GEO":       {10, "G"},
		"HIST":      {11, "H"},
		"ENG":       {12, "E"},
		"HE":        {13, "He"},
		"SPORTS":    {14, "S"},
		"AGRI":      {15, "Ag"},
		"ICT":       {16, "IT"},
	}

	// grades 10 to 12
	upperSecondaryOrder = map[string]subjectPosition{
		"KHM":    {1, "K"},
		"MATH":   {2, "M"},
		"PHY":    {3, "P"},
		"CHEM":   {4, "C"},
		"BIO":    {5, "B"},
		"EARTH":  {6, "Es"},
		"MORAL":  {7, "Mo"},
		"GEO":    {8, "G"},
		"HIST":   {9, "H"},
		"ENG":    {10, "E"},
		"SPORTS": {11, "S"},
		"AGRI":   {12, "Ag"},
		"ICT":    {13, "IT"},
	}
)

// SubjectPosition returns the display order and short code of a subject code for a grade level.
// Unknown codes come last and keep their full code.
func SubjectPosition(grade int, code string) (int, string) {
	table := upperSecondaryOrder
	if grade <= 9 {
		table = lowerSecondaryOrder
	}
	base := strings.SplitN(code, "-", 2)[0]
	if pos, ok := table[base]; ok {
		return pos.order, pos.shortCode
	}
	return unknownSubjectOrder, code
}

// OrderSubjects sorts subjects the way grade sheets display them.
func OrderSubjects(grade int, subjects []Subject) []OrderedSubject {
	ordered := make([]OrderedSubject, 0, len(subjects))
	for _, s := range subjects {
		order, short := SubjectPosition(grade, s.Code)
		ordered = append(ordered, OrderedSubject{Subject: s, ShortCode: short, Order: order})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}
