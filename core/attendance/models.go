package attendance

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

const (
	StatusPresent    = "PRESENT"
	StatusAbsent     = "ABSENT"
	StatusLate       = "LATE"
	StatusPermission = "PERMISSION"
)

var Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusPermission}

// Sessions of a school day.
const (
	SessionMorning   = "MORNING"
	SessionAfternoon = "AFTERNOON"
)

var Sessions = []string{SessionMorning, SessionAfternoon}

// ParseSession parses a session given as its name or its grid letter (M/A). An empty value is the morning.
func ParseSession(value string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "M", SessionMorning:
		return SessionMorning, true
	case "A", SessionAfternoon:
		return SessionAfternoon, true
	}
	return "", false
}

// SessionLetter returns the grid letter of a session.
func SessionLetter(session string) string {
	if session == SessionAfternoon {
		return "A"
	}
	return "M"
}

// CellKey returns the grid key of a day session, e.g. "12_M".
func CellKey(day int, session string) string {
	return strconv.Itoa(day) + "_" + SessionLetter(session)
}

type Attendance struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Date      time.Time `json:"date"` // day, UTC
	Session   string    `json:"session"`
	Status    string    `json:"status"`
	Remarks   string    `json:"remarks"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// StatusOf returns the status typed in a grid cell, or "" for a cell to clear.
func StatusOf(value string) string {
	switch strings.TrimSpace(value) {
	case "A", "a":
		return StatusAbsent
	case "P", "p":
		return StatusPermission
	case "L", "l":
		return StatusLate
	}
	return ""
}

// DisplayValue returns the grid letter of a status. Present days are blank.
func DisplayValue(status string) string {
	switch status {
	case StatusAbsent:
		return "A"
	case StatusPermission:
		return "P"
	case StatusLate:
		return "L"
	}
	return ""
}

type NewAttendance struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Session   string `json:"session" validate:"attsession"`
	Status    string `json:"status" validate:"required,attstatus"`
	Remarks   string `json:"remarks"`
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	if session, ok := ParseSession(na.Session); ok {
		na.Session = session
	}
	na.Status = strings.ToUpper(core.CleanString(na.Status))
	na.Remarks = core.CleanString(na.Remarks)
	return validate.Struct(na)
}

type UpdateAttendance struct {
	Status  *string `json:"status" validate:"omitempty,attstatus"`
	Remarks *string `json:"remarks"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	if ua.Status != nil {
		status := strings.ToUpper(core.CleanString(*ua.Status))
		ua.Status = &status
	}
	return validate.Struct(ua)
}

type QueryFilter struct {
	StudentID string
	ClassID   string
	Status    string
	Session   string
	From      time.Time // inclusive
	To        time.Time // exclusive
}

// Grid

type (
	Cell struct {
		ID           string `json:"id"`
		Day          int    `json:"day"`
		Session      string `json:"session"`
		Status       string `json:"status"`
		DisplayValue string `json:"display_value"`
		IsSaved      bool   `json:"is_saved"`
	}

	StudentRow struct {
		StudentID       string          `json:"student_id"`
		StudentName     string          `json:"student_name"`
		Gender          string          `json:"gender"`
		Attendance      map[string]Cell `json:"attendance"` // keyed by CellKey
		TotalAbsent     int             `json:"total_absent"`
		TotalPermission int             `json:"total_permission"`
		TotalLate       int             `json:"total_late"`
	}

	Grid struct {
		ClassID     string       `json:"class_id"`
		ClassName   string       `json:"class_name"`
		Month       string       `json:"month"`
		MonthNumber int          `json:"month_number"`
		Year        int          `json:"year"`
		DaysInMonth int          `json:"days_in_month"`
		Days        []int        `json:"days"`
		Sessions    []string     `json:"sessions"`
		Students    []StudentRow `json:"students"`
	}

	// CellInput is a grid cell typed by the user. Session takes M or A.
	CellInput struct {
		StudentID string `json:"student_id"`
		Day       int    `json:"day"`
		Session   string `json:"session"`
		Value     string `json:"value"`
	}

	CellError struct {
		StudentID string `json:"student_id"`
		Day       int    `json:"day"`
		Session   string `json:"session"`
		Error     string `json:"error"`
	}

	BulkResult struct {
		SavedCount   int         `json:"saved_count"`
		DeletedCount int         `json:"deleted_count"`
		ErrorCount   int         `json:"error_count"`
		Errors       []CellError `json:"errors"`
	}

	Counts struct {
		Absent     int `json:"absent"`
		Permission int `json:"permission"`
		Late       int `json:"late"`
	}
)

func (c *Counts) add(status string) {
	switch status {
	case StatusAbsent:
		c.Absent++
	case StatusPermission:
		c.Permission++
	case StatusLate:
		c.Late++
	}
}
