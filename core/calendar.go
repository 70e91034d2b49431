package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// KhmerMonths are the month names, January first.
var KhmerMonths = [12]string{
	"មករា", "កុម្ភៈ", "មីនា", "មេសា", "ឧសភា", "មិថុនា",
	"កក្កដា", "សីហា", "កញ្ញា", "តុលា", "វិច្ឆិកា", "ធ្នូ",
}

var (
	ErrInvalidMonth = NewValidationError(nil, FieldError{Field: "month", Error: "invalid month"})
	ErrInvalidYear  = NewValidationError(nil, FieldError{Field: "year", Error: "invalid year"})
	ErrInvalidDate  = errors.New("invalid date")

	khmerDigits = strings.NewReplacer(
		"០", "0", "១", "1", "២", "2", "៣", "3", "៤", "4",
		"៥", "5", "៦", "6", "៧", "7", "៨", "8", "៩", "9",
	)

	dateLayouts = []string{
		"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2006/01/02",
		"02/01/06", "2/1/06",
		time.RFC3339,
	}
)

// ParseMonth accepts a Khmer month name, an english month name (full or abbreviated) or a month number.
func ParseMonth(s string) (int, error) {
	s = NormalizeDigits(CleanString(s))
	if s == "" {
		return 0, ErrInvalidMonth
	}
	for i, name := range KhmerMonths {
		if s == name {
			return i + 1, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return n, nil
		}
		return 0, ErrInvalidMonth
	}
	ls := strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if ls == name || (len(ls) >= 3 && strings.HasPrefix(name, ls)) {
			return int(m), nil
		}
	}
	return 0, ErrInvalidMonth
}

// MonthName returns the Khmer name of month `n` (1-12).
func MonthName(n int) string {
	if n < 1 || n > 12 {
		return ""
	}
	return KhmerMonths[n-1]
}

// ValidateYear checks that `year` is a plausible school year.
func ValidateYear(year int) error {
	if year < 1970 || year > 2200 {
		return ErrInvalidYear
	}
	return nil
}

// DaysIn returns the number of days of `month` in `year`.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date returns midnight UTC of the given day.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the time part of `t`, keeping its calendar day.
func TruncateDay(t time.Time) time.Time {
	return Date(t.Year(), int(t.Month()), t.Day())
}

// NormalizeDigits converts Khmer digits to ASCII digits.
func NormalizeDigits(s string) string {
	return khmerDigits.Replace(s)
}

// ParseDate parses dates typed or pasted by users (day first) or ISO formatted.
func ParseDate(s string) (time.Time, error) {
	s = NormalizeDigits(CleanString(s))
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
