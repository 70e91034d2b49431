package core

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

const maxCodeSeq = 9999

var (
	codeRegex      = regexp.MustCompile(`^([A-Z])-(\d{4})-(\d{4})$`)
	ErrInvalidCode = errors.New("invalid code")
	ErrCodesFull   = NewValidationError(errors.New("all the codes of this year are taken"))
)

// FormatCode formats a yearly sequence code, eg: P-2025-0001.
func FormatCode(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}

// ParseCode extracts the year and the sequence number of a code having the given prefix.
func ParseCode(prefix, code string) (int, int, error) {
	m := codeRegex.FindStringSubmatch(code)
	if m == nil || m[1] != prefix {
		return 0, 0, ErrInvalidCode
	}
	year, _ := strconv.Atoi(m[2])
	seq, _ := strconv.Atoi(m[3])
	return year, seq, nil
}

// NextCode returns the code following `last` for `year`. `last` is the highest code issued so far
// for that year, if any. It returns ErrCodesFull once the sequence of the year reaches 9999.
func NextCode(prefix string, year int, last string) (string, error) {
	seq := 1
	if y, s, err := ParseCode(prefix, last); err == nil && y == year {
		seq = s + 1
	}
	if seq > maxCodeSeq {
		return "", ErrCodesFull
	}
	return FormatCode(prefix, year, seq), nil
}

// CodePrefix returns the LIKE pattern matching all codes of `year`.
func CodePrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%04d-", prefix, year)
}
