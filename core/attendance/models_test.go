package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sala/core"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"A", StatusAbsent}, {" a ", StatusAbsent},
		{"P", StatusPermission}, {"p", StatusPermission},
		{"L", StatusLate}, {"l", StatusLate},
		{"", ""}, {"x", ""}, {"AB", ""},
	}
	for _, tt := range tests {
		got := StatusOf(tt.value)
		assert.Equal(t, tt.want, got, tt.value)
		if got != "" {
			assert.Equal(t, strings.ToUpper(strings.TrimSpace(tt.value)), DisplayValue(got))
		}
	}
	assert.Empty(t, DisplayValue(StatusPresent))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("មីនា", 2024)
	assert.NoError(t, err)
	assert.Equal(t, Period{Month: 3, Year: 2024}, p)
	assert.Equal(t, 31, p.Days())
	assert.True(t, p.Start().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.End().Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Day(15).Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))

	_, err = ParsePeriod("13", 2024)
	assert.Equal(t, core.ErrInvalidMonth, err)
	_, err = ParsePeriod("feb", 1900)
	assert.Equal(t, core.ErrInvalidYear, err)
}

func TestCounts(t *testing.T) {
	var c Counts
	for _, s := range []string{StatusAbsent, StatusAbsent, StatusLate, StatusPresent, StatusPermission} {
		c.add(s)
	}
	assert.Equal(t, Counts{Absent: 2, Permission: 1, Late: 1}, c)
}

func TestParseSession(t *testing.T) {
	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{"", SessionMorning, true},
		{"M", SessionMorning, true},
		{" morning ", SessionMorning, true},
		{"a", SessionAfternoon, true},
		{"AFTERNOON", SessionAfternoon, true},
		{"evening", "", false},
		{"X", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSession(tt.value)
		assert.Equal(t, tt.ok, ok, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}

	assert.Equal(t, "12_M", CellKey(12, SessionMorning))
	assert.Equal(t, "3_A", CellKey(3, SessionAfternoon))
}

func TestSummarize_countsBothSessions(t *testing.T) {
	day := core.Date(2024, 3, 4)
	summary := Summarize([]Attendance{
		{StudentID: "s1", Date: day, Session: SessionMorning, Status: StatusAbsent},
		{StudentID: "s1", Date: day, Session: SessionAfternoon, Status: StatusAbsent},
		{StudentID: "s1", Date: day.AddDate(0, 0, 1), Session: SessionAfternoon, Status: StatusLate},
		{StudentID: "s2", Date: day, Session: SessionAfternoon, Status: StatusPermission},
	})
	assert.Equal(t, Counts{Absent: 2, Late: 1}, summary["s1"])
	assert.Equal(t, Counts{Permission: 1}, summary["s2"])
}
