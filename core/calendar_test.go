package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "មីនា", want: 3},
		{in: " ធ្នូ ", want: 12},
		{in: "3", want: 3},
		{in: "០៤", want: 4},
		{in: "March", want: 3},
		{in: "sep", want: 9},
		{in: "ju", wantErr: true},
		{in: "13", wantErr: true},
		{in: "0", wantErr: true},
		{in: "thirteen", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonth(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidMonth, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2012, 5, 17, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2012-05-17", "17/05/2012", "17/5/2012", "17-05-2012", "17.05.2012", "17/05/12", "១៧/០៥/២០១២"} {
		t.Run(in, func(t *testing.T) {
			got, err := ParseDate(in)
			if assert.NoError(t, err) {
				assert.True(t, want.Equal(got), got)
			}
		})
	}

	for _, in := range []string{"", "17th May", "32/01/2012"} {
		_, err := ParseDate(in)
		assert.Equal(t, ErrInvalidDate, err, in)
	}
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, 2))
	assert.Equal(t, 28, DaysIn(2023, 2))
	assert.Equal(t, 31, DaysIn(2024, 12))
	assert.Equal(t, "មីនា", MonthName(3))
	assert.Empty(t, MonthName(13))
}

func TestNextCode(t *testing.T) {
	tests := []struct {
		prefix string
		last   string
		want   string
	}{
		{"P", "", "P-2025-0001"},
		{"P", "P-2025-0012", "P-2025-0013"},
		{"P", "P-2024-0099", "P-2025-0001"},
		{"T", "P-2025-0012", "T-2025-0001"},
		{"S", "S-2025-9998", "S-2025-9999"},
	}
	for _, tt := range tests {
		got, err := NextCode(tt.prefix, 2025, tt.last)
		assert.NoError(t, err, tt.last)
		assert.Equal(t, tt.want, got, tt.last)
	}

	code, err := NextCode("S", 2025, "S-2025-9999")
	assert.Equal(t, ErrCodesFull, err)
	assert.Empty(t, code)
	code, err = NextCode("S", 2026, "S-2025-9999")
	assert.NoError(t, err)
	assert.Equal(t, "S-2026-0001", code)

	_, _, err = ParseCode("P", "P-25-1")
	assert.Equal(t, ErrInvalidCode, err)
	assert.Equal(t, "P-2025-", CodePrefix("P", 2025))
}
