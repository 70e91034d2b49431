package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGender(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"M", GenderMale, true},
		{" male ", GenderMale, true},
		{"ប្រុស", GenderMale, true},
		{"ប", GenderMale, true},
		{"FEMALE", GenderFemale, true},
		{"ស្រី", GenderFemale, true},
		{"x", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseGender(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSplitName(t *testing.T) {
	last, first := splitName("សុខ  ដារា  វណ្ណ")
	assert.Equal(t, "សុខ", last)
	assert.Equal(t, "ដារា វណ្ណ", first)

	last, first = splitName("ដារា")
	assert.Equal(t, "ដារា", last)
	assert.Equal(t, "ដារា", first)
}

func TestParsePaste(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [][]string
	}{
		{name: "trailing line break", text: "a\tb\n", want: [][]string{{"a", "b"}}},
		{name: "windows line breaks", text: "a\tb\r\nc\td\r\n", want: [][]string{{"a", "b"}, {"c", "d"}}},
		{name: "old mac line breaks", text: "a\rb", want: [][]string{{"a"}, {"b"}}},
		{name: "empty cells kept", text: "a\t\tc", want: [][]string{{"a", "", "c"}}},
		{name: "empty", text: "", want: [][]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePaste(tt.text))
		})
	}
}

func TestApplyPaste(t *testing.T) {
	rows := []Row{{No: 1, ID: "s1", Cells: map[string]string{FieldName: "Sok Dara", FieldGender: "MALE"}}}

	t.Run("unknown field", func(t *testing.T) {
		_, err := ApplyPaste(rows, 0, FieldGrade12Track, [][]string{{"x"}}, 7)
		assert.Equal(t, ErrUnknownField, err)
	})

	data := ParsePaste("ស្រី\t01/02/2012\n\t03/04/2012\tx\tx\tx\tx\textra\tdropped\n")
	got, err := ApplyPaste(rows, 0, FieldGender, data, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "Sok Dara", got[0].Get(FieldName))
	assert.Equal(t, "ស្រី", got[0].Get(FieldGender))
	assert.Equal(t, "01/02/2012", got[0].Get(FieldDateOfBirth))

	assert.Equal(t, 2, got[1].No)
	assert.Empty(t, got[1].ID)
	assert.Equal(t, "03/04/2012", got[1].Get(FieldDateOfBirth))
	assert.Equal(t, "x", got[1].Get(FieldTransferredFrom))
	assert.Equal(t, "extra", got[1].Get(FieldRemarks))
	// every column but the name; cells past the last column are dropped
	assert.Len(t, got[1].Cells, len(FieldOrder(7))-1)
}

func TestValidateRows(t *testing.T) {
	rows := []Row{
		{No: 1, Cells: map[string]string{FieldName: "Sok Dara", FieldGender: "m", FieldDateOfBirth: "17/05/2012"}},
		{No: 2, Cells: map[string]string{FieldName: " ", FieldRemarks: ""}},
		{No: 3, Cells: map[string]string{FieldName: "Chan Srey", FieldGender: "f"}},
		{No: 4, Cells: map[string]string{FieldName: "Keo Vuthy", FieldGender: "?", FieldDateOfBirth: "17/05/2012"}},
		{No: 5, Cells: map[string]string{FieldName: "Lim Sophea", FieldGender: "ស្រី", FieldDateOfBirth: "soon"}},
	}
	valid, errs := ValidateRows(rows)
	require.Len(t, valid, 1)
	assert.Equal(t, 1, valid[0].No)
	assert.Equal(t, []BulkError{
		{Row: 3, Error: "name, gender and date of birth are required"},
		{Row: 4, Error: `invalid gender "?"`},
		{Row: 5, Error: `invalid date of birth "soon"`},
	}, errs)
}

func TestRowOf(t *testing.T) {
	s := Student{ID: "s1", FirstName: "Dara", LastName: "Sok", Gender: GenderMale, Grade12Track: "science"}
	row := RowOf(3, s, 12)
	assert.Equal(t, 3, row.No)
	assert.Equal(t, "Sok Dara", row.Cells[FieldName])
	assert.Empty(t, row.Cells[FieldDateOfBirth])
	assert.Equal(t, "science", row.Cells[FieldGrade12Track])

	var applied Student
	row.Cells[FieldDateOfBirth] = "17/05/2012"
	row.apply(&applied, 12)
	assert.Equal(t, "Sok", applied.LastName)
	assert.Equal(t, "Dara", applied.FirstName)
	assert.Equal(t, "science", applied.Grade12Track)
	assert.Equal(t, 2012, applied.DateOfBirth.Year())
}

func TestRow_apply_examColumns(t *testing.T) {
	rows, err := ApplyPaste(nil, 0, FieldName, ParsePaste("Sok Dara\tm\t01/01/2010"), 9)
	require.NoError(t, err)
	rows, err = ApplyPaste(rows, 0, FieldGrade9ExamCenter, ParsePaste("Center A\tRoom 3\tDesk 7"), 9)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var s Student
	rows[0].apply(&s, 9)
	assert.Equal(t, "Center A", s.Grade9Exam.Center)
	assert.Equal(t, "Room 3", s.Grade9Exam.Room)
	assert.Equal(t, "Desk 7", s.Grade9Exam.Desk)
	assert.Empty(t, s.Grade9Exam.Session)
	assert.Equal(t, GenderMale, s.Gender)

	t.Run("columns beyond the grade are ignored", func(t *testing.T) {
		row := Row{Cells: map[string]string{FieldGrade12ExamCenter: "Center B", FieldGrade9ExamDesk: "9"}}
		var s Student
		row.apply(&s, 8)
		assert.Empty(t, s.Grade12Exam.Center)
		assert.Empty(t, s.Grade9Exam.Desk)
	})
}

func TestRow_apply_khmerName(t *testing.T) {
	t.Run("unchanged name keeps the latin names", func(t *testing.T) {
		s := Student{FirstName: "Dara", LastName: "Sok"}
		row := RowOf(1, s, 7)
		row.Cells[FieldRemarks] = "moved"
		row.apply(&s, 7)
		assert.Empty(t, s.KhmerName)
		assert.Equal(t, "Sok", s.LastName)
		assert.Equal(t, "Dara", s.FirstName)
		assert.Equal(t, "moved", s.Remarks)
	})

	t.Run("edited name", func(t *testing.T) {
		s := Student{FirstName: "Dara", LastName: "Sok"}
		row := RowOf(1, s, 7)
		row.Cells[FieldName] = "សុខ ដារា"
		row.apply(&s, 7)
		assert.Equal(t, "សុខ ដារា", s.KhmerName)
		assert.Equal(t, "សុខ", s.LastName)
		assert.Equal(t, "ដារា", s.FirstName)
	})

	t.Run("existing khmer name", func(t *testing.T) {
		s := Student{FirstName: "ដារា", LastName: "សុខ", KhmerName: "សុខ ដារា"}
		row := RowOf(1, s, 7)
		row.apply(&s, 7)
		assert.Equal(t, "សុខ ដារា", s.KhmerName)
	})
}
