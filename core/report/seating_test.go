package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sala/core/student"
)

func roster(names ...string) []student.Student {
	students := make([]student.Student, 0, len(names))
	for i, name := range names {
		gender := student.GenderMale
		if i%2 == 1 {
			gender = student.GenderFemale
		}
		students = append(students, student.Student{ID: name, LastName: name, FirstName: "x", Gender: gender})
	}
	return students
}

func ids(seats []Seat) []string {
	out := make([]string, 0, len(seats))
	for _, s := range seats {
		out = append(out, s.StudentID)
	}
	return out
}

func TestSortForSeating(t *testing.T) {
	students := []student.Student{
		{ID: "f1", LastName: "Chan", Gender: student.GenderFemale},
		{ID: "m2", LastName: "Sok", Gender: student.GenderMale},
		{ID: "m1", LastName: "Keo", Gender: student.GenderMale},
		{ID: "f2", LastName: "Ann", Gender: student.GenderFemale},
	}
	SortForSeating(students)

	got := make([]string, 0, len(students))
	for _, s := range students {
		got = append(got, s.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "f2", "f1"}, got)
}

func TestPaginate(t *testing.T) {
	r1 := roster("a1", "a2", "a3")
	r2 := roster("b1", "b2")

	pages := Paginate(r1, r2, []PageConfig{
		{Class1Count: 2, Class2Count: 1},
		{Class1Count: 0, Class2Count: 0},
		{Class1Count: 2, Class2Count: 0},
		{Class1Count: 1, Class2Count: 5},
	}, 7)
	require.Len(t, pages, 3)

	assert.Equal(t, "07", pages[0].Room)
	assert.Equal(t, []string{"a1", "a2"}, ids(pages[0].Class1))
	assert.Equal(t, []string{"b1"}, ids(pages[0].Class2))

	// the empty page is dropped and the next room number is used
	assert.Equal(t, "08", pages[1].Room)
	assert.Equal(t, []string{"a3"}, ids(pages[1].Class1))
	assert.Equal(t, 3, pages[1].Class1[0].Number)
	assert.Empty(t, pages[1].Class2)

	assert.Equal(t, "09", pages[2].Room)
	assert.Empty(t, pages[2].Class1)
	assert.Equal(t, []string{"b2"}, ids(pages[2].Class2))
	assert.Equal(t, 2, pages[2].Class2[0].Number)
}

func TestPaginate_nothingToSeat(t *testing.T) {
	assert.Empty(t, Paginate(nil, nil, []PageConfig{{Class1Count: 3, Class2Count: 3}}, 1))
}
