package tests

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/report"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

type reportFixture struct {
	*testApp
	token      string
	cls1, cls2 string
	dara, srey student.Student
	vuthy      student.Student
}

func setupReports(t *testing.T) reportFixture {
	app := setup(t)
	f := reportFixture{testApp: app}
	f.token = app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))
	f.cls1 = app.createClass(t, "7A", 7).ID
	f.cls2 = app.createClass(t, "7B", 7).ID
	math := app.createSubject(t, "គណិតវិទ្យា", "MATH-7", 7)
	f.dara = app.createStudent(t, "Dara", "Sok", "MALE", f.cls1)
	f.srey = app.createStudent(t, "Srey", "Chan", "FEMALE", f.cls1)
	f.vuthy = app.createStudent(t, "Vuthy", "Keo", "MALE", f.cls2)

	march := attendance.Period{Month: 3, Year: 2024}
	april := attendance.Period{Month: 4, Year: 2024}
	_, err := app.grades.BulkSave(ctxBg, f.cls1, march, []grade.ScoreInput{
		{StudentID: f.dara.ID, SubjectID: math.ID, Score: score(40)},
		{StudentID: f.srey.ID, SubjectID: math.ID, Score: score(30)},
	})
	require.NoError(t, err)
	_, err = app.grades.BulkSave(ctxBg, f.cls1, april, []grade.ScoreInput{
		{StudentID: f.dara.ID, SubjectID: math.ID, Score: score(50)},
	})
	require.NoError(t, err)
	_, err = app.grades.BulkSave(ctxBg, f.cls2, march, []grade.ScoreInput{
		{StudentID: f.vuthy.ID, SubjectID: math.ID, Score: score(45)},
	})
	require.NoError(t, err)
	_, err = app.attendance.BulkSave(ctxBg, f.cls1, april, []attendance.CellInput{
		{StudentID: f.dara.ID, Day: 2, Value: "A"},
		{StudentID: f.dara.ID, Day: 3, Value: "A"},
	})
	require.NoError(t, err)
	return f
}

func Test_reportApi_gradeWide(t *testing.T) {
	f := setupReports(t)

	t.Run("no classes", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/reports/grade/11?month=3&year=2024", f.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	rec := f.do(http.MethodGet, "/api/reports/grade/៧?month=3&year=2024", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep report.GradeWideReport
	unmarshal(t, rec, &rep)
	assert.ElementsMatch(t, []string{"7A", "7B"}, rep.ClassNames)
	require.Len(t, rep.Students, 3)

	ranks := map[string][2]int{}
	for _, s := range rep.Students {
		ranks[s.StudentID] = [2]int{s.Rank, s.ClassRank}
	}
	assert.Equal(t, [2]int{1, 1}, ranks[f.vuthy.ID])
	assert.Equal(t, [2]int{2, 1}, ranks[f.dara.ID])
	assert.Equal(t, [2]int{3, 2}, ranks[f.srey.ID])
}

func Test_reportApi_trackingBook(t *testing.T) {
	f := setupReports(t)

	tests := []httpTest{
		{
			name:     "bad month",
			method:   http.MethodGet,
			path:     "/api/reports/tracking-book/" + f.cls1 + "?year=2024&months=3,thirteen",
			token:    f.token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"months": "invalid month: thirteen"}`),
		},
		{
			name:     "student of another class",
			method:   http.MethodGet,
			path:     "/api/reports/tracking-book/" + f.cls1 + "?year=2024&student_id=" + f.vuthy.ID,
			token:    f.token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student not found in class"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	rec := f.do(http.MethodGet, "/api/reports/tracking-book/"+f.cls1+"?year=2024&months=3&months=4&student_id="+f.dara.ID, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var book report.TrackingBook
	unmarshal(t, rec, &book)
	require.Len(t, book.Students, 1)

	dara := book.Students[0]
	require.Len(t, dara.Months, 2)
	assert.Equal(t, float64(40), dara.Months[0].Average)
	assert.Equal(t, 1, dara.Months[0].Rank)
	assert.Equal(t, float64(50), dara.Months[1].Average)
	assert.Equal(t, 2, dara.Months[1].Absent)
	assert.Equal(t, float64(45), dara.YearlyAverage)
	assert.Equal(t, "A", dara.YearlyLevel)
	assert.Equal(t, 2, dara.TotalAbsent)
}

func Test_reportApi_examSeating(t *testing.T) {
	f := setupReports(t)
	f.createStudent(t, "Kim", "Lim", "FEMALE", f.cls2)

	tests := []httpTest{
		{
			name:     "no pages",
			method:   http.MethodPost,
			path:     "/api/reports/exam-seating",
			body:     marchallObj(t, report.SeatingRequest{Class1ID: f.cls1, Class2ID: f.cls2, RoomNumber: "1"}),
			token:    f.token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"pages": "at least one page is required"}`),
		},
		{
			name:   "same class",
			method: http.MethodPost,
			path:   "/api/reports/exam-seating",
			body: marchallObj(t, report.SeatingRequest{
				Class1ID: f.cls1, Class2ID: f.cls1, RoomNumber: "1", Pages: []report.PageConfig{{Class1Count: 1}},
			}),
			token:    f.token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"class2_id": "select two different classes"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	rec := f.do(http.MethodPost, "/api/reports/exam-seating", f.token, marchallObj(t, report.SeatingRequest{
		Class1ID:    f.cls1,
		Class2ID:    f.cls2,
		RoomNumber:  "០៣",
		ExamSession: " 2024 ",
		Pages:       []report.PageConfig{{Class1Count: 1, Class2Count: 1}, {Class1Count: 5}, {Class2Count: 0}},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var seating report.Seating
	unmarshal(t, rec, &seating)
	assert.Equal(t, "2024", seating.ExamSession)
	require.Len(t, seating.Pages, 2)
	assert.Equal(t, "03", seating.Pages[0].Room)
	assert.Equal(t, "04", seating.Pages[1].Room)

	// males first
	require.Len(t, seating.Pages[0].Class1, 1)
	assert.Equal(t, f.dara.ID, seating.Pages[0].Class1[0].StudentID)
	require.Len(t, seating.Pages[0].Class2, 1)
	assert.Equal(t, f.vuthy.ID, seating.Pages[0].Class2[0].StudentID)
	require.Len(t, seating.Pages[1].Class1, 1)
	assert.Equal(t, 2, seating.Pages[1].Class1[0].Number)
	assert.Zero(t, seating.Unseated1)
	assert.Equal(t, 1, seating.Unseated2)
}

func Test_reportApi_exports(t *testing.T) {
	f := setupReports(t)

	t.Run("templates", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/export/templates", f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var templates []report.Template
		unmarshal(t, rec, &templates)
		assert.Len(t, templates, len(report.Templates()))
	})

	t.Run("preview", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/export/preview/"+f.cls1, f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var prev report.Preview
		unmarshal(t, rec, &prev)
		assert.Equal(t, "7A", prev.ClassName)
		assert.Equal(t, 2, prev.TotalStudents)
		assert.Equal(t, 1, prev.MaleStudents)
		assert.Equal(t, 1, prev.FemaleStudents)
		assert.NotEmpty(t, prev.ClassInstructor)
	})

	t.Run("roster", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/export/roster/"+f.cls1+"?exam_session=2024", f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, xlsxType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

		book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer book.Close()
		assert.NotEmpty(t, book.GetSheetList())
	})

	t.Run("unknown class", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/export/roster/nope", f.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("import template", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/export/template/import", f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "student_import_template.xlsx")
	})
}

func Test_reportApi_dashboard(t *testing.T) {
	f := setupReports(t)

	rec := f.do(http.MethodGet, "/api/dashboard/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/dashboard/stats?month=3&year=2024", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats report.DashboardStats
	unmarshal(t, rec, &stats)
	assert.Equal(t, 3, stats.TotalStudents)
	assert.Equal(t, 2, stats.MaleStudents)
	assert.Equal(t, 1, stats.FemaleStudents)
	assert.Equal(t, 2, stats.TotalClasses)
	assert.Equal(t, 1, stats.TotalSubjects)
	require.Len(t, stats.Grades, 1)
	g7 := stats.Grades[0]
	assert.Equal(t, 7, g7.Grade)
	assert.Equal(t, 2, g7.Classes)
	assert.Equal(t, 3, g7.Students)
	assert.Equal(t, 1, g7.Levels["A"])
	assert.Equal(t, 1, g7.Levels["B"])
	assert.Equal(t, 1, g7.Levels["D"])
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
