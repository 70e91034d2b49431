package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/report"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

func (app *testApp) createTeacher(t *testing.T, nt teacher.NewTeacher) (teacher.Teacher, user.User) {
	tchr, _, err := app.teachers.Create(ctxBg, nt)
	require.NoError(t, err)
	usr, err := app.users.GetByID(ctxBg, tchr.UserID)
	require.NoError(t, err)
	return tchr, usr
}

func Test_dashboardApi_teacher(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	cls7a := app.createClass(t, "7A", 7)
	cls7b := app.createClass(t, "7B", 7)
	cls8a := app.createClass(t, "8A", 8)
	cls9a := app.createClass(t, "9A", 9)

	tchr, tchrUsr := app.createTeacher(t, teacher.NewTeacher{
		FirstName:       "Sophal",
		LastName:        "Meas",
		Email:           "sophal@school.kh",
		Role:            teacher.RoleClassTeacher,
		HomeroomClassID: cls8a.ID,
	})
	_, otherUsr := app.createTeacher(t, teacher.NewTeacher{FirstName: "Vuthy", LastName: "Keo", Email: "vuthy@school.kh"})
	math, err := app.school.CreateSubject(ctxBg, school.NewSubject{
		NameKh:      "គណិតវិទ្យា",
		Code:        "MATH-7",
		Grade:       7,
		MaxScore:    50,
		Coefficient: 1,
		TeacherIDs:  []string{tchr.ID},
	})
	require.NoError(t, err)

	s1 := app.createStudent(t, "Dara", "Sok", "MALE", cls7a.ID)
	app.createStudent(t, "Srey", "Chan", "FEMALE", cls7b.ID)
	app.createStudent(t, "Vuthy", "Keo", "MALE", cls8a.ID)
	app.createStudent(t, "Sophea", "Lim", "FEMALE", cls9a.ID)
	_, err = app.grades.BulkSave(ctxBg, cls7a.ID, attendance.Period{Month: 3, Year: 2024}, []grade.ScoreInput{
		{StudentID: s1.ID, SubjectID: math.ID, Score: score(30)},
	})
	require.NoError(t, err)

	path := "/api/dashboard/teacher/" + tchr.ID
	check := func(t *testing.T, dash report.TeacherDashboard) {
		assert.Equal(t, tchr.ID, dash.Teacher.ID)
		assert.Equal(t, "Meas Sophal", dash.Name)
		if assert.NotNil(t, dash.HomeroomClass) {
			assert.Equal(t, report.ClassSummary{ID: cls8a.ID, Name: "8A", Grade: 8, Students: 1}, *dash.HomeroomClass)
		}
		names := make([]string, 0, len(dash.Classes))
		for _, cls := range dash.Classes {
			names = append(names, cls.Name)
		}
		assert.ElementsMatch(t, []string{"7A", "7B", "8A"}, names)
		assert.Equal(t, 3, dash.TotalClasses)
		assert.Equal(t, 3, dash.TotalStudents)
		assert.Equal(t, []report.SubjectSummary{{ID: math.ID, Name: "គណិតវិទ្យា", Code: "MATH-7", Grade: 7}}, dash.Subjects)
		assert.Equal(t, 1, dash.RecentGradeEntries)
	}

	t.Run("own dashboard", func(t *testing.T) {
		rec := app.do(http.MethodGet, path, app.getToken(t, tchrUsr), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash report.TeacherDashboard
		unmarshal(t, rec, &dash)
		check(t, dash)
	})

	t.Run("admin", func(t *testing.T) {
		rec := app.do(http.MethodGet, path, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash report.TeacherDashboard
		unmarshal(t, rec, &dash)
		check(t, dash)
	})

	tests := []httpTest{
		{
			name:     "another teacher",
			method:   http.MethodGet,
			path:     path,
			token:    app.getToken(t, otherUsr),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "student",
			method:   http.MethodGet,
			path:     path,
			token:    app.getToken(t, app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent)),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "unknown teacher",
			method:   http.MethodGet,
			path:     "/api/dashboard/teacher/unknown",
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "teacher not found"}),
		},
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     path,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_dashboardApi_student(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "7A", 7)
	math := app.createSubject(t, "គណិតវិទ្យា", "MATH-7", 7)
	khmer := app.createSubject(t, "ភាសាខ្មែរ", "KH-7", 7)
	s1, usr1 := app.withAccount(t, app.createStudent(t, "Dara", "Sok", "MALE", cls.ID))
	s2, usr2 := app.withAccount(t, app.createStudent(t, "Srey", "Chan", "FEMALE", cls.ID))

	_, err := app.grades.BulkSave(ctxBg, cls.ID, attendance.Period{Month: 3, Year: 2024}, []grade.ScoreInput{
		{StudentID: s1.ID, SubjectID: math.ID, Score: score(30)},
		{StudentID: s1.ID, SubjectID: khmer.ID, Score: score(45)},
		{StudentID: s2.ID, SubjectID: math.ID, Score: score(10)},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = app.attendance.BulkSave(ctxBg, cls.ID, attendance.Period{Month: int(now.Month()), Year: now.Year()}, []attendance.CellInput{
		{StudentID: s1.ID, Day: now.Day(), Session: "M", Value: "A"},
		{StudentID: s1.ID, Day: now.Day(), Session: "A", Value: "L"},
	})
	require.NoError(t, err)
	// older than 30 days
	_, err = app.attendance.BulkSave(ctxBg, cls.ID, attendance.Period{Month: 3, Year: 2024}, []attendance.CellInput{
		{StudentID: s1.ID, Day: 4, Value: "P"},
	})
	require.NoError(t, err)

	p, _, err := app.parents.Create(ctxBg, parent.NewParent{
		KhmerName:  "សុខ សុភា",
		Phone:      "012345678",
		StudentIDs: []string{s1.ID},
	})
	require.NoError(t, err)
	parentUsr, err := app.users.GetByID(ctxBg, p.UserID)
	require.NoError(t, err)

	path := "/api/dashboard/student/" + s1.ID
	for _, tc := range []struct {
		name  string
		token string
	}{
		{"own dashboard", app.getToken(t, usr1)},
		{"parent", app.getToken(t, parentUsr)},
		{"teacher", app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, path, tc.token, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var dash report.StudentDashboard
			unmarshal(t, rec, &dash)
			assert.Equal(t, s1.ID, dash.Student.ID)
			assert.Equal(t, "Sok Dara", dash.Name)
			if assert.NotNil(t, dash.Class) {
				assert.Equal(t, cls.ID, dash.Class.ID)
			}
			require.Len(t, dash.RecentGrades, 2)
			percentages := map[string]float64{}
			for _, g := range dash.RecentGrades {
				percentages[g.SubjectName] = g.Percentage
				assert.Equal(t, 3, g.MonthNumber)
				assert.Equal(t, 2024, g.Year)
			}
			assert.Equal(t, map[string]float64{"គណិតវិទ្យា": 60, "ភាសាខ្មែរ": 90}, percentages)
			assert.Equal(t, 75.0, dash.AverageScore)
			assert.Equal(t, report.AttendanceOverview{Absent: 1, Late: 1, Total: 2}, dash.Attendance)
		})
	}

	t.Run("no grades", func(t *testing.T) {
		s3 := app.createStudent(t, "Vuthy", "Keo", "MALE", "")
		rec := app.do(http.MethodGet, "/api/dashboard/student/"+s3.ID, app.getToken(t, usr1), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodGet, "/api/dashboard/student/"+s3.ID, app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin)), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash report.StudentDashboard
		unmarshal(t, rec, &dash)
		assert.Nil(t, dash.Class)
		assert.Empty(t, dash.RecentGrades)
		assert.Zero(t, dash.AverageScore)
		assert.Equal(t, report.AttendanceOverview{}, dash.Attendance)
	})

	tests := []httpTest{
		{
			name:     "another student",
			method:   http.MethodGet,
			path:     path,
			token:    app.getToken(t, usr2),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "parent of another student",
			method:   http.MethodGet,
			path:     "/api/dashboard/student/" + s2.ID,
			token:    app.getToken(t, parentUsr),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "unknown student",
			method:   http.MethodGet,
			path:     "/api/dashboard/student/unknown",
			token:    app.getToken(t, app.createUser(t, "Keo Vuthy", "vuthy", testPwd, user.RoleTeacher)),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
