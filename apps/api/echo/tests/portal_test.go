package tests

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

// withAccount creates the account of `s` and returns the student with its user.
func (app *testApp) withAccount(t *testing.T, s student.Student) (student.Student, user.User) {
	_, err := app.students.CreateAccount(ctxBg, s)
	require.NoError(t, err)
	s, err = app.students.GetByID(ctxBg, s.ID)
	require.NoError(t, err)
	usr, err := app.users.GetByID(ctxBg, s.UserID)
	require.NoError(t, err)
	return s, usr
}

func Test_portalApi_student(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "7A", 7)
	math := app.createSubject(t, "គណិតវិទ្យា", "MATH-7", 7)
	s1, usr1 := app.withAccount(t, app.createStudent(t, "Dara", "Sok", "MALE", cls.ID))
	s2 := app.createStudent(t, "Srey", "Chan", "FEMALE", cls.ID)
	_, unassignedUsr := app.withAccount(t, app.createStudent(t, "Vuthy", "Keo", "MALE", ""))
	token := app.getToken(t, usr1)
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))

	p := attendance.Period{Month: 3, Year: 2024}
	_, err := app.grades.BulkSave(ctxBg, cls.ID, p, []grade.ScoreInput{
		{StudentID: s1.ID, SubjectID: math.ID, Score: score(30)},
		{StudentID: s2.ID, SubjectID: math.ID, Score: score(45)},
	})
	require.NoError(t, err)
	_, err = app.attendance.BulkSave(ctxBg, cls.ID, p, []attendance.CellInput{
		{StudentID: s1.ID, Day: 4, Value: "A"},
		{StudentID: s1.ID, Day: 5, Value: "L"},
		{StudentID: s2.ID, Day: 4, Value: "A"},
	})
	require.NoError(t, err)

	t.Run("teachers are not students", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/student-portal/profile", tchrToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("profile", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/student-portal/profile", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentProfile
		unmarshal(t, rec, &resp)
		assert.Equal(t, s1.ID, resp.Student.ID)
		if assert.NotNil(t, resp.Class) {
			assert.Equal(t, "7A", resp.Class.Name)
		}
	})

	t.Run("grades", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/student-portal/grades?month=3&year=2024", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentGrades
		unmarshal(t, rec, &resp)
		assert.Equal(t, "7A", resp.ClassName)
		assert.Equal(t, 2, resp.ClassSize)
		require.NotNil(t, resp.Result)
		assert.Equal(t, s1.ID, resp.Result.StudentID)
		assert.Equal(t, 2, resp.Result.Rank)
		assert.Equal(t, 1, resp.Result.Absent)
	})

	t.Run("attendance", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/student-portal/attendance?month=3&year=2024", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentAttendance
		unmarshal(t, rec, &resp)
		assert.Len(t, resp.Records, 2)
		assert.Equal(t, attendance.Counts{Absent: 1, Late: 1}, resp.Counts)

		rec = app.do(http.MethodGet, "/api/student-portal/attendance?month=4&year=2024", token, nil)
		unmarshal(t, rec, &resp)
		assert.Empty(t, resp.Records)
		assert.Equal(t, attendance.Counts{}, resp.Counts)
	})

	t.Run("no class", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/student-portal/grades?month=3&year=2024", app.getToken(t, unassignedUsr), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("student role without a student record", func(t *testing.T) {
		orphan := app.createUser(t, "Lim Sophea", "sophea", testPwd, user.RoleStudent)
		rec := app.do(http.MethodGet, "/api/student-portal/profile", app.getToken(t, orphan), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_portalApi_parent(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "8A", 8)
	child := app.createStudent(t, "Dara", "Sok", "MALE", cls.ID)
	stranger := app.createStudent(t, "Srey", "Chan", "FEMALE", cls.ID)

	p, creds, err := app.parents.Create(ctxBg, parent.NewParent{
		KhmerName:  "សុខ សុភា",
		Phone:      "012345678",
		StudentIDs: []string{child.ID},
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.UserID)
	assert.Equal(t, "012345678", creds.Password)
	usr, err := app.users.GetByID(ctxBg, p.UserID)
	require.NoError(t, err)
	token := app.getToken(t, usr)

	_, err = app.attendance.BulkSave(ctxBg, cls.ID, attendance.Period{Month: 3, Year: 2024}, []attendance.CellInput{
		{StudentID: child.ID, Day: 11, Value: "P"},
	})
	require.NoError(t, err)

	t.Run("children", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/parent-portal/children", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var children []student.Student
		unmarshal(t, rec, &children)
		require.Len(t, children, 1)
		assert.Equal(t, child.ID, children[0].ID)
	})

	t.Run("child attendance", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/parent-portal/children/"+child.ID+"/attendance?month=3&year=2024", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentAttendance
		unmarshal(t, rec, &resp)
		assert.Equal(t, attendance.Counts{Permission: 1}, resp.Counts)
	})

	t.Run("child grades", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/parent-portal/children/"+child.ID+"/grades?month=3&year=2024", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentGrades
		unmarshal(t, rec, &resp)
		assert.Equal(t, child.ID, resp.Student.ID)
	})

	tests := []httpTest{
		{
			name:     "someone else's child",
			method:   http.MethodGet,
			path:     "/api/parent-portal/children/" + stranger.ID + "/grades?month=3&year=2024",
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "students cannot use the parent portal",
			method:   http.MethodGet,
			path:     "/api/parent-portal/children",
			token:    app.getToken(t, app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent)),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_portalApi_profilePicture(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)
	token := app.getToken(t, usr)
	avatarPath := func(url string) string {
		return filepath.Join(app.conf.Media.Dir, "avatars", filepath.Base(url))
	}

	t.Run("not an image", func(t *testing.T) {
		req, rec := newUpload(t, "/api/profile/picture", token, "file", "notes.txt", []byte("hello"))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var first user.User
	t.Run("upload", func(t *testing.T) {
		req, rec := newUpload(t, "/api/profile/picture", token, "file", "me.png", pngBytes(t))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &first)
		assert.True(t, strings.HasPrefix(first.AvatarURL, "/media/avatars/"), first.AvatarURL)
		_, err := os.Stat(avatarPath(first.AvatarURL))
		assert.NoError(t, err)
	})

	t.Run("replacing removes the previous file", func(t *testing.T) {
		req, rec := newUpload(t, "/api/profile/picture", token, "file", "me.png", pngBytes(t))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var second user.User
		unmarshal(t, rec, &second)
		assert.NotEqual(t, first.AvatarURL, second.AvatarURL)
		_, err := os.Stat(avatarPath(first.AvatarURL))
		assert.True(t, os.IsNotExist(err))
		first = second
	})

	t.Run("remove", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/profile/picture", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp user.User
		unmarshal(t, rec, &resp)
		assert.Empty(t, resp.AvatarURL)
		_, err := os.Stat(avatarPath(first.AvatarURL))
		assert.True(t, os.IsNotExist(err))
	})
}

func Test_portalApi_updateProfile(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "7A", 7)
	s, usr := app.withAccount(t, app.createStudent(t, "Dara", "Sok", "MALE", cls.ID))
	token := app.getToken(t, usr)
	app.createUser(t, "Keo Vuthy", "vuthy", testPwd, user.RoleTeacher)

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/student-portal/profile", token, []byte(`{
			"first_name": " Sokha ", "email": "Sokha@School.kh", "phone": "012 999 888", "address": "Phnom Penh"
		}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.StudentProfile
		unmarshal(t, rec, &resp)
		assert.Equal(t, s.ID, resp.Student.ID)
		assert.Equal(t, "Sokha", resp.Student.FirstName)
		assert.Equal(t, "Sok", resp.Student.LastName)
		assert.Equal(t, "sokha@school.kh", resp.Student.Email)
		assert.Equal(t, "012999888", resp.Student.Phone)
		assert.Equal(t, "Phnom Penh", resp.Student.Address)
		if assert.NotNil(t, resp.Class) {
			assert.Equal(t, cls.ID, resp.Class.ID)
		}

		acc, err := app.users.GetByID(ctxBg, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sokha", acc.FirstName)
		assert.Equal(t, usr.LastName, acc.LastName)
		assert.Equal(t, "sokha@school.kh", acc.Email)
		assert.Equal(t, "012999888", acc.Phone)
	})

	tests := []httpTest{
		{
			name:     "blank name",
			body:     []byte(`{"last_name": "  "}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"last_name": "this field cannot be blank"}`),
		},
		{
			name:     "invalid phone",
			body:     []byte(`{"phone": "123"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"phone": "enter a valid phone number"}`),
		},
		{
			name:     "email of another account",
			body:     []byte(`{"email": "vuthy@test.kh"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "a user with this email already exists"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPut, "/api/student-portal/profile", token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("failed updates are not saved", func(t *testing.T) {
		got, err := app.students.GetByID(ctxBg, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sok", got.LastName)
		assert.Equal(t, "sokha@school.kh", got.Email)
		assert.Equal(t, "012999888", got.Phone)
	})

	t.Run("teachers have no student profile", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/student-portal/profile",
			app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)), []byte(`{}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
