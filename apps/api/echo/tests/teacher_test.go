package tests

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

func Test_teacherApi(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))
	studentToken := app.getToken(t, app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent))
	cls := app.createClass(t, "9A", 9)

	var created teacher.Teacher
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/teachers", adminToken, marchallObj(t, teacher.NewTeacher{
			FirstName:       "Sophal",
			LastName:        "Meas",
			Gender:          "male",
			Email:           " Sophal@School.kh ",
			Phone:           "012 345 678",
			Role:            teacher.RoleClassTeacher,
			HomeroomClassID: cls.ID,
			HireDate:        "01/09/2020",
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.TeacherResponse
		unmarshal(t, rec, &resp)
		created = resp.Teacher
		assert.Equal(t, fmt.Sprintf("T-%d-0001", time.Now().Year()), created.EmployeeID)
		assert.Equal(t, "sophal@school.kh", created.Email)
		assert.Equal(t, "012345678", created.Phone)
		assert.Equal(t, "MALE", created.Gender)
		assert.NotEmpty(t, created.UserID)
		require.NotNil(t, resp.Credentials)
		assert.NotEmpty(t, resp.Credentials.Password)

		usr, err := app.users.GetByID(ctxBg, created.UserID)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleClassTeacher}, usr.Roles)

		homeroom, err := app.school.GetClass(ctxBg, cls.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, homeroom.HomeroomTeacherID)
	})

	t.Run("create without account", func(t *testing.T) {
		noAccount := false
		rec := app.do(http.MethodPost, "/api/teachers", adminToken, marchallObj(t, teacher.NewTeacher{
			EmployeeID:    "emp-7",
			FirstName:     "Vanna",
			LastName:      "Ros",
			Email:         "vanna@school.kh",
			CreateAccount: &noAccount,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.TeacherResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, "EMP-7", resp.Teacher.EmployeeID)
		assert.Equal(t, teacher.RoleSubjectTeacher, resp.Teacher.Role)
		assert.Empty(t, resp.Teacher.UserID)
		assert.Nil(t, resp.Credentials)
	})

	tests := []httpTest{
		{
			name:     "teachers cannot create teachers",
			method:   http.MethodPost,
			path:     "/api/teachers",
			body:     marchallObj(t, teacher.NewTeacher{FirstName: "A", LastName: "B", Email: "ab@school.kh"}),
			token:    tchrToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "students cannot list teachers",
			method:   http.MethodGet,
			path:     "/api/teachers",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "duplicate email",
			method:   http.MethodPost,
			path:     "/api/teachers",
			body:     marchallObj(t, teacher.NewTeacher{FirstName: "A", LastName: "B", Email: "SOPHAL@school.kh"}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "a teacher with this email already exists"}`),
		},
		{
			name:   "homeroom taken",
			method: http.MethodPost,
			path:   "/api/teachers",
			body: marchallObj(t, teacher.NewTeacher{
				FirstName: "A", LastName: "B", Email: "ab@school.kh",
				Role: teacher.RoleClassTeacher, HomeroomClassID: cls.ID,
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"homeroom_class_id": "class 9A already has a homeroom teacher"}`),
		},
		{
			name:     "unknown teacher",
			method:   http.MethodGet,
			path:     "/api/teachers/nope",
			token:    tchrToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "teacher not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/teachers", adminToken, marchallObj(t, teacher.NewTeacher{FirstName: "A"}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		unmarshal(t, rec, &fields)
		assert.Contains(t, fields, "last_name")
		assert.Contains(t, fields, "email")
	})

	t.Run("query", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/teachers?role=class_teacher", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var teachers []teacher.Teacher
		unmarshal(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, created.ID, teachers[0].ID)

		rec = app.do(http.MethodGet, "/api/teachers?search=vanna", tchrToken, nil)
		unmarshal(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, "EMP-7", teachers[0].EmployeeID)
	})

	t.Run("class teacher needs a homeroom", func(t *testing.T) {
		empty := ""
		rec := app.do(http.MethodPut, "/api/teachers/"+created.ID, adminToken, marchallObj(t, teacher.UpdateTeacher{
			HomeroomClassID: &empty,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"homeroom_class_id": "a class teacher must have a homeroom class"}`, rec.Body.String())
	})

	t.Run("update syncs the account and homeroom", func(t *testing.T) {
		role, empty, email := teacher.RoleSubjectTeacher, "", "meas.sophal@school.kh"
		rec := app.do(http.MethodPut, "/api/teachers/"+created.ID, adminToken, marchallObj(t, teacher.UpdateTeacher{
			Role:            &role,
			HomeroomClassID: &empty,
			Email:           &email,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated teacher.Teacher
		unmarshal(t, rec, &updated)
		assert.Equal(t, teacher.RoleSubjectTeacher, updated.Role)
		assert.Empty(t, updated.HomeroomClassID)

		usr, err := app.users.GetByID(ctxBg, created.UserID)
		require.NoError(t, err)
		assert.Equal(t, email, usr.Email)
		assert.Equal(t, []string{user.RoleSubjectTeacher}, usr.Roles)

		cls, err := app.school.GetClass(ctxBg, cls.ID)
		require.NoError(t, err)
		assert.Empty(t, cls.HomeroomTeacherID)
	})

	t.Run("delete removes the account", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/teachers/"+created.ID, adminToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := app.teachers.GetByID(ctxBg, created.ID)
		assert.True(t, core.IsNotFound(err))
		_, err = app.users.GetByID(ctxBg, created.UserID)
		assert.True(t, core.IsNotFound(err))
	})
}

func Test_adminApi_parents(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))
	cls := app.createClass(t, "8A", 8)
	dara := app.createStudent(t, "Dara", "Sok", "MALE", cls.ID)
	srey := app.createStudent(t, "Srey", "Sok", "FEMALE", cls.ID)

	var created echoapi.ParentResponse
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/parents", adminToken, []byte(`{
			"khmer_name": " សុខ  សុភា ",
			"phone": "012-345-678",
			"relationship": "mother",
			"student_ids": ["`+dara.ID+`", "`+dara.ID+`"]
		}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &created)

		p := created.Parent
		assert.True(t, strings.HasPrefix(p.ParentCode, fmt.Sprintf("P-%d-", time.Now().Year())), p.ParentCode)
		assert.Equal(t, "012345678", p.Phone)
		assert.Equal(t, "MOTHER", p.Relationship)
		assert.Equal(t, []string{dara.ID}, p.StudentIDs)
		assert.True(t, p.IsActive)
		require.NotNil(t, created.Credentials)
		assert.Equal(t, p.ParentCode, created.Credentials.Login)
		assert.Equal(t, "012345678", created.Credentials.Password)

		usr, err := app.users.GetByID(ctxBg, p.UserID)
		require.NoError(t, err)
		assert.True(t, usr.IsDefaultPassword)
	})

	tests := []httpTest{
		{
			name:     "teachers cannot manage parents",
			method:   http.MethodGet,
			path:     "/api/admin/parents",
			token:    tchrToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "duplicate phone",
			method:   http.MethodPost,
			path:     "/api/admin/parents",
			body:     []byte(`{"khmer_name": "ចាន់ ធារី", "phone": "012 345 678"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"phone": "a parent with this phone number already exists"}`),
		},
		{
			name:     "unknown students",
			method:   http.MethodPost,
			path:     "/api/admin/parents",
			body:     []byte(`{"khmer_name": "ចាន់ ធារី", "phone": "098765432", "student_ids": ["nope"]}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_ids": "some students do not exist"}`),
		},
		{
			name:     "invalid phone",
			method:   http.MethodPost,
			path:     "/api/admin/parents",
			body:     []byte(`{"khmer_name": "ចាន់ ធារី", "phone": "12"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"phone": "enter a valid phone number"}`),
		},
		{
			name:     "link nothing",
			method:   http.MethodPost,
			path:     "/api/admin/parents/" + created.Parent.ID + "/students",
			body:     []byte(`{"student_ids": []}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_ids": "no students provided"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("link and unlink", func(t *testing.T) {
		path := "/api/admin/parents/" + created.Parent.ID + "/students"
		rec := app.do(http.MethodPost, path, adminToken, []byte(`{"student_ids": ["`+srey.ID+`"]}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			StudentIDs []string `json:"student_ids"`
		}
		unmarshal(t, rec, &resp)
		assert.ElementsMatch(t, []string{dara.ID, srey.ID}, resp.StudentIDs)

		rec = app.do(http.MethodDelete, path+"/"+dara.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &resp)
		assert.Equal(t, []string{srey.ID}, resp.StudentIDs)

		rec = app.do(http.MethodDelete, path+"/"+dara.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deactivate disables the account", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/admin/parents/"+created.Parent.ID, adminToken, []byte(`{"is_active": false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := app.users.GetByID(ctxBg, created.Parent.UserID)
		require.NoError(t, err)
		assert.False(t, usr.IsActive)
	})

	t.Run("statistics", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/admin/parents/statistics", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{
			"total": 1, "active": 0, "inactive": 1, "with_account": 1, "with_children": 1,
			"by_relationship": {"FATHER": 0, "MOTHER": 1, "GUARDIAN": 0}
		}`, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/admin/parents/"+created.Parent.ID, adminToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/admin/parents/"+created.Parent.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		_, err := app.users.GetByID(ctxBg, created.Parent.UserID)
		assert.True(t, core.IsNotFound(err))
	})
}

func Test_teacherApi_employeeIDsFull(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	noAccount := false

	rec := app.do(http.MethodPost, "/api/teachers", adminToken, marchallObj(t, teacher.NewTeacher{
		EmployeeID:    fmt.Sprintf("T-%d-9999", time.Now().Year()),
		FirstName:     "Vanna",
		LastName:      "Ros",
		Email:         "vanna@school.kh",
		CreateAccount: &noAccount,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, "/api/teachers", adminToken, marchallObj(t, teacher.NewTeacher{
		FirstName:     "Sophal",
		LastName:      "Meas",
		Email:         "sophal@school.kh",
		CreateAccount: &noAccount,
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "all the codes of this year are taken"}`, rec.Body.String())
}
