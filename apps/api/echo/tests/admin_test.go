package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

func Test_adminApi_admins(t *testing.T) {
	app := setup(t)
	root := app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin)
	token := app.getToken(t, root)

	var created echoapi.AccountResponse
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/admins", token, []byte(`{
			"first_name": "Sokha", "last_name": "Chea", "email": "Sokha@School.kh", "roles": ["student:"]
		}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &created)
		assert.Equal(t, "sokha@school.kh", created.User.Email)
		assert.Equal(t, []string{user.RoleAdmin}, created.User.Roles)
		assert.True(t, created.User.IsDefaultPassword)
		assert.NotEmpty(t, created.Credentials.Password)
	})

	t.Run("create without email or phone", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/admins", token, []byte(`{"first_name": "A", "last_name": "B"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/admins", token, []byte(`{
			"first_name": "A", "last_name": "B", "email": "sokha@school.kh"
		}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("list", func(t *testing.T) {
		app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)
		rec := app.do(http.MethodGet, "/api/admin/admins", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var admins []user.User
		unmarshal(t, rec, &admins)
		ids := make([]string, 0, len(admins))
		for _, a := range admins {
			ids = append(ids, a.ID)
		}
		assert.ElementsMatch(t, []string{root.ID, created.User.ID}, ids)
	})

	t.Run("not an admin", func(t *testing.T) {
		tchr := app.createUser(t, "Keo Vuthy", "vuthy", testPwd, user.RoleTeacher)
		rec := app.do(http.MethodGet, "/api/admin/admins/"+tchr.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error": "admin not found"}`, rec.Body.String())
	})

	tests := []httpTest{
		{
			name:     "self deactivation",
			method:   http.MethodPut,
			path:     "/api/admin/admins/" + root.ID + "/status",
			body:     []byte(`{"is_active": false}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "you cannot deactivate your own account"}),
		},
		{
			name:     "self deletion",
			method:   http.MethodDelete,
			path:     "/api/admin/admins/" + root.ID,
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "you cannot delete your own account"}),
		},
		{
			name:     "status is required",
			method:   http.MethodPut,
			path:     "/api/admin/admins/" + created.User.ID + "/status",
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"is_active": "this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("deactivate", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/admin/admins/"+created.User.ID+"/status", token, []byte(`{
			"is_active": false, "reason": "left the school"
		}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var admin user.User
		unmarshal(t, rec, &admin)
		assert.False(t, admin.IsActive)

		rec = app.do(http.MethodGet, "/api/admin/admins/statistics", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats user.AdminStats
		unmarshal(t, rec, &stats)
		assert.Equal(t, user.AdminStats{Total: 2, Active: 1, Inactive: 1, Suspended: 1, DefaultPassword: 1}, stats)
	})

	t.Run("last active admin", func(t *testing.T) {
		_, err := app.users.SetAdminActive(ctxBg, created.User, root.ID, false, "")
		assert.Equal(t, user.ErrLastAdmin, err)
		assert.Equal(t, user.ErrLastAdmin, app.users.DeleteAdmin(ctxBg, created.User, root.ID))
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/admin/admins/"+created.User.ID, token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		_, err := app.users.GetByID(ctxBg, created.User.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func Test_adminApi_studentAccounts(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	cls7 := app.createClass(t, "7A", 7)
	cls8 := app.createClass(t, "8A", 8)
	dara := app.createStudent(t, "Dara", "Sok", "MALE", cls7.ID)
	srey := app.createStudent(t, "Srey", "Chan", "FEMALE", cls7.ID)
	vuthy := app.createStudent(t, "Vuthy", "Keo", "MALE", cls8.ID)

	t.Run("empty scope", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/accounts/students", token, []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "select all students, a grade or a list of students"}`, rec.Body.String())
	})

	t.Run("single", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/accounts/students/"+vuthy.ID, token, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var creds student.AccountCredentials
		unmarshal(t, rec, &creds)
		assert.Equal(t, vuthy.ID, creds.StudentID)
		assert.Equal(t, strings.ToLower(vuthy.StudentCode), creds.Login)
		assert.NotEmpty(t, creds.Password)

		rec = app.do(http.MethodPost, "/api/admin/accounts/students/"+vuthy.ID, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("by grade", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/accounts/students", token, []byte(`{"grade": 7}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp echoapi.CredentialsResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, 2, resp.Created)
		ids := []string{resp.Credentials[0].StudentID, resp.Credentials[1].StudentID}
		assert.ElementsMatch(t, []string{dara.ID, srey.ID}, ids)

		// existing accounts are skipped
		rec = app.do(http.MethodPost, "/api/admin/accounts/students", token, []byte(`{"all": true}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &resp)
		assert.Zero(t, resp.Created)
		assert.Empty(t, resp.Credentials)
	})

	t.Run("deactivate and activate", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/admin/accounts/students/deactivate", token, []byte(`{
			"student_ids": ["`+dara.ID+`", "`+srey.ID+`"], "reason": "graduated"
		}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"count": 2}`, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/admin/accounts/statistics", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats student.AccountStats
		unmarshal(t, rec, &stats)
		assert.Equal(t, student.AccountStats{
			TotalStudents: 3, WithAccount: 3, ActiveAccounts: 1, InactiveAccounts: 2,
		}, stats)

		rec = app.do(http.MethodPost, "/api/admin/accounts/students/activate", token, []byte(`{"grade": 7}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"count": 2}`, rec.Body.String())
	})

	t.Run("security overview", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/admin/security", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var overview echoapi.SecurityOverview
		unmarshal(t, rec, &overview)
		assert.Equal(t, 3, overview.DefaultPasswords)
		assert.Zero(t, overview.Expired)
		assert.Zero(t, overview.Suspended)
		require.Len(t, overview.Accounts, 3)
		for _, acc := range overview.Accounts {
			assert.True(t, acc.PasswordStatus.IsDefaultPassword)
			assert.True(t, acc.User.RoleStartsWith(user.RoleStudent), acc.User.Roles)
		}
	})
}

func Test_userApi_passwordStatus(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "7A", 7)
	s, usr := app.withAccount(t, app.createStudent(t, "Dara", "Sok", "MALE", cls.ID))
	require.NotEmpty(t, s.UserID)
	token := app.getToken(t, usr)

	t.Run("temporary password", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/auth/password-status", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var status user.PasswordStatus
		unmarshal(t, rec, &status)
		assert.True(t, status.IsDefaultPassword)
		assert.False(t, status.IsExpired)
		assert.True(t, status.CanExtend)
		assert.Equal(t, usr.PasswordExpiresAt.Unix(), status.ExpiresAt.Unix())
	})

	t.Run("extend", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/auth/extend-password", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var status user.PasswordStatus
		unmarshal(t, rec, &status)
		assert.False(t, status.ExpiresAt.Before(usr.PasswordExpiresAt))
	})

	t.Run("no temporary password", func(t *testing.T) {
		tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))
		rec := app.do(http.MethodGet, "/api/auth/password-status", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, marchallStr(t, user.PasswordStatus{AlertLevel: user.AlertNone}), rec.Body.String())

		rec = app.do(http.MethodPost, "/api/auth/extend-password", tchrToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "the account does not have a temporary password"}`, rec.Body.String())
	})
}

func marchallStr(t *testing.T, obj interface{}) string {
	return string(marchallObj(t, obj))
}
