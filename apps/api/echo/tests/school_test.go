package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

func Test_schoolApi_classes(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))
	stdtToken := app.getToken(t, app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent))

	newClass := marchallObj(t, school.NewClass{Name: "7A", Grade: 7, AcademicYear: "2024-2025", Capacity: 2})
	tests := []httpTest{
		{
			name:     "student cannot list",
			method:   http.MethodGet,
			path:     "/api/classes",
			token:    stdtToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "teacher cannot create",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     newClass,
			token:    tchrToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "invalid grade",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     marchallObj(t, school.NewClass{Name: "13A", Grade: 13, AcademicYear: "2024-2025"}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     []byte(`{}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required", "grade": "this field is required", "academic_year": "this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}

	rec := app.do(http.MethodPost, "/api/classes", adminToken, newClass)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cls school.Class
	unmarshal(t, rec, &cls)
	assert.NotEmpty(t, cls.ID)
	assert.Equal(t, 2, cls.Capacity)

	s1 := app.createStudent(t, "Dara", "Sok", "MALE", "")
	s2 := app.createStudent(t, "Srey", "Chan", "FEMALE", "")
	s3 := app.createStudent(t, "Vuthy", "Keo", "MALE", "")

	t.Run("assign students", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/classes/"+cls.ID+"/assign-students", adminToken,
			marchallObj(t, echoapi.IDsRequest{StudentIDs: []string{s1.ID, s2.ID}}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.CountResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/classes/"+cls.ID+"/assign-students", adminToken,
			marchallObj(t, echoapi.IDsRequest{StudentIDs: []string{s3.ID}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "class capacity exceeded")
	})

	t.Run("no students", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/classes/"+cls.ID+"/assign-students", adminToken, []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("roster", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/classes/"+cls.ID+"/students", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var roster []student.Student
		unmarshal(t, rec, &roster)
		assert.Len(t, roster, 2)

		rec = app.do(http.MethodGet, "/api/classes/"+cls.ID, tchrToken, nil)
		var got school.Class
		unmarshal(t, rec, &got)
		assert.Equal(t, 2, got.StudentCount)
	})

	t.Run("capacity below enrolment", func(t *testing.T) {
		capacity := 1
		rec := app.do(http.MethodPut, "/api/classes/"+cls.ID, adminToken, marchallObj(t, school.UpdateClass{Capacity: &capacity}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "capacity")
	})

	t.Run("cannot delete a class with students", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/classes/"+cls.ID, adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remove students then delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/classes/"+cls.ID+"/students/"+s3.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		for _, s := range []student.Student{s1, s2} {
			rec = app.do(http.MethodDelete, "/api/classes/"+cls.ID+"/students/"+s.ID, adminToken, nil)
			require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		}
		rec = app.do(http.MethodDelete, "/api/classes/"+cls.ID, adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, "/api/classes/"+cls.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_schoolApi_subjects(t *testing.T) {
	app := setup(t)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))

	create := func(t *testing.T, ns school.NewSubject) *httptest.ResponseRecorder {
		return app.do(http.MethodPost, "/api/subjects", adminToken, marchallObj(t, ns))
	}

	rec := create(t, school.NewSubject{NameKh: "រូបវិទ្យា", Code: "PHY-7", Grade: 7, MaxScore: 50, Coefficient: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = create(t, school.NewSubject{NameKh: "គណិតវិទ្យា", Code: "MATH-7", Grade: 7, MaxScore: 50, Coefficient: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inactive := false
	rec = create(t, school.NewSubject{NameKh: "កសិកម្ម", Code: "AGRI-7", Grade: 7, MaxScore: 50, Coefficient: 1, IsActive: &inactive})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("duplicate code", func(t *testing.T) {
		rec := create(t, school.NewSubject{NameKh: "រូបវិទ្យា", Code: "PHY-7", Grade: 7, MaxScore: 50, Coefficient: 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "code")
	})

	t.Run("invalid max score", func(t *testing.T) {
		rec := create(t, school.NewSubject{NameKh: "ភូមិវិទ្យា", Code: "GEO-7", Grade: 7, Coefficient: 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("grade subjects in sheet order", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/subjects/grade/7", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var subjects []school.OrderedSubject
		unmarshal(t, rec, &subjects)
		require.Len(t, subjects, 2)
		assert.Equal(t, "MATH-7", subjects[0].Code)
		assert.Equal(t, "M", subjects[0].ShortCode)
		assert.Equal(t, "PHY-7", subjects[1].Code)
	})

	t.Run("bad grade", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/subjects/grade/seven", tchrToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("filter inactive", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/subjects?is_active=false", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var subjects []school.Subject
		unmarshal(t, rec, &subjects)
		require.Len(t, subjects, 1)
		assert.Equal(t, "AGRI-7", subjects[0].Code)
	})
}
