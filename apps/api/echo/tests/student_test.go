package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

func Test_studentApi_create(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "7A", 7)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	tchrToken := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))

	valid := student.NewStudent{FirstName: "Dara", LastName: "Sok", Gender: "MALE", DateOfBirth: "2012-05-17", ClassID: cls.ID}
	tests := []httpTest{
		{
			name:     "teacher cannot create",
			method:   http.MethodPost,
			path:     "/api/students",
			body:     marchallObj(t, valid),
			token:    tchrToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/api/students",
			body:     []byte(`{}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:   "birth date in the future",
			method: http.MethodPost,
			path:   "/api/students",
			body: marchallObj(t, student.NewStudent{
				FirstName: "Dara", LastName: "Sok", Gender: "MALE", DateOfBirth: "2999-01-01",
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:   "unknown class",
			method: http.MethodPost,
			path:   "/api/students",
			body: marchallObj(t, student.NewStudent{
				FirstName: "Dara", LastName: "Sok", Gender: "MALE", DateOfBirth: "2012-05-17", ClassID: "nope",
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "created",
			method:   http.MethodPost,
			path:     "/api/students",
			body:     marchallObj(t, valid),
			token:    adminToken,
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCode(t, tt, rec)
		})
	}

	t.Run("query", func(t *testing.T) {
		app.createStudent(t, "Srey", "Chan", "FEMALE", cls.ID)
		app.createStudent(t, "Vuthy", "Keo", "MALE", "")

		rec := app.do(http.MethodGet, "/api/students?class_id="+cls.ID+"&limit=1", tchrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page echoapi.StudentPage
		unmarshal(t, rec, &page)
		assert.Len(t, page.Students, 1)
		assert.Equal(t, 2, page.Pagination.Total)
		assert.True(t, page.Pagination.HasMore)

		rec = app.do(http.MethodGet, "/api/students?gender=female", tchrToken, nil)
		unmarshal(t, rec, &page)
		require.Len(t, page.Students, 1)
		assert.Equal(t, "Srey", page.Students[0].FirstName)
	})
}

func Test_studentApi_bulkGrid(t *testing.T) {
	app := setup(t)
	cls := app.createClass(t, "9A", 9)
	adminToken := app.getToken(t, app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin))
	existing := app.createStudent(t, "Dara", "Sok", "MALE", cls.ID)

	t.Run("fields follow the grade", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/students/fields?grade=7", adminToken, nil)
		var fields []string
		unmarshal(t, rec, &fields)
		assert.NotContains(t, fields, student.FieldGrade9ExamSession)

		rec = app.do(http.MethodGet, "/api/students/fields?grade=12", adminToken, nil)
		unmarshal(t, rec, &fields)
		assert.Contains(t, fields, student.FieldGrade9ExamSession)
		assert.Contains(t, fields, student.FieldGrade12Track)
		assert.Equal(t, student.FieldRemarks, fields[len(fields)-1])
	})

	var grid echoapi.GridResponse
	t.Run("grid", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/students/bulk/"+cls.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &grid)
		assert.Contains(t, grid.Fields, student.FieldGrade9ExamDesk)
		require.Len(t, grid.Rows, 1)
		assert.Equal(t, existing.ID, grid.Rows[0].ID)
		assert.Equal(t, "Sok Dara", grid.Rows[0].Cells[student.FieldName])
		assert.Equal(t, "17/05/2012", grid.Rows[0].Cells[student.FieldDateOfBirth])
	})

	t.Run("unknown start field", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/students/bulk/paste", adminToken,
			marchallObj(t, echoapi.PasteRequest{Grade: 9, StartField: "shoe_size", Text: "x"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var pasted echoapi.PasteResponse
	t.Run("paste", func(t *testing.T) {
		text := "Chan Srey\tស្រី\t03/02/2012\r\n" +
			"Keo Vuthy\tM\t\r\n" +
			"Lim Sophea\tX\t01/01/2012\r\n"
		rec := app.do(http.MethodPost, "/api/students/bulk/paste", adminToken, marchallObj(t, echoapi.PasteRequest{
			Grade:      9,
			StartRow:   1,
			StartField: student.FieldName,
			Text:       text,
			Rows:       grid.Rows,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &pasted)

		require.Len(t, pasted.Rows, 4)
		assert.Equal(t, "Chan Srey", pasted.Rows[1].Cells[student.FieldName])
		assert.Equal(t, 2, pasted.ValidCount)
		if assert.Len(t, pasted.Errors, 2) {
			assert.Equal(t, student.BulkError{Row: 3, Error: "name, gender and date of birth are required"}, pasted.Errors[0])
			assert.Equal(t, 4, pasted.Errors[1].Row)
			assert.Contains(t, pasted.Errors[1].Error, "invalid gender")
		}
	})

	t.Run("bulk save", func(t *testing.T) {
		rows := pasted.Rows
		rows[0].Cells[student.FieldRemarks] = "class monitor"
		rec := app.do(http.MethodPost, "/api/students/bulk/"+cls.ID, adminToken, marchallObj(t, echoapi.BulkRowsRequest{Rows: rows}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res student.BulkResult
		unmarshal(t, rec, &res)
		assert.Equal(t, 4, res.Total)
		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 1, res.Updated)
		assert.Equal(t, 2, res.Failed)

		roster, err := app.students.Roster(ctxBg, cls.ID)
		require.NoError(t, err)
		require.Len(t, roster, 2)
		for _, s := range roster {
			switch s.ID {
			case existing.ID:
				assert.Equal(t, "class monitor", s.Remarks)
				assert.Empty(t, s.KhmerName)
			default:
				assert.Equal(t, "Chan", s.LastName)
				assert.Equal(t, "Srey", s.FirstName)
				assert.Equal(t, student.GenderFemale, s.Gender)
			}
		}
	})
}
